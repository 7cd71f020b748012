package crawlers

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/sitecloner/internal/mirror"
	"github.com/RecoveryAshes/sitecloner/internal/models"
	"github.com/RecoveryAshes/sitecloner/internal/utils"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

// FetcherOptions 资源下载器配置
type FetcherOptions struct {
	// Headers 请求头部提供者(可选)
	Headers models.HeaderProvider

	// Classifier 失败分类器,为空时使用默认分类表
	Classifier *mirror.Classifier

	// Limiter 按主机限速(可选)
	Limiter *HostLimiter

	// MaxBytes 单个资源最大字节数, <=0 表示不限制
	MaxBytes int64

	// Client 自定义HTTP客户端(测试用),为空时创建跳过证书验证的客户端
	Client *http.Client
}

// AssetFetcher 资源下载器
// 每次调用相互独立,不持有跨调用的下载状态
type AssetFetcher struct {
	client     *http.Client
	headers    models.HeaderProvider
	classifier *mirror.Classifier
	limiter    *HostLimiter
	maxBytes   int64
}

// NewAssetFetcher 创建资源下载器
func NewAssetFetcher(opts FetcherOptions) (*AssetFetcher, error) {
	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("创建Cookie容器失败: %w", err)
		}

		// 跳过证书验证,允许访问自签名、过期或主机名不匹配的HTTPS站点
		client = &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = mirror.NewClassifier(mirror.DefaultClassifierTable())
	}

	return &AssetFetcher{
		client:     client,
		headers:    opts.Headers,
		classifier: classifier,
		limiter:    opts.Limiter,
		maxBytes:   opts.MaxBytes,
	}, nil
}

// Client 返回底层HTTP客户端(robots.txt等辅助请求共用)
func (f *AssetFetcher) Client() *http.Client {
	return f.client
}

// Fetch 下载单个资源到localPath
// 目标文件已存在时跳过下载并返回成功; 超时独立于传输层的默认值;
// 不做自动重试,失败即为本次运行的最终结果
func (f *AssetFetcher) Fetch(ctx context.Context, rawURL, localPath string, timeout time.Duration) models.DownloadOutcome {
	outcome := models.DownloadOutcome{URL: rawURL, LocalPath: localPath}

	if mirror.IsNonFetchable(rawURL) {
		return f.fail(outcome, mirror.ErrNonFetchable)
	}

	if fileExists(localPath) {
		utils.Debugf("文件已存在,跳过下载: %s", localPath)
		outcome.Status = models.OutcomeSuccess
		outcome.Skipped = true
		return outcome
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindUnknown, Err: fmt.Errorf("无效的资源URL: %s", rawURL)})
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindOf(err), Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindUnknown, Err: err})
	}
	f.applyHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindOf(err), Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindHTTPStatus, StatusCode: resp.StatusCode})
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return f.fail(outcome, &mirror.FetchError{
			Kind: mirror.KindTooLarge,
			Err:  fmt.Errorf("资源大小 %d 超过上限 %d", resp.ContentLength, f.maxBytes),
		})
	}

	body, err := decodeBody(resp)
	if err != nil {
		return f.fail(outcome, &mirror.FetchError{Kind: mirror.KindIO, Err: err})
	}
	defer body.Close()

	n, err := writeFileAtomic(localPath, body, f.maxBytes)
	if err != nil {
		kind := mirror.KindOf(err)
		switch {
		case errors.Is(err, errTooLarge):
			kind = mirror.KindTooLarge
			err = fmt.Errorf("资源超过大小上限 %d", f.maxBytes)
		case kind == mirror.KindUnknown:
			kind = mirror.KindIO
		}
		return f.fail(outcome, &mirror.FetchError{Kind: kind, Err: err})
	}

	outcome.Status = models.OutcomeSuccess
	outcome.Bytes = n
	utils.Debugf("📥 下载成功: %s (%d bytes)", rawURL, n)
	return outcome
}

// fail 分类失败并填充结果
func (f *AssetFetcher) fail(outcome models.DownloadOutcome, err error) models.DownloadOutcome {
	outcome.Err = err
	outcome.Kind = string(mirror.KindOf(err))

	if f.classifier.Classify(outcome.URL, err) == mirror.Ignorable {
		outcome.Status = models.OutcomeIgnorableFailure
		utils.Debugf("忽略下载失败 [%s]: %v", outcome.URL, err)
	} else {
		outcome.Status = models.OutcomeReportableFailure
		utils.Warnf("下载失败 [%s]: %v", outcome.URL, err)
	}
	return outcome
}

// applyHeaders 应用自定义HTTP头部
func (f *AssetFetcher) applyHeaders(req *http.Request) {
	if f.headers == nil {
		return
	}
	headers, err := f.headers.GetHeaders()
	if err != nil {
		utils.Warnf("获取HTTP头部失败: %v", err)
		return
	}
	for name, values := range headers {
		if len(values) > 0 {
			req.Header.Set(name, values[0])
		}
	}
}

// newDeflateReader HTTP的deflate编码是zlib格式(RFC 1950),
// 少数服务器直接发送原始deflate流,按头两个字节区分
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && len(header) < 2 {
		if errors.Is(err, io.EOF) {
			return io.NopCloser(br), nil
		}
		return nil, fmt.Errorf("deflate读取失败: %w", err)
	}
	if isZlibHeader(header[0], header[1]) {
		reader, err := zlib.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zlib解压失败: %w", err)
		}
		return reader, nil
	}
	return flate.NewReader(br), nil
}

// isZlibHeader CM=8(deflate) 且 CMF/FLG 组成的16位数是31的倍数
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// decodeBody 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式; 传输层已自动解压时原样返回
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.Uncompressed {
		return io.NopCloser(resp.Body), nil
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		return reader, nil
	case "deflate":
		return newDeflateReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	default:
		// 未知编码,按原始内容保存
		utils.Warnf("未知的Content-Encoding: %s", encoding)
		return io.NopCloser(resp.Body), nil
	}
}
