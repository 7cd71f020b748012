package models

// OutcomeStatus 下载结果状态
type OutcomeStatus int

const (
	OutcomeSuccess           OutcomeStatus = iota // 已写入(或已存在)
	OutcomeIgnorableFailure                       // 已记录,不上报
	OutcomeReportableFailure                      // 上报给调用方
)

// String 实现fmt.Stringer
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeIgnorableFailure:
		return "ignorable"
	case OutcomeReportableFailure:
		return "reportable"
	default:
		return "unknown"
	}
}

// DownloadOutcome 一次资源下载的三态结果
type DownloadOutcome struct {
	URL       string
	LocalPath string
	Status    OutcomeStatus
	Skipped   bool   // 目标文件已存在,未重新下载
	Bytes     int64  // 写入字节数
	Kind      string // 失败类型
	Err       error
}

// OK 是否成功
func (o DownloadOutcome) OK() bool {
	return o.Status == OutcomeSuccess
}
