package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/sitecloner/internal/models"
)

func TestScanCSS(t *testing.T) {
	css := `
@import "base.css";
@import url(theme.css);
/* url(commented.png) */
@font-face { src: url('fonts/a.woff2') format('woff2'), url("fonts/a.ttf?v=2"); }
.hero { background: url(img/hero.jpg); }
.logo { background-image: url( "img/logo.svg" ); }
.dup { background: url(img/hero.jpg); }
.inline { background: url(data:image/png;base64,AAAA); }
.empty { background: url(); }
`
	want := []CSSReference{
		{URL: "base.css", Kind: models.AssetStylesheet},
		{URL: "theme.css", Kind: models.AssetStylesheet},
		{URL: "fonts/a.woff2", Kind: models.AssetFont},
		{URL: "fonts/a.ttf?v=2", Kind: models.AssetFont},
		{URL: "img/hero.jpg", Kind: models.AssetImage},
		{URL: "img/logo.svg", Kind: models.AssetImage},
		{URL: "data:image/png;base64,AAAA", Kind: models.AssetImage},
	}

	got := ScanCSS(css)
	if len(got) != len(want) {
		t.Fatalf("ScanCSS 返回 %d 个引用, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("引用[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestKindFromCSSRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want models.AssetKind
	}{
		{"woff", "a.woff", models.AssetFont},
		{"带查询参数的eot", "a.eot?#iefix", models.AssetFont},
		{"样式表", "more.CSS", models.AssetStylesheet},
		{"图片", "bg.webp", models.AssetImage},
		{"无扩展名", "sprite", models.AssetImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindFromCSSRef(tt.ref); got != tt.want {
				t.Errorf("kindFromCSSRef(%q) = %s, want %s", tt.ref, got, tt.want)
			}
		})
	}
}
