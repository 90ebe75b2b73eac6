package classify

import (
	"testing"

	"pagewalker/pkg/types"
)

func TestClassifyContentTypeWins(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        types.DocKind
	}{
		{"html", "text/html; charset=utf-8", "<html></html>", types.KindHTML},
		{"xhtml", "application/xhtml+xml", "<html></html>", types.KindHTML},
		{"json", "application/json", `{"a":1}`, types.KindJSON},
		{"json suffix", "application/hal+json", `{"a":1}`, types.KindJSON},
		// The declared type beats what the body looks like.
		{"json body but html header", "text/html", `{"a":1}`, types.KindHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &types.Page{ContentType: tt.contentType, Body: []byte(tt.body)}
			if got := Classify(page); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyProbesAmbiguousBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        types.DocKind
	}{
		{"no header, json object", "", `{"items":[]}`, types.KindJSON},
		{"no header, json array", "", `[1,2,3]`, types.KindJSON},
		{"no header, markup", "", `<div class="row"></div>`, types.KindHTML},
		{"octet-stream, json", "application/octet-stream", `{"ok":true}`, types.KindJSON},
		{"no header, broken json", "", `{"unterminated`, types.KindHTML},
		{"empty body", "", "", types.KindHTML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &types.Page{ContentType: tt.contentType, Body: []byte(tt.body)}
			if got := Classify(page); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyDetectsScriptOnlyShells(t *testing.T) {
	tests := []struct {
		name string
		body string
		want types.DocKind
	}{
		{
			"script-only body",
			`<html><head><title>app</title></head><body><script src="/app.js"></script></body></html>`,
			types.KindNeedsRendering,
		},
		{
			"scripts plus real content",
			`<html><body><script src="/app.js"></script><div class="item">hello</div></body></html>`,
			types.KindHTML,
		},
		{
			"empty body without scripts",
			`<html><body></body></html>`,
			types.KindHTML,
		},
		{
			"noscript and style only",
			`<html><body><style>.a{}</style><noscript>enable js</noscript><script>boot()</script></body></html>`,
			types.KindNeedsRendering,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The verdict is the same whether the shell probe runs via the
			// html content type or the fallback probe.
			for _, contentType := range []string{"text/html", ""} {
				page := &types.Page{ContentType: contentType, Body: []byte(tt.body)}
				if got := Classify(page); got != tt.want {
					t.Fatalf("Classify(%q) = %s, want %s", contentType, got, tt.want)
				}
			}
		})
	}
}

func TestNeedsRendering(t *testing.T) {
	tests := []struct {
		name     string
		kind     types.DocKind
		matched  int
		expected int
		want     bool
	}{
		{"html with zero matches where records expected", types.KindHTML, 0, 1, true},
		{"html with matches", types.KindHTML, 3, 1, false},
		{"html with no expectation", types.KindHTML, 0, 0, false},
		{"json never escalates", types.KindJSON, 0, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRendering(tt.kind, tt.matched, tt.expected); got != tt.want {
				t.Fatalf("NeedsRendering() = %v, want %v", got, tt.want)
			}
		})
	}
}
