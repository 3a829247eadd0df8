package hearth

import (
	"strings"
	"testing"
)

func TestRenderPlainText(t *testing.T) {
	cases := []struct {
		name string
		md   string
		want string
	}{
		{"plain", "Lights are on.", "Lights are on."},
		{"bold", "Lights are **on** now.", "Lights are on now."},
		{"italic", "Playing *Mellow Mix*.", "Playing Mellow Mix."},
		{"code span", "Set mode to `away`.", "Set mode to away."},
		{"link", "See [the schedule](https://example.com/s).", "See the schedule."},
		{"strikethrough", "~~off~~ on", "off on"},
		{"heading", "# Status\n\nAll good.", "Status\nAll good."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderPlainText(tc.md); got != tc.want {
				t.Errorf("RenderPlainText(%q) = %q, want %q", tc.md, got, tc.want)
			}
		})
	}
}

func TestRenderPlainTextLists(t *testing.T) {
	md := "- lights: on\n- music: playing"
	got := RenderPlainText(md)
	if !strings.Contains(got, "- lights: on") || !strings.Contains(got, "- music: playing") {
		t.Errorf("bullets lost:\n%s", got)
	}

	ordered := "1. dim lights\n2. start playlist"
	got = RenderPlainText(ordered)
	if !strings.Contains(got, "1. dim lights") || !strings.Contains(got, "2. start playlist") {
		t.Errorf("numbering lost:\n%s", got)
	}
}

func TestRenderPlainTextCodeBlock(t *testing.T) {
	md := "Run this:\n\n```\nhearth --config hearth.toml\n```"
	got := RenderPlainText(md)
	if !strings.Contains(got, "hearth --config hearth.toml") {
		t.Errorf("code body lost:\n%s", got)
	}
	if strings.Contains(got, "```") {
		t.Errorf("fence markers leaked:\n%s", got)
	}
}

func TestRenderPlainTextEmpty(t *testing.T) {
	if got := RenderPlainText(""); got != "" {
		t.Errorf("empty input = %q", got)
	}
	if got := RenderPlainText("   \n  "); got != "" {
		t.Errorf("whitespace input = %q", got)
	}
}
