package viewer

import (
	"strings"
	"testing"

	"github.com/HandleConsolidated/xtool/internal/devicemodel"
)

func TestGenerateContainsBootstrapMarkers(t *testing.T) {
	html, err := Generate("Stub", devicemodel.Lookup("iPhone15,2"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{"xtool-preview", "/ws", "/stream", "<img"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected generated page to contain %q", want)
		}
	}
}

func TestGenerateEscapesDeviceName(t *testing.T) {
	html, err := Generate(`<script>alert("x")</script>`, devicemodel.Lookup("iPhone15,2"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Fatal("device name should be HTML-escaped, not injected raw")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Fatal("expected escaped device name in output")
	}
}

func TestGenerateScalesFrameToPreviewWidth(t *testing.T) {
	display := devicemodel.DisplayInfo{ScreenWidth: 1000, ScreenHeight: 2000, CornerRadius: 50}
	html, err := Generate("Stub", display)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(html, "width: 320px") {
		t.Fatal("expected frame scaled to the 320px preview width")
	}
	if !strings.Contains(html, "height: 640px") {
		t.Fatal("expected frame height scaled to preserve aspect ratio")
	}
}

func TestStyleClassNameCoversAllStyles(t *testing.T) {
	tests := []struct {
		style devicemodel.DisplayStyle
		want  string
	}{
		{devicemodel.StyleHomeButton, "style-home-button"},
		{devicemodel.StyleNotch, "style-notch"},
		{devicemodel.StyleDynamicIsland, "style-dynamic-island"},
	}
	for _, tt := range tests {
		if got := styleClassName(tt.style); got != tt.want {
			t.Errorf("styleClassName(%q) = %q, want %q", tt.style, got, tt.want)
		}
	}
}
