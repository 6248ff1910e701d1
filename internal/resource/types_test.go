package resource_test

import (
	"strings"
	"testing"

	"framerand/internal/resource"
	"framerand/internal/testsupport"
)

func TestKindForOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Producer.SubtitleSources = true
	registry := resource.NewRegistry(cfg)

	cases := []struct {
		name         string
		resourceType string
		subtitles    bool
		audioSeconds int
		want         string
		wantErr      bool
	}{
		{"plain frame", "", false, 0, "frame", false},
		{"frame with subtitles", "frame", true, 0, "frameWithSubtitles", false},
		{"audio 10s", "audio", false, 10, "audio10s", false},
		{"audio bad length", "audio", false, 7, "", true},
		{"audio length omitted", "audio", false, 0, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := registry.KindForOptions(tc.resourceType, tc.subtitles, tc.audioSeconds)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tc.resourceType == "audio" && !strings.Contains(err.Error(), "audioLength must be") {
					t.Fatalf("unhelpful error for bad audio length: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("KindForOptions failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestSubtitleKindNotRegisteredByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := resource.NewRegistry(cfg)

	if _, err := registry.KindForOptions("frame", true, 0); err == nil {
		t.Fatal("expected frameWithSubtitles to be unregistered")
	}
}

func TestExtensionsAreDeduplicated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := resource.NewRegistry(cfg)

	exts := registry.Extensions()
	if len(exts) != 2 {
		t.Fatalf("expected image+audio extensions, got %v", exts)
	}
	if exts[0] != cfg.Producer.ImageExtension || exts[1] != cfg.Producer.AudioExtension {
		t.Fatalf("unexpected extensions: %v", exts)
	}
}

func TestPathForID(t *testing.T) {
	got := resource.PathForID("/var/clips", "abc-123", "webp")
	if got != "/var/clips/abc-123.webp" {
		t.Fatalf("unexpected path: %q", got)
	}
}
