package resource

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"framerand/internal/config"
)

// Answer is the hidden solution for a generated clip, keyed by resource id.
// ExpiresAt stays nil until the clip is served; a nil expiry marks a clip
// that was produced but never handed out.
type Answer struct {
	Season    int        `json:"season"`
	Episode   int        `json:"episode"`
	SeekTime  float64    `json:"seekTime"`
	ExpiresAt *time.Time `json:"expiryTs"`
}

// State is the lifecycle bookkeeping for a generated clip, keyed by the same
// resource id as its Answer. The two entries are written independently and
// reconciled by recovery/cleanup when they diverge.
type State struct {
	Kind      string     `json:"kind"`
	ExpiresAt *time.Time `json:"expiryTs"`
}

// Media distinguishes what a kind extracts from the source video.
type Media int

const (
	MediaImage Media = iota
	MediaAudio
)

// Kind describes one clip variant the daemon can pregenerate.
type Kind struct {
	Name         string
	Media        Media
	AudioSeconds int
	Subtitles    bool
	Ext          string
}

// ErrUnknownKind reports a kind name with no registration.
var ErrUnknownKind = errors.New("unknown resource kind")

// Registry holds the kinds this instance serves, in registration order.
type Registry struct {
	kinds  []Kind
	byName map[string]Kind
}

// NewRegistry builds the kind registry from config. Audio kinds are always
// registered; frameWithSubtitles only when subtitle sources are enabled.
func NewRegistry(cfg *config.Config) *Registry {
	imageExt := cfg.Producer.ImageExtension
	audioExt := cfg.Producer.AudioExtension

	kinds := []Kind{
		{Name: "frame", Media: MediaImage, Ext: imageExt},
	}
	if cfg.Producer.SubtitleSources {
		kinds = append(kinds, Kind{Name: "frameWithSubtitles", Media: MediaImage, Subtitles: true, Ext: imageExt})
	}
	for _, seconds := range []int{5, 10, 15} {
		kinds = append(kinds, Kind{
			Name:         "audio" + strconv.Itoa(seconds) + "s",
			Media:        MediaAudio,
			AudioSeconds: seconds,
			Ext:          audioExt,
		})
	}

	byName := make(map[string]Kind, len(kinds))
	for _, kind := range kinds {
		byName[kind.Name] = kind
	}
	return &Registry{kinds: kinds, byName: byName}
}

// All returns the registered kinds in registration order.
func (r *Registry) All() []Kind {
	out := make([]Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Lookup resolves a kind by name.
func (r *Registry) Lookup(name string) (Kind, bool) {
	kind, ok := r.byName[name]
	return kind, ok
}

// Extensions returns the distinct media extensions across all kinds.
func (r *Registry) Extensions() []string {
	seen := make(map[string]struct{}, 2)
	var exts []string
	for _, kind := range r.kinds {
		if _, ok := seen[kind.Ext]; ok {
			continue
		}
		seen[kind.Ext] = struct{}{}
		exts = append(exts, kind.Ext)
	}
	return exts
}

// KindForOptions maps client clip options to a registered kind name.
// resourceType is "" or "frame" for images, "audio" for audio snippets.
func (r *Registry) KindForOptions(resourceType string, subtitles bool, audioSeconds int) (string, error) {
	if resourceType == "audio" {
		name := "audio" + strconv.Itoa(audioSeconds) + "s"
		if _, ok := r.byName[name]; !ok {
			return "", fmt.Errorf("%w: audioLength must be 5, 10, or 15", ErrUnknownKind)
		}
		return name, nil
	}
	name := "frame"
	if subtitles {
		name = "frameWithSubtitles"
	}
	if _, ok := r.byName[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return name, nil
}

// PathForID returns the on-disk media path for a resource id and extension.
func PathForID(outputDir, id, ext string) string {
	return filepath.Join(outputDir, id+"."+ext)
}
