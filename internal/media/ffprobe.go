package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"framerand/internal/store"
)

var commandContext = exec.CommandContext

type cachedDuration struct {
	Length float64 `json:"length"`
}

// Prober measures episode durations with ffprobe, optionally caching results
// in the state database so restarts skip the probe entirely.
type Prober struct {
	binary string
	cache  *store.Namespace
}

// NewProber constructs a Prober. A nil cache namespace disables caching.
func NewProber(binary string, cache *store.Namespace) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, cache: cache}
}

// Duration returns the length of the video in seconds.
func (p *Prober) Duration(ctx context.Context, videoPath string) (float64, error) {
	if p.cache != nil {
		var cached cachedDuration
		if found, err := p.cache.Get(ctx, videoPath, &cached); err == nil && found && cached.Length > 0 {
			return cached.Length, nil
		}
	}

	cmd := commandContext(ctx, p.binary,
		"-i", videoPath,
		"-show_entries", "format=duration",
		"-v", "quiet",
		"-of", "csv=p=0",
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", videoPath, err)
	}
	length, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration for %q: %w", videoPath, err)
	}

	if p.cache != nil {
		// Best effort; a failed cache write only costs a re-probe.
		_ = p.cache.Set(ctx, videoPath, cachedDuration{Length: length})
	}
	return length, nil
}
