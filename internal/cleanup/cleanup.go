// Package cleanup bounds storage growth: it expires stale answers and
// clips, deletes orphaned media files, and archives or discards expired
// runs on a fixed interval.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/resource"
	"framerand/internal/run"
	"framerand/internal/store"
)

// Daemon runs the three cleanup sweeps on every tick.
type Daemon struct {
	svc      *resource.Service
	answers  *store.Namespace
	states   *store.Namespace
	runs     *store.Namespace
	archived *store.Namespace
	logger   *slog.Logger

	outputDir          string
	interval           time.Duration
	retentionThreshold int

	// listGap separates the two directory listings of the orphan sweep.
	listGap time.Duration

	now func() time.Time
}

// NewDaemon builds the cleanup daemon.
func NewDaemon(cfg *config.Config, st *store.Store, svc *resource.Service, logger *slog.Logger) *Daemon {
	return &Daemon{
		svc:                svc,
		answers:            st.Namespace(store.NamespaceAnswer),
		states:             st.Namespace(store.NamespaceResourceState),
		runs:               st.Namespace(store.NamespaceRunState),
		archived:           st.Namespace(store.NamespaceArchivedRun),
		logger:             logger,
		outputDir:          cfg.Paths.OutputDir,
		interval:           time.Duration(cfg.Expiry.CleanupIntervalSeconds) * time.Second,
		retentionThreshold: cfg.Expiry.RunRetentionThreshold,
		listGap:            time.Second,
		now:                time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunOnce performs one full cleanup pass. Every deletion is independent and
// best-effort; an error on one entry never aborts the rest.
func (d *Daemon) RunOnce(ctx context.Context) {
	start := d.now()
	d.sweepAnswers(ctx)
	d.sweepResources(ctx)
	d.sweepRuns(ctx)
	d.logger.Info("cleanup pass done", logging.Duration("elapsed", d.now().Sub(start)))
}

func (d *Daemon) sweepAnswers(ctx context.Context) {
	ids, err := d.answers.Keys(ctx)
	if err != nil {
		d.logger.Error("list answers for cleanup", logging.Error(err))
		return
	}
	now := d.now()
	for _, id := range ids {
		var answer resource.Answer
		found, err := d.answers.Get(ctx, id, &answer)
		if err != nil || !found {
			continue
		}
		if answer.ExpiresAt != nil && answer.ExpiresAt.Before(now) {
			d.logger.Info("cleaning up expired answer", logging.String("id", id))
			if err := d.answers.Remove(ctx, id); err != nil {
				d.logger.Error("remove expired answer", logging.String("id", id), logging.Error(err))
			}
		}
	}
}

// sweepResources deletes orphaned media files and expired clips. Files are
// listed twice, listGap apart, and only files present in both listings are
// orphan candidates: a file that appears once may be a production job
// mid-write.
func (d *Daemon) sweepResources(ctx context.Context) {
	ids, err := d.states.Keys(ctx)
	if err != nil {
		d.logger.Error("list resource state for cleanup", logging.Error(err))
		return
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	for _, ext := range d.svc.Registry().Extensions() {
		d.sweepOrphans(ctx, known, ext)
	}

	now := d.now()
	for _, id := range ids {
		var state resource.State
		found, err := d.states.Get(ctx, id, &state)
		if err != nil || !found {
			continue
		}
		if state.ExpiresAt != nil && !state.ExpiresAt.After(now) {
			d.logger.Info("cleaning up expired clip",
				logging.String("id", id),
				logging.String("kind", state.Kind),
			)
			d.svc.Cleanup(ctx, id, false)
		}
	}
}

func (d *Daemon) sweepOrphans(ctx context.Context, known map[string]struct{}, ext string) {
	pattern := filepath.Join(d.outputDir, "*."+ext)
	first, err := filepath.Glob(pattern)
	if err != nil {
		d.logger.Error("list clip files", logging.String("pattern", pattern), logging.Error(err))
		return
	}
	select {
	case <-time.After(d.listGap):
	case <-ctx.Done():
		return
	}
	second, err := filepath.Glob(pattern)
	if err != nil {
		d.logger.Error("list clip files", logging.String("pattern", pattern), logging.Error(err))
		return
	}

	inFirst := make(map[string]struct{}, len(first))
	for _, file := range first {
		inFirst[file] = struct{}{}
	}
	idRe := regexp.MustCompile(`([0-9a-f-]+)\.` + regexp.QuoteMeta(ext) + `$`)
	for _, file := range second {
		if _, ok := inFirst[file]; !ok {
			continue
		}
		match := idRe.FindStringSubmatch(filepath.Base(file))
		if match == nil {
			continue
		}
		if _, ok := known[match[1]]; ok {
			continue
		}
		d.logger.Info("cleaning up orphaned clip file", logging.String("file", file))
		if err := os.Remove(file); err != nil {
			d.logger.Error("remove orphaned clip file", logging.String("file", file), logging.Error(err))
		}
	}
}

// sweepRuns removes expired runs (an unset expiry means eligible
// immediately). Runs with enough history are archived with their expiry
// cleared instead of being discarded.
func (d *Daemon) sweepRuns(ctx context.Context) {
	ids, err := d.runs.Keys(ctx)
	if err != nil {
		d.logger.Error("list runs for cleanup", logging.Error(err))
		return
	}
	now := d.now().UnixMilli()
	for _, id := range ids {
		var state run.State
		found, err := d.runs.Get(ctx, id, &state)
		if err != nil || !found {
			continue
		}
		if state.ExpiryTS != nil && *state.ExpiryTS >= now {
			continue
		}

		if len(state.History) >= d.retentionThreshold {
			state.ExpiryTS = nil
			if err := d.archived.Set(ctx, id, state); err != nil {
				d.logger.Error("archive run", logging.String("runId", id), logging.Error(err))
				continue
			}
			d.logger.Info("archived completed run", logging.String("runId", id))
		} else {
			d.logger.Info("cleaned up expired run", logging.String("runId", id))
		}
		if err := d.runs.Remove(ctx, id); err != nil {
			d.logger.Error("remove expired run", logging.String("runId", id), logging.Error(err))
		}
	}
}
