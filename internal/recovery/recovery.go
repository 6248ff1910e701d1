// Package recovery reconciles on-disk clips against persisted bookkeeping
// after a restart, salvaging clips that were produced but never served by
// the previous process instance.
package recovery

import (
	"context"
	"log/slog"
	"os"

	"framerand/internal/logging"
	"framerand/internal/resource"
)

// Result is the outcome of one recovery pass.
type Result struct {
	// PreproducedByKind holds the salvaged resource ids, grouped by kind,
	// ready to seed the production queue.
	PreproducedByKind map[string][]string

	Recovered   int
	ServedFile  int
	MissingFile int
	NoAnswer    int
}

// Run walks every resource-state entry and classifies it: salvageable,
// already served, inconsistent with the answer namespace, or inconsistent
// with the filesystem. Inconsistent entries are repaired by deletion.
// Recovery is never fatal; whatever could not be inspected is simply not
// salvaged.
func Run(ctx context.Context, svc *resource.Service, outputDir string, logger *slog.Logger) Result {
	result := Result{PreproducedByKind: make(map[string][]string)}

	ids, err := svc.States().Keys(ctx)
	if err != nil {
		logger.Error("list resource state for recovery", logging.Error(err))
		return result
	}

	for _, id := range ids {
		var state resource.State
		found, err := svc.States().Get(ctx, id, &state)
		if err != nil {
			logger.Error("read resource state", logging.String("id", id), logging.Error(err))
			continue
		}
		if !found {
			// Cleaned up between listing and read.
			continue
		}

		var answer resource.Answer
		answerFound, err := svc.Answers().Get(ctx, id, &answer)
		if err != nil {
			logger.Error("read stored answer", logging.String("id", id), logging.Error(err))
			continue
		}
		if !answerFound {
			// State without an answer is unplayable.
			logger.Warn("clip state has no answer, discarding", logging.String("id", id))
			svc.Cleanup(ctx, id, false)
			result.NoAnswer++
			continue
		}

		if state.ExpiresAt != nil {
			// Already served; the cleanup daemon owns its expiry.
			result.ServedFile++
			continue
		}

		kind, ok := svc.Registry().Lookup(state.Kind)
		if !ok {
			// A kind that is no longer configured cannot be served.
			logger.Warn("clip has unconfigured kind, discarding",
				logging.String("id", id),
				logging.String("kind", state.Kind),
			)
			svc.Cleanup(ctx, id, true)
			result.MissingFile++
			continue
		}

		path := resource.PathForID(outputDir, id, kind.Ext)
		if _, err := os.Stat(path); err != nil {
			logger.Warn("clip file missing, discarding state", logging.String("id", id))
			svc.Cleanup(ctx, id, true)
			result.MissingFile++
			continue
		}

		result.PreproducedByKind[kind.Name] = append(result.PreproducedByKind[kind.Name], id)
		result.Recovered++
	}

	logger.Info("clip recovery finished",
		logging.Int("recovered", result.Recovered),
		logging.Int("servedFile", result.ServedFile),
		logging.Int("missingFile", result.MissingFile),
		logging.Int("noAnswer", result.NoAnswer),
	)
	return result
}
