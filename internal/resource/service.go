package resource

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/store"
)

// Service owns serve-time expiry stamping and early cleanup of clips. It is
// shared by the HTTP layer and the cleanup daemon so both mutate the answer
// and resource-state namespaces the same way.
type Service struct {
	answers  *store.Namespace
	states   *store.Namespace
	registry *Registry
	logger   *slog.Logger

	outputDir      string
	answerExpiry   time.Duration
	resourceExpiry time.Duration

	now func() time.Time
}

// NewService constructs the resource lifecycle service.
func NewService(cfg *config.Config, st *store.Store, registry *Registry, logger *slog.Logger) *Service {
	return &Service{
		answers:        st.Namespace(store.NamespaceAnswer),
		states:         st.Namespace(store.NamespaceResourceState),
		registry:       registry,
		logger:         logger,
		outputDir:      cfg.Paths.OutputDir,
		answerExpiry:   time.Duration(cfg.Expiry.AnswerExpirySeconds) * time.Second,
		resourceExpiry: time.Duration(cfg.Expiry.ResourceExpirySeconds) * time.Second,
		now:            time.Now,
	}
}

// Answers returns the answer namespace handle.
func (s *Service) Answers() *store.Namespace { return s.answers }

// States returns the resource-state namespace handle.
func (s *Service) States() *store.Namespace { return s.states }

// Registry returns the kind registry.
func (s *Service) Registry() *Registry { return s.registry }

// MarkServed stamps expiry times on the answer and resource-state entries
// for a clip that was just handed to a client. Entries already cleaned up
// are skipped; the race with cleanup is tolerated, not locked away.
func (s *Service) MarkServed(ctx context.Context, id string) error {
	now := s.now()

	var answer Answer
	found, err := s.answers.Get(ctx, id, &answer)
	if err != nil {
		return err
	}
	if found {
		expiry := now.Add(s.answerExpiry)
		answer.ExpiresAt = &expiry
		if err := s.answers.Set(ctx, id, answer); err != nil {
			return err
		}
	}

	var state State
	found, err = s.states.Get(ctx, id, &state)
	if err != nil {
		return err
	}
	if found {
		expiry := now.Add(s.resourceExpiry)
		state.ExpiresAt = &expiry
		if err := s.states.Set(ctx, id, state); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes the resource-state entry and backing file for a clip, and
// optionally the answer too. Unknown ids are not an error: the clip may have
// expired before the client navigated on.
func (s *Service) Cleanup(ctx context.Context, id string, cleanupAnswer bool) {
	known := false
	if has, err := s.states.Has(ctx, id); err == nil && has {
		known = true
	}
	if !known && cleanupAnswer {
		if has, err := s.answers.Has(ctx, id); err == nil && has {
			known = true
		}
	}
	if !known {
		s.logger.Info("cleanup requested on unknown clip", logging.String("id", id))
		return
	}

	var state State
	stateFound, err := s.states.Get(ctx, id, &state)
	if err != nil {
		s.logger.Error("read clip state for cleanup", logging.String("id", id), logging.Error(err))
	}

	if err := s.states.Remove(ctx, id); err != nil {
		s.logger.Error("remove clip state", logging.String("id", id), logging.Error(err))
	}
	if cleanupAnswer {
		if err := s.answers.Remove(ctx, id); err != nil {
			s.logger.Error("remove stored answer", logging.String("id", id), logging.Error(err))
		}
	}

	s.removeFile(id, state, stateFound)
}

// CleanupAnswer removes only the stored answer, used after a guess is
// checked and the answer has been revealed.
func (s *Service) CleanupAnswer(ctx context.Context, id string) {
	if err := s.answers.Remove(ctx, id); err != nil {
		s.logger.Error("remove stored answer", logging.String("id", id), logging.Error(err))
		return
	}
	s.logger.Info("cleaned up stored answer", logging.String("id", id))
}

func (s *Service) removeFile(id string, state State, stateFound bool) {
	exts := s.registry.Extensions()
	if stateFound {
		if kind, ok := s.registry.Lookup(state.Kind); ok {
			exts = []string{kind.Ext}
		}
	}
	for _, ext := range exts {
		path := PathForID(s.outputDir, id, ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("remove clip file", logging.String("file", path), logging.Error(err))
		}
	}
}
