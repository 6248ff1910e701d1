// Package run tracks verified game runs: an append-only record of
// generate/load/answer-check events per run id, with protocol anomalies
// flagged instead of rejected, and a signable export for third-party
// verification.
package run

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/store"
)

// Error type tags recorded in a run's error log.
const (
	TypeRegen                 = "regen"
	TypeNoPending             = "no_pending"
	TypeNoPendingOnLoad       = "no_pending_on_load"
	TypePendingMismatch       = "pending_mismatch"
	TypePendingMismatchOnLoad = "pending_mismatch_on_load"
	TypeCheckUnloaded         = "check_unloaded"
)

// ErrNotFound reports an unknown run id.
var ErrNotFound = errors.New("run not found")

// Guess is a season/episode pair.
type Guess struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

// Pending is the single resource currently issued to a run and not yet
// answered.
type Pending struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	AssignTS        int64  `json:"assignTs"`
	StartTS         int64  `json:"startTs,omitempty"`
	AssignLatencyMS int64  `json:"assignLatencyMs"`
}

// HistoryEntry is the immutable record of one completed
// generate/load/answer cycle.
type HistoryEntry struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	AssignTS        int64   `json:"assignTs"`
	StartTS         int64   `json:"startTs"`
	GuessTS         int64   `json:"guessTs"`
	Guess           Guess   `json:"guess"`
	Answer          Guess   `json:"answer"`
	AssignLatencyMS int64   `json:"assignLatencyMs"`
	SeekTimeSec     float64 `json:"seekTimeSec"`
}

// ErrorEntry records one detected protocol violation. Entries are appended,
// never removed; they are the cheat-detection signal a verifier inspects.
type ErrorEntry struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	TS          int64    `json:"ts"`
	AttemptedID string   `json:"attemptedId,omitempty"`
	OldPending  *Pending `json:"oldPending,omitempty"`
	NewPending  *Pending `json:"newPending,omitempty"`
	Mismatched  *Pending `json:"mismatched,omitempty"`
}

// State is the persisted per-run record.
type State struct {
	CreationTS int64          `json:"creationTs"`
	Pending    *Pending       `json:"pending"`
	History    []HistoryEntry `json:"history"`
	Errors     []ErrorEntry   `json:"errors"`
	ExpiryTS   *int64         `json:"expiryTs"`
	Version    string         `json:"version"`
}

// IDFunc mints a new unique id for the given purpose tag.
type IDFunc func(purpose string) string

// Tracker owns the run-state and archived-run namespaces and applies the
// run state machine transitions.
type Tracker struct {
	runs     *store.Namespace
	archived *store.Namespace
	logger   *slog.Logger

	expiry  time.Duration
	version string
	newID   IDFunc
	signer  *Signer

	now func() time.Time
}

// NewTracker builds the tracker. The private key is optional; without it,
// exports are unsigned.
func NewTracker(cfg *config.Config, st *store.Store, newID IDFunc, logger *slog.Logger) (*Tracker, error) {
	var signer *Signer
	if cfg.Verification.PrivateKeyPath != "" {
		var err error
		signer, err = LoadSigner(cfg.Verification.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
	}
	return &Tracker{
		runs:     st.Namespace(store.NamespaceRunState),
		archived: st.Namespace(store.NamespaceArchivedRun),
		logger:   logger,
		expiry:   time.Duration(cfg.Expiry.RunExpirySeconds) * time.Second,
		version:  cfg.Verification.SoftwareVersion,
		newID:    newID,
		signer:   signer,
		now:      time.Now,
	}, nil
}

// New creates a fresh run and returns its id.
func (t *Tracker) New(ctx context.Context) (string, error) {
	id := t.newID("run_tracking")
	now := t.now().UnixMilli()
	expiry := now + t.expiry.Milliseconds()
	state := State{
		CreationTS: now,
		History:    []HistoryEntry{},
		Errors:     []ErrorEntry{},
		ExpiryTS:   &expiry,
		Version:    t.version,
	}
	if err := t.runs.Set(ctx, id, state); err != nil {
		return "", err
	}
	t.logger.Info("assigned new run id", logging.String("runId", id))
	return id, nil
}

func (t *Tracker) get(ctx context.Context, runID string) (State, error) {
	var state State
	found, err := t.runs.Get(ctx, runID, &state)
	if err != nil {
		return state, err
	}
	if !found {
		return state, ErrNotFound
	}
	return state, nil
}

// RecordAssign logs that a resource was issued to the run. Assigning while
// another resource is still pending is an anomaly: it is recorded and the
// new assignment overwrites the old one, so the game continues.
func (t *Tracker) RecordAssign(ctx context.Context, runID string, pending Pending) error {
	state, err := t.get(ctx, runID)
	if err != nil {
		return err
	}

	if state.Pending != nil {
		old := *state.Pending
		fresh := pending
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypeRegen,
			Description: "Generated a new clip without answering for the previous clip",
			TS:          pending.AssignTS,
			OldPending:  &old,
			NewPending:  &fresh,
		})
		t.logger.Error("generating a new clip while one is pending", logging.String("runId", runID))
	}
	state.Pending = &pending

	return t.runs.Set(ctx, runID, state)
}

// RecordLoad logs that the client actually fetched the media. Loads with no
// pending entry or a mismatched id are recorded as anomalies and leave the
// pending entry untouched.
func (t *Tracker) RecordLoad(ctx context.Context, runID, resourceID string) error {
	state, err := t.get(ctx, runID)
	if err != nil {
		return err
	}
	now := t.now().UnixMilli()

	switch {
	case state.Pending == nil:
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypeNoPendingOnLoad,
			Description: "Clip loaded, but no clip was expected (state incorrect)",
			TS:          now,
			AttemptedID: resourceID,
		})
	case state.Pending.ID != resourceID:
		mismatched := *state.Pending
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypePendingMismatchOnLoad,
			Description: "Loaded the wrong clip (ids mismatched)",
			TS:          now,
			AttemptedID: resourceID,
			Mismatched:  &mismatched,
		})
	default:
		state.Pending.StartTS = now
	}

	return t.runs.Set(ctx, runID, state)
}

// RecordCheck logs a guess against the pending resource. A clean check
// moves the pending entry into history with the true answer recorded; every
// anomaly branch appends an error and leaves history alone. The run's
// expiry is refreshed either way.
func (t *Tracker) RecordCheck(ctx context.Context, runID, resourceID string, guess, answer Guess, seekTime float64) error {
	state, err := t.get(ctx, runID)
	if err != nil {
		return err
	}
	now := t.now().UnixMilli()
	expiry := now + t.expiry.Milliseconds()
	state.ExpiryTS = &expiry

	switch {
	case state.Pending == nil:
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypeNoPending,
			Description: "Answer given, but no answer was expected (state incorrect)",
			TS:          now,
			AttemptedID: resourceID,
		})
	case state.Pending.ID != resourceID:
		mismatched := *state.Pending
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypePendingMismatch,
			Description: "Answer given for the wrong clip (ids mismatched)",
			TS:          now,
			AttemptedID: resourceID,
			Mismatched:  &mismatched,
		})
	case state.Pending.StartTS == 0:
		state.Errors = append(state.Errors, ErrorEntry{
			Type:        TypeCheckUnloaded,
			Description: "Checking an answer for a clip that was never loaded",
			TS:          now,
			AttemptedID: resourceID,
		})
	default:
		pending := *state.Pending
		state.Pending = nil
		state.History = append(state.History, HistoryEntry{
			ID:              pending.ID,
			Kind:            pending.Kind,
			AssignTS:        pending.AssignTS,
			StartTS:         pending.StartTS,
			GuessTS:         now,
			Guess:           guess,
			Answer:          answer,
			AssignLatencyMS: pending.AssignLatencyMS,
			SeekTimeSec:     seekTime,
		})
	}

	return t.runs.Set(ctx, runID, state)
}

// Export is the verification payload for one run.
type Export struct {
	RunState     State  `json:"runState"`
	SignedString string `json:"signedString,omitempty"`
	Signature    string `json:"signature,omitempty"`
	PublicKey    string `json:"publicKey,omitempty"`
}

// Export serializes the run (live or archived) deterministically and signs
// it when a key is configured.
func (t *Tracker) Export(ctx context.Context, runID string) (*Export, error) {
	var state State
	found, err := t.runs.Get(ctx, runID, &state)
	if err != nil {
		return nil, err
	}
	if !found {
		found, err = t.archived.Get(ctx, runID, &state)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
	}

	export := &Export{RunState: state}
	if t.signer != nil {
		signedString, signature, err := t.signer.Sign(state)
		if err != nil {
			return nil, err
		}
		export.SignedString = signedString
		export.Signature = signature
		export.PublicKey = t.signer.PublicKey()
	}
	return export, nil
}
