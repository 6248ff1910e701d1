package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/queue"
	"framerand/internal/resource"
	"framerand/internal/run"
)

// Server wires the HTTP handlers to the production queue, resource service,
// and run tracker.
type Server struct {
	bind     string
	version  string
	instance string
	cacheAge int

	library *media.Library
	svc     *resource.Service
	queue   *queue.ProducerQueue
	tracker *run.Tracker
	logger  *slog.Logger

	outputDir string

	background sync.WaitGroup
	now        func() time.Time
}

// NewServer builds the API server.
func NewServer(cfg *config.Config, library *media.Library, svc *resource.Service, q *queue.ProducerQueue, tracker *run.Tracker, logger *slog.Logger) *Server {
	return &Server{
		bind:      cfg.Paths.APIBind,
		version:   cfg.Verification.SoftwareVersion,
		instance:  cfg.Verification.InstanceName,
		cacheAge:  60 * 60 * 24 * 7,
		library:   library,
		svc:       svc,
		queue:     q,
		tracker:   tracker,
		logger:    logger,
		outputDir: cfg.Paths.OutputDir,
		now:       time.Now,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/resource/gen", s.handleGen)
	mux.HandleFunc("GET /api/resource/media/{basename}", s.handleMedia)
	mux.HandleFunc("POST /api/resource/cleanup/{id}", s.handleCleanup)
	mux.HandleFunc("GET /api/resource/check/{id}", s.handleCheck)
	mux.HandleFunc("POST /api/run/new", s.handleRunNew)
	mux.HandleFunc("GET /api/run/{id}/verify", s.handleRunVerify)
	mux.HandleFunc("GET /api/show", s.handleShow)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", recorder.status),
			logging.Duration("elapsed", s.now().Sub(start)),
		)
	})
}

// Run serves until ctx is cancelled, then drains background cleanups.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	server := &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("api listening", logging.String("bind", listener.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
	case err = <-errCh:
	}
	s.background.Wait()
	return err
}

// goBackground runs a best-effort task detached from the request that
// triggered it, but tracked so shutdown can drain it.
func (s *Server) goBackground(task func(ctx context.Context)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		task(ctx)
	}()
}

type genResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	AssignLatencyMS int64  `json:"assignLatencyMs"`
}

func (s *Server) handleGen(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if cleanupID := query.Get("cleanupId"); cleanupID != "" {
		// Navigation-away cleanup; the response does not depend on it.
		s.logger.Info("cleaning up clip on navigation", logging.String("id", cleanupID))
		s.goBackground(func(ctx context.Context) {
			s.svc.Cleanup(ctx, cleanupID, false)
		})
	}

	kind, err := s.svc.Registry().KindForOptions(
		query.Get("resourceType"),
		boolParam(query.Get("subtitles")),
		intParam(query.Get("audioLength")),
	)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := s.now()
	id, err := s.nextResource(r.Context(), kind)
	if err != nil {
		httpError(w, http.StatusServiceUnavailable, "clip production unavailable")
		return
	}
	assignLatency := s.now().Sub(start).Milliseconds()
	s.logger.Info("clip assigned",
		logging.String("id", id),
		logging.String("kind", kind),
		logging.Int64("assignLatencyMs", assignLatency),
	)

	s.goBackground(func(ctx context.Context) {
		if err := s.svc.MarkServed(ctx, id); err != nil {
			s.logger.Error("mark clip served", logging.String("id", id), logging.Error(err))
		}
	})

	if runID := query.Get("runId"); runID != "" {
		pending := run.Pending{
			ID:              id,
			Kind:            kind,
			AssignTS:        start.UnixMilli(),
			AssignLatencyMS: assignLatency,
		}
		if err := s.tracker.RecordAssign(r.Context(), runID, pending); err != nil {
			if errors.Is(err, run.ErrNotFound) {
				httpError(w, http.StatusBadRequest, "runId does not exist")
				return
			}
			s.logger.Error("record assignment to run", logging.String("runId", runID), logging.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, genResponse{ID: id, Kind: kind, AssignLatencyMS: assignLatency})
}

// nextResource loops on the queue until a clip comes out: production
// failures are always retryable at this level, so only context cancellation
// gives up.
func (s *Server) nextResource(ctx context.Context, kind string) (string, error) {
	for {
		id, err := s.queue.Next(ctx, kind)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, resource.ErrUnknownKind) || ctx.Err() != nil {
			return "", err
		}
		s.logger.Error("error reserving pregenerated clip", logging.String("kind", kind), logging.Error(err))
	}
}

func pathTraversal(name string) bool {
	return strings.ContainsAny(name, `/\`) || strings.Contains(name, "..")
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	basename := r.PathValue("basename")
	if pathTraversal(basename) {
		httpError(w, http.StatusBadRequest, "bad basename")
		return
	}
	var id string
	for _, ext := range s.svc.Registry().Extensions() {
		if strings.HasSuffix(basename, "."+ext) {
			id = strings.TrimSuffix(basename, "."+ext)
			break
		}
	}
	if id == "" {
		httpError(w, http.StatusBadRequest, "unknown extension")
		return
	}

	// The clip path is a UUID that never changes, so client caching is safe.
	w.Header().Set("Cache-Control", fmt.Sprintf("private, immutable, max-age=%d", s.cacheAge))
	http.ServeFile(w, r, s.outputDir+"/"+basename)

	if runID := r.URL.Query().Get("runId"); runID != "" {
		s.goBackground(func(ctx context.Context) {
			if err := s.tracker.RecordLoad(ctx, runID, id); err != nil && !errors.Is(err, run.ErrNotFound) {
				s.logger.Error("record load to run", logging.String("runId", runID), logging.Error(err))
			}
		})
	}
	if boolParam(r.URL.Query().Get("cleanup")) {
		s.logger.Info("cleaning up clip on load", logging.String("id", id))
		s.goBackground(func(ctx context.Context) {
			s.svc.Cleanup(ctx, id, false)
		})
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.goBackground(func(ctx context.Context) {
		s.svc.Cleanup(ctx, id, false)
	})
	writeJSON(w, http.StatusOK, struct{}{})
}

type checkResponse struct {
	Season   int     `json:"season"`
	Episode  int     `json:"episode"`
	SeekTime float64 `json:"seekTime"`
	Correct  bool    `json:"correct"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	query := r.URL.Query()
	guess := run.Guess{Season: intParam(query.Get("season")), Episode: intParam(query.Get("episode"))}

	var answer resource.Answer
	found, err := s.svc.Answers().Get(r.Context(), id, &answer)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "answer lookup failed")
		return
	}
	if !found {
		httpError(w, http.StatusNotFound, fmt.Sprintf("answer not found for id %q", id))
		return
	}

	// The answer is revealed with this response, so it can go.
	s.goBackground(func(ctx context.Context) {
		s.svc.CleanupAnswer(ctx, id)
	})

	correct := answer.Season == guess.Season && answer.Episode == guess.Episode

	if runID := query.Get("runId"); runID != "" {
		truth := run.Guess{Season: answer.Season, Episode: answer.Episode}
		if err := s.tracker.RecordCheck(r.Context(), runID, id, guess, truth, answer.SeekTime); err != nil {
			// A bad run id must not block revealing the answer.
			s.logger.Error("record check to run", logging.String("runId", runID), logging.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Season:   answer.Season,
		Episode:  answer.Episode,
		SeekTime: answer.SeekTime,
		Correct:  correct,
	})
}

func (s *Server) handleRunNew(w http.ResponseWriter, r *http.Request) {
	runID, err := s.tracker.New(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "could not create run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"runId": runID})
}

func (s *Server) handleRunVerify(w http.ResponseWriter, r *http.Request) {
	export, err := s.tracker.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			httpError(w, http.StatusNotFound, "run not found")
			return
		}
		httpError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("language")
	if requested == "" {
		requested = r.Header.Get("Accept-Language")
	}
	language, show := s.library.ClientDataFor(requested)
	w.Header().Set("Content-Language", language)
	writeJSON(w, http.StatusOK, show)
}

type statusResponse struct {
	Instance string       `json:"instance"`
	Version  string       `json:"version"`
	Episodes int          `json:"episodes"`
	Queue    queue.Status `json:"queue"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Instance: s.instance,
		Version:  s.version,
		Episodes: len(s.library.Episodes),
		Queue:    s.queue.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolParam(value string) bool {
	return value != "" && value != "false" && value != "0"
}

func intParam(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
