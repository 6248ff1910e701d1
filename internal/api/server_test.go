package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/queue"
	"framerand/internal/resource"
	"framerand/internal/run"
	"framerand/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	svc     *resource.Service
	tracker *run.Tracker
	server  *Server
	ts      *httptest.Server

	produced atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	registry := resource.NewRegistry(cfg)
	svc := resource.NewService(cfg, st, registry, logging.NewNop())

	f := &fixture{cfg: cfg, svc: svc}

	sources := make(map[string]queue.KindSource)
	var order []string
	for _, kind := range registry.All() {
		kind := kind
		sources[kind.Name] = queue.KindSource{Produce: func(ctx context.Context) (string, error) {
			return f.produceClip(ctx, kind)
		}}
		order = append(order, kind.Name)
	}
	q := queue.New(sources, order, queue.Options{
		MaxPending:          2,
		MaintenanceInterval: time.Hour,
	}, logging.NewNop())
	t.Cleanup(q.Close)

	var runSeq atomic.Int64
	newID := func(purpose string) string {
		return fmt.Sprintf("%s-%d", purpose, runSeq.Add(1))
	}
	tracker, err := run.NewTracker(cfg, st, newID, logging.NewNop())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	f.tracker = tracker

	library := &media.Library{
		Episodes:        []media.Episode{{Season: 2, Episode: 7, GenLength: 1200}},
		DefaultLanguage: "en",
	}

	f.server = NewServer(cfg, library, svc, q, tracker, logging.NewNop())
	f.ts = httptest.NewServer(f.server.Handler())
	t.Cleanup(f.ts.Close)
	t.Cleanup(f.server.background.Wait)
	return f
}

func (f *fixture) produceClip(ctx context.Context, kind resource.Kind) (string, error) {
	id := fmt.Sprintf("clip-%d", f.produced.Add(1))
	answer := resource.Answer{Season: 2, Episode: 7, SeekTime: 421.5}
	if err := f.svc.Answers().Set(ctx, id, answer); err != nil {
		return "", err
	}
	if err := f.svc.States().Set(ctx, id, resource.State{Kind: kind.Name}); err != nil {
		return "", err
	}
	path := resource.PathForID(f.cfg.Paths.OutputDir, id, kind.Ext)
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		return "", err
	}
	return id, nil
}

// seedClip stores an answer, state, and file directly, bypassing the queue.
func (f *fixture) seedClip(t *testing.T, id, kindName string) {
	t.Helper()
	ctx := context.Background()
	kind, ok := f.svc.Registry().Lookup(kindName)
	if !ok {
		t.Fatalf("unknown kind %q", kindName)
	}
	if err := f.svc.Answers().Set(ctx, id, resource.Answer{Season: 2, Episode: 7, SeekTime: 421.5}); err != nil {
		t.Fatalf("seed answer: %v", err)
	}
	if err := f.svc.States().Set(ctx, id, resource.State{Kind: kind.Name}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	path := resource.PathForID(f.cfg.Paths.OutputDir, id, kind.Ext)
	if err := os.WriteFile(path, []byte("clip"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
}

func (f *fixture) waitBackground() {
	f.server.background.Wait()
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestGenServesClip(t *testing.T) {
	f := newFixture(t)

	var got genResponse
	status := getJSON(t, f.ts.URL+"/api/resource/gen?resourceType=audio&audioLength=10", &got)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got.ID == "" || got.Kind != "audio10s" {
		t.Fatalf("response = %+v, want non-empty id and kind audio10s", got)
	}

	f.waitBackground()
	var state resource.State
	found, err := f.svc.States().Get(context.Background(), got.ID, &state)
	if err != nil || !found {
		t.Fatalf("state lookup: found=%v err=%v", found, err)
	}
	if state.ExpiresAt == nil {
		t.Fatal("served clip state has no expiry")
	}
}

func TestGenRejectsUnknownOptions(t *testing.T) {
	f := newFixture(t)
	status := getJSON(t, f.ts.URL+"/api/resource/gen?resourceType=audio&audioLength=7", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestGenRejectsUnknownRun(t *testing.T) {
	f := newFixture(t)
	status := getJSON(t, f.ts.URL+"/api/resource/gen?resourceType=frame&runId=no-such-run", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestGenRecordsAssignment(t *testing.T) {
	f := newFixture(t)

	var created struct {
		RunID string `json:"runId"`
	}
	if status := postJSON(t, f.ts.URL+"/api/run/new", &created); status != http.StatusOK {
		t.Fatalf("run new status = %d", status)
	}

	var got genResponse
	status := getJSON(t, f.ts.URL+"/api/resource/gen?resourceType=frame&runId="+created.RunID, &got)
	if status != http.StatusOK {
		t.Fatalf("gen status = %d, want 200", status)
	}

	var export run.Export
	if status := getJSON(t, f.ts.URL+"/api/run/"+created.RunID+"/verify", &export); status != http.StatusOK {
		t.Fatalf("verify status = %d", status)
	}
	if export.RunState.Pending == nil || export.RunState.Pending.ID != got.ID {
		t.Fatalf("pending = %+v, want clip %s", export.RunState.Pending, got.ID)
	}
	if export.RunState.Pending.AssignTS == 0 {
		t.Fatal("pending has no assign timestamp")
	}
}

func TestGenCleansUpPreviousClip(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "previous", "frame")

	status := getJSON(t, f.ts.URL+"/api/resource/gen?resourceType=frame&cleanupId=previous", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	f.waitBackground()
	ctx := context.Background()
	if has, _ := f.svc.States().Has(ctx, "previous"); has {
		t.Fatal("previous clip state was not removed")
	}
	kind, _ := f.svc.Registry().Lookup("frame")
	path := resource.PathForID(f.cfg.Paths.OutputDir, "previous", kind.Ext)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("previous clip file still present: %v", err)
	}
}

func TestMediaServesClip(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "served", "frame")
	kind, _ := f.svc.Registry().Lookup("frame")

	resp, err := http.Get(f.ts.URL + "/api/resource/media/served." + kind.Ext)
	if err != nil {
		t.Fatalf("GET media: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "clip" {
		t.Fatalf("body = %q, want clip contents", body)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Fatalf("Cache-Control = %q, want immutable", cc)
	}
}

func TestMediaRejectsBadBasenames(t *testing.T) {
	f := newFixture(t)
	for _, basename := range []string{"..secret.webp", "clip.txt"} {
		status := getJSON(t, f.ts.URL+"/api/resource/media/"+basename, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("basename %q: status = %d, want 400", basename, status)
		}
	}
}

func TestMediaMissingClip(t *testing.T) {
	f := newFixture(t)
	status := getJSON(t, f.ts.URL+"/api/resource/media/absent.webp", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestMediaCleanupOnLoad(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "oneshot", "frame")
	kind, _ := f.svc.Registry().Lookup("frame")

	status := getJSON(t, f.ts.URL+"/api/resource/media/oneshot."+kind.Ext+"?cleanup=true", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	f.waitBackground()
	path := resource.PathForID(f.cfg.Paths.OutputDir, "oneshot", kind.Ext)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("clip file survived cleanup-on-load: %v", err)
	}
	if has, _ := f.svc.States().Has(context.Background(), "oneshot"); has {
		t.Fatal("clip state survived cleanup-on-load")
	}
}

func TestMediaRecordsLoad(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "loaded", "frame")
	kind, _ := f.svc.Registry().Lookup("frame")

	ctx := context.Background()
	runID, err := f.tracker.New(ctx)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	pending := run.Pending{ID: "loaded", Kind: "frame", AssignTS: time.Now().UnixMilli()}
	if err := f.tracker.RecordAssign(ctx, runID, pending); err != nil {
		t.Fatalf("record assign: %v", err)
	}

	status := getJSON(t, f.ts.URL+"/api/resource/media/loaded."+kind.Ext+"?runId="+runID, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	f.waitBackground()
	export, err := f.tracker.Export(ctx, runID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.RunState.Pending == nil || export.RunState.Pending.StartTS == 0 {
		t.Fatalf("pending = %+v, want recorded load time", export.RunState.Pending)
	}
}

func TestCheckRevealsAnswer(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "checked", "frame")

	var got checkResponse
	status := getJSON(t, f.ts.URL+"/api/resource/check/checked?season=1&episode=1", &got)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got.Correct {
		t.Fatal("wrong guess reported correct")
	}
	if got.Season != 2 || got.Episode != 7 || got.SeekTime != 421.5 {
		t.Fatalf("revealed answer = %+v, want true answer", got)
	}

	f.waitBackground()
	if status := getJSON(t, f.ts.URL+"/api/resource/check/checked?season=2&episode=7", nil); status != http.StatusNotFound {
		t.Fatalf("second check status = %d, want 404", status)
	}
}

func TestCheckCorrectGuess(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "right", "frame")

	var got checkResponse
	status := getJSON(t, f.ts.URL+"/api/resource/check/right?season=2&episode=7", &got)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !got.Correct {
		t.Fatal("correct guess reported wrong")
	}
}

func TestCheckRecordsHistory(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "tracked", "frame")

	ctx := context.Background()
	runID, err := f.tracker.New(ctx)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	assignTS := time.Now().UnixMilli()
	if err := f.tracker.RecordAssign(ctx, runID, run.Pending{ID: "tracked", Kind: "frame", AssignTS: assignTS}); err != nil {
		t.Fatalf("record assign: %v", err)
	}
	if err := f.tracker.RecordLoad(ctx, runID, "tracked"); err != nil {
		t.Fatalf("record load: %v", err)
	}

	status := getJSON(t, f.ts.URL+"/api/resource/check/tracked?season=1&episode=3&runId="+runID, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	export, err := f.tracker.Export(ctx, runID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	state := export.RunState
	if state.Pending != nil {
		t.Fatalf("pending = %+v, want cleared", state.Pending)
	}
	if len(state.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(state.History))
	}
	entry := state.History[0]
	if entry.Guess != (run.Guess{Season: 1, Episode: 3}) {
		t.Fatalf("guess = %+v", entry.Guess)
	}
	if entry.Answer != (run.Guess{Season: 2, Episode: 7}) {
		t.Fatalf("answer = %+v, want true answer", entry.Answer)
	}
	if entry.SeekTimeSec != 421.5 {
		t.Fatalf("seekTime = %v, want 421.5", entry.SeekTimeSec)
	}
}

func TestRunNewAndVerify(t *testing.T) {
	f := newFixture(t)

	var created struct {
		RunID string `json:"runId"`
	}
	if status := postJSON(t, f.ts.URL+"/api/run/new", &created); status != http.StatusOK {
		t.Fatalf("run new status = %d", status)
	}
	if created.RunID == "" {
		t.Fatal("empty run id")
	}

	var export run.Export
	if status := getJSON(t, f.ts.URL+"/api/run/"+created.RunID+"/verify", &export); status != http.StatusOK {
		t.Fatalf("verify status = %d", status)
	}
	if export.RunState.CreationTS == 0 {
		t.Fatal("run has no creation timestamp")
	}

	if status := getJSON(t, f.ts.URL+"/api/run/no-such-run/verify", nil); status != http.StatusNotFound {
		t.Fatalf("unknown run verify status = %d, want 404", status)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedClip(t, "leftover", "audio10s")
	kind, _ := f.svc.Registry().Lookup("audio10s")

	if status := postJSON(t, f.ts.URL+"/api/resource/cleanup/leftover", nil); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	f.waitBackground()
	if has, _ := f.svc.States().Has(context.Background(), "leftover"); has {
		t.Fatal("clip state was not removed")
	}
	path := resource.PathForID(f.cfg.Paths.OutputDir, "leftover", kind.Ext)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("clip file still present: %v", err)
	}
}

func TestShowFallsBackToDefaultLanguage(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/api/show?language=fr")
	if err != nil {
		t.Fatalf("GET show: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if lang := resp.Header.Get("Content-Language"); lang != "en" {
		t.Fatalf("Content-Language = %q, want en", lang)
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t)

	var got statusResponse
	if status := getJSON(t, f.ts.URL+"/api/status", &got); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if got.Instance != "test-instance" {
		t.Fatalf("instance = %q", got.Instance)
	}
	if got.Episodes != 1 {
		t.Fatalf("episodes = %d, want 1", got.Episodes)
	}
	if len(got.Queue.Kinds) == 0 {
		t.Fatal("queue snapshot has no kinds")
	}
}
