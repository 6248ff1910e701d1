package recovery

import (
	"context"
	"os"
	"testing"
	"time"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/resource"
	"framerand/internal/store"
	"framerand/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	svc     *resource.Service
	answers *store.Namespace
	states  *store.Namespace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	registry := resource.NewRegistry(cfg)
	svc := resource.NewService(cfg, st, registry, logging.NewNop())
	return &fixture{
		cfg:     cfg,
		svc:     svc,
		answers: st.Namespace(store.NamespaceAnswer),
		states:  st.Namespace(store.NamespaceResourceState),
	}
}

func (f *fixture) addClip(t *testing.T, id, kind string, served bool, withFile, withAnswer bool) {
	t.Helper()
	ctx := context.Background()
	state := resource.State{Kind: kind}
	if served {
		expiry := time.Now().Add(time.Hour)
		state.ExpiresAt = &expiry
	}
	if err := f.states.Set(ctx, id, state); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if withAnswer {
		if err := f.answers.Set(ctx, id, resource.Answer{Season: 1, Episode: 1, SeekTime: 10}); err != nil {
			t.Fatalf("set answer: %v", err)
		}
	}
	if withFile {
		k, ok := f.svc.Registry().Lookup(kind)
		if !ok {
			t.Fatalf("unknown kind %q", kind)
		}
		testsupport.WriteFile(t, resource.PathForID(f.cfg.Paths.OutputDir, id, k.Ext), 1)
	}
}

func TestRunRecoversUnservedClipWithFile(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "aaa", "frame", false, true, true)

	result := Run(context.Background(), f.svc, f.cfg.Paths.OutputDir, logging.NewNop())
	if result.Recovered != 1 {
		t.Fatalf("recovered = %d, want 1", result.Recovered)
	}
	ids := result.PreproducedByKind["frame"]
	if len(ids) != 1 || ids[0] != "aaa" {
		t.Fatalf("preproduced = %#v", result.PreproducedByKind)
	}

	// The salvaged entries stay in place for serving.
	has, err := f.states.Has(context.Background(), "aaa")
	if err != nil || !has {
		t.Fatalf("state should survive recovery: has=%v err=%v", has, err)
	}
}

func TestRunDiscardsStateWithoutAnswer(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "bbb", "frame", false, true, false)

	result := Run(context.Background(), f.svc, f.cfg.Paths.OutputDir, logging.NewNop())
	if result.NoAnswer != 1 || result.Recovered != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.PreproducedByKind["frame"]) != 0 {
		t.Fatal("unanswerable clip must not be salvaged")
	}
	has, err := f.states.Has(context.Background(), "bbb")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatal("state without answer should be deleted")
	}
	k, _ := f.svc.Registry().Lookup("frame")
	if _, err := os.Stat(resource.PathForID(f.cfg.Paths.OutputDir, "bbb", k.Ext)); !os.IsNotExist(err) {
		t.Fatal("file should be deleted with the state")
	}
}

func TestRunSkipsServedClips(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "ccc", "audio5s", true, true, true)

	result := Run(context.Background(), f.svc, f.cfg.Paths.OutputDir, logging.NewNop())
	if result.ServedFile != 1 || result.Recovered != 0 {
		t.Fatalf("result = %+v", result)
	}
	// Served clips are the cleanup daemon's responsibility, not recovery's.
	has, err := f.states.Has(context.Background(), "ccc")
	if err != nil || !has {
		t.Fatalf("served state should be untouched: has=%v err=%v", has, err)
	}
}

func TestRunDiscardsMissingFile(t *testing.T) {
	f := newFixture(t)
	f.addClip(t, "ddd", "frame", false, false, true)

	result := Run(context.Background(), f.svc, f.cfg.Paths.OutputDir, logging.NewNop())
	if result.MissingFile != 1 || result.Recovered != 0 {
		t.Fatalf("result = %+v", result)
	}
	ctx := context.Background()
	if has, _ := f.states.Has(ctx, "ddd"); has {
		t.Fatal("state for missing file should be deleted")
	}
	if has, _ := f.answers.Has(ctx, "ddd"); has {
		t.Fatal("answer for missing file should be deleted")
	}
}

func TestRunEmptyStateYieldsNothing(t *testing.T) {
	f := newFixture(t)
	result := Run(context.Background(), f.svc, f.cfg.Paths.OutputDir, logging.NewNop())
	if result.Recovered+result.ServedFile+result.MissingFile+result.NoAnswer != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.PreproducedByKind) != 0 {
		t.Fatalf("preproduced = %#v", result.PreproducedByKind)
	}
}
