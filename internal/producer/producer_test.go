package producer

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/resource"
	"framerand/internal/store"
	"framerand/internal/testsupport"
)

type commandCounts struct {
	ffmpeg   atomic.Int64
	identify atomic.Int64
}

// stubCommands replaces subprocess invocations: ffmpeg touches its output
// file, identify prints the given stddev value.
func stubCommands(t *testing.T, stddevOutput string) *commandCounts {
	t.Helper()
	counts := &commandCounts{}
	prev := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		switch filepath.Base(name) {
		case "ffmpeg":
			counts.ffmpeg.Add(1)
			outPath := args[len(args)-1]
			return exec.CommandContext(ctx, "sh", "-c", "touch \"$0\"", outPath)
		case "identify":
			counts.identify.Add(1)
			return exec.CommandContext(ctx, "printf", "%s", stddevOutput)
		default:
			t.Fatalf("unexpected command %q", name)
			return nil
		}
	}
	t.Cleanup(func() { commandContext = prev })
	return counts
}

func testProducer(t *testing.T, cfg *config.Config) (*Producer, *store.Store) {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	library := &media.Library{Episodes: []media.Episode{{
		Season: 2, Episode: 7,
		Path:      filepath.Join(cfg.Paths.VideoDir, "S02E07.mkv"),
		LengthSec: 1200, GenLength: 1200,
	}}}
	registry := resource.NewRegistry(cfg)
	p, err := New(cfg, library, registry, st, logging.NewNop())
	if err != nil {
		t.Fatalf("producer.New: %v", err)
	}
	return p, st
}

func TestProduceAudioWritesAnswerAndState(t *testing.T) {
	stubCommands(t, "9999")
	cfg := testsupport.NewConfig(t)
	p, st := testProducer(t, cfg)
	ctx := context.Background()

	id, err := p.Produce(ctx, "audio10s")
	if err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}

	outPath := resource.PathForID(cfg.Paths.OutputDir, id, cfg.Producer.AudioExtension)
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("media file not written: %v", err)
	}

	var answer resource.Answer
	found, err := st.Namespace(store.NamespaceAnswer).Get(ctx, id, &answer)
	if err != nil || !found {
		t.Fatalf("answer missing: found=%v err=%v", found, err)
	}
	if answer.Season != 2 || answer.Episode != 7 {
		t.Errorf("answer = %+v", answer)
	}
	if answer.ExpiresAt != nil {
		t.Error("fresh answer must have nil expiry")
	}
	if answer.SeekTime < 0 || answer.SeekTime >= 1200 {
		t.Errorf("seek time %v out of range", answer.SeekTime)
	}

	var state resource.State
	found, err = st.Namespace(store.NamespaceResourceState).Get(ctx, id, &state)
	if err != nil || !found {
		t.Fatalf("state missing: found=%v err=%v", found, err)
	}
	if state.Kind != "audio10s" || state.ExpiresAt != nil {
		t.Errorf("state = %+v", state)
	}
}

func TestProduceFrameRetriesThenKeepsLast(t *testing.T) {
	counts := stubCommands(t, "100.0")
	cfg := testsupport.NewConfig(t)
	cfg.Producer.MinFrameStddev = 2500
	cfg.Producer.GenMaxAttempts = 3
	p, _ := testProducer(t, cfg)

	id, err := p.Produce(context.Background(), "frame")
	if err != nil {
		t.Fatalf("Produce should keep the last frame, got %v", err)
	}
	if got := counts.ffmpeg.Load(); got != 3 {
		t.Errorf("ffmpeg ran %d times, want 3", got)
	}
	if got := counts.identify.Load(); got != 3 {
		t.Errorf("identify ran %d times, want 3", got)
	}
	outPath := resource.PathForID(cfg.Paths.OutputDir, id, cfg.Producer.ImageExtension)
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("frame not written: %v", err)
	}
}

func TestProduceFrameAcceptsGoodFrame(t *testing.T) {
	counts := stubCommands(t, "9999.5")
	cfg := testsupport.NewConfig(t)
	cfg.Producer.MinFrameStddev = 2500
	p, _ := testProducer(t, cfg)

	if _, err := p.Produce(context.Background(), "frame"); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if got := counts.ffmpeg.Load(); got != 1 {
		t.Errorf("ffmpeg ran %d times, want 1", got)
	}
}

func TestProduceFrameSkipsCheckWhenDisabled(t *testing.T) {
	counts := stubCommands(t, "0")
	cfg := testsupport.NewConfig(t)
	cfg.Producer.MinFrameStddev = 0
	p, _ := testProducer(t, cfg)

	if _, err := p.Produce(context.Background(), "frame"); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if got := counts.identify.Load(); got != 0 {
		t.Errorf("identify ran %d times, want 0", got)
	}
}

func TestProduceUnknownKind(t *testing.T) {
	stubCommands(t, "9999")
	cfg := testsupport.NewConfig(t)
	p, _ := testProducer(t, cfg)

	if _, err := p.Produce(context.Background(), "hologram"); !errors.Is(err, resource.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestNewIDUnique(t *testing.T) {
	stubCommands(t, "9999")
	cfg := testsupport.NewConfig(t)
	p, _ := testProducer(t, cfg)

	a := p.NewID("resource_generation")
	b := p.NewID("resource_generation")
	if a == b {
		t.Fatalf("consecutive ids collided: %s", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("id %q is not a UUID: %v", a, err)
	}
}
