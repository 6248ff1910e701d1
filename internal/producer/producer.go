package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/resource"
	"framerand/internal/store"
)

var commandContext = exec.CommandContext

// Producer synthesizes one clip per call: it picks a random episode and seek
// time, runs ffmpeg, and records the Answer and State entries before handing
// the resource id back. Image kinds are checked against a minimum standard
// deviation with a bounded number of re-rolls.
type Producer struct {
	library  *media.Library
	registry *resource.Registry
	answers  *store.Namespace
	states   *store.Namespace
	logger   *slog.Logger

	outputDir      string
	ffmpegBinary   string
	identifyBinary string
	imageInject    []string
	minStddev      float64
	maxAttempts    int

	instanceName string
	idNamespace  uuid.UUID

	mu  sync.Mutex
	rnd *rand.Rand

	counter atomic.Uint64
	now     func() time.Time
}

// New builds a Producer over an already loaded library.
func New(cfg *config.Config, library *media.Library, registry *resource.Registry, st *store.Store, logger *slog.Logger) (*Producer, error) {
	idNamespace, err := uuid.Parse(cfg.Verification.UUIDNamespace)
	if err != nil {
		return nil, fmt.Errorf("parse uuid namespace: %w", err)
	}

	maxAttempts := cfg.Producer.GenMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Producer{
		library:        library,
		registry:       registry,
		answers:        st.Namespace(store.NamespaceAnswer),
		states:         st.Namespace(store.NamespaceResourceState),
		logger:         logger,
		outputDir:      cfg.Paths.OutputDir,
		ffmpegBinary:   cfg.Producer.FFmpegBinary,
		identifyBinary: cfg.Producer.IdentifyBinary,
		imageInject:    strings.Fields(cfg.Producer.ImageCommandInject),
		minStddev:      cfg.Producer.MinFrameStddev,
		maxAttempts:    maxAttempts,
		instanceName:   cfg.Verification.InstanceName,
		idNamespace:    idNamespace,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            time.Now,
	}, nil
}

// NewID derives a UUIDv5 resource id from the instance identity, a purpose
// tag, and a monotonic sequence so two productions in the same millisecond
// cannot collide.
func (p *Producer) NewID(purpose string) string {
	seq := p.counter.Add(1)
	name := strings.Join([]string{
		p.instanceName,
		p.outputDir,
		purpose,
		strconv.FormatInt(p.now().UnixMilli(), 10),
		strconv.FormatUint(seq, 10),
	}, "___")
	return uuid.NewSHA1(p.idNamespace, []byte(name)).String()
}

// Produce generates one clip of the given kind and returns its resource id.
// The media file, Answer, and State entries are all on disk before this
// returns.
func (p *Producer) Produce(ctx context.Context, kindName string) (string, error) {
	kind, ok := p.registry.Lookup(kindName)
	if !ok {
		return "", fmt.Errorf("%w: %q", resource.ErrUnknownKind, kindName)
	}
	if len(p.library.Episodes) == 0 {
		return "", errors.New("no playable episodes in library")
	}

	id := p.NewID("resource_generation")
	outPath := resource.PathForID(p.outputDir, id, kind.Ext)

	var episode media.Episode
	var seekTime float64
	var err error
	switch kind.Media {
	case resource.MediaAudio:
		episode, seekTime = p.pickRandom()
		err = p.extractAudio(ctx, episode.Path, seekTime, kind.AudioSeconds, outPath)
	default:
		episode, seekTime, err = p.produceFrame(ctx, kind, outPath)
	}
	if err != nil {
		return "", err
	}

	answer := resource.Answer{
		Season:   episode.Season,
		Episode:  episode.Episode,
		SeekTime: seekTime,
	}
	if err := p.answers.Set(ctx, id, answer); err != nil {
		return "", fmt.Errorf("record answer for %s: %w", id, err)
	}
	if err := p.states.Set(ctx, id, resource.State{Kind: kind.Name}); err != nil {
		return "", fmt.Errorf("record state for %s: %w", id, err)
	}

	p.logger.Info("clip produced",
		logging.String("id", id),
		logging.String("kind", kind.Name),
		logging.String("episode", media.EpisodeTag(episode.Season, episode.Episode)),
		logging.Float64("seekTime", seekTime),
	)
	return id, nil
}

func (p *Producer) pickRandom() (media.Episode, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.library.PickRandom(p.rnd)
}

// produceFrame extracts a frame, re-rolling the episode and seek time until
// the frame passes the standard deviation check or attempts run out. An
// exhausted attempt budget keeps the last frame rather than failing, since a
// low-contrast frame is still playable.
func (p *Producer) produceFrame(ctx context.Context, kind resource.Kind, outPath string) (media.Episode, float64, error) {
	var episode media.Episode
	var seekTime float64
	for attempt := 1; ; attempt++ {
		episode, seekTime = p.pickRandom()
		if err := p.extractFrame(ctx, episode.Path, seekTime, kind.Subtitles, outPath); err != nil {
			return media.Episode{}, 0, err
		}
		if p.minStddev <= 0 {
			return episode, seekTime, nil
		}

		stddev, err := p.frameStddev(ctx, outPath)
		if err != nil {
			return media.Episode{}, 0, err
		}
		if stddev >= p.minStddev {
			return episode, seekTime, nil
		}
		if attempt >= p.maxAttempts {
			p.logger.Warn("frame attempts exhausted, keeping last frame",
				logging.String("episode", media.EpisodeTag(episode.Season, episode.Episode)),
				logging.Float64("stddev", stddev),
				logging.Int("attempts", attempt),
			)
			return episode, seekTime, nil
		}
		p.logger.Debug("frame below stddev threshold, retrying",
			logging.Float64("stddev", stddev),
			logging.Int("attempt", attempt),
		)
	}
}

func (p *Producer) extractFrame(ctx context.Context, videoPath string, seekTime float64, subtitles bool, outPath string) error {
	args := []string{"-ss", formatSeconds(seekTime), "-i", videoPath, "-frames:v", "1"}
	if subtitles {
		args = append(args, "-vf", "subtitles="+escapeFilterPath(videoPath))
	}
	args = append(args, p.imageInject...)
	args = append(args, "-y", outPath)
	return p.runFFmpeg(ctx, args)
}

func (p *Producer) extractAudio(ctx context.Context, videoPath string, seekTime float64, seconds int, outPath string) error {
	args := []string{
		"-ss", formatSeconds(seekTime),
		"-i", videoPath,
		"-t", strconv.Itoa(seconds),
		"-vn",
		"-y", outPath,
	}
	return p.runFFmpeg(ctx, args)
}

func (p *Producer) runFFmpeg(ctx context.Context, args []string) error {
	cmd := commandContext(ctx, p.ffmpegBinary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *Producer) frameStddev(ctx context.Context, imagePath string) (float64, error) {
	cmd := commandContext(ctx, p.identifyBinary, "-format", "%[standard-deviation]", imagePath)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("identify %q: %w", imagePath, err)
	}
	stddev, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse identify output for %q: %w", imagePath, err)
	}
	return stddev, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter argument,
// where colons and quotes are syntax.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	return "'" + replacer.Replace(path) + "'"
}
