package media

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"framerand/internal/config"
	"framerand/internal/logging"
	"framerand/internal/store"
)

// Episode is a fully loaded source episode ready for clip generation.
type Episode struct {
	Season     int
	Episode    int
	Path       string
	LengthSec  float64
	GenLength  float64
	SkipRanges []TimeRange
}

// Library holds every playable episode plus the per-language client data.
type Library struct {
	Episodes        []Episode
	DefaultLanguage string

	clientData map[string]ClientShow
	langTags   []language.Tag
	langNames  []string
	matcher    language.Matcher
}

// LoadLibrary reads the show data file, discovers video files, probes their
// durations, and joins everything into a Library. Episodes whose probe fails
// are dropped with a log line rather than failing the load.
func LoadLibrary(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*Library, error) {
	showData, err := ReadShowData(cfg.Library.ShowDataPath)
	if err != nil {
		return nil, err
	}

	files, err := ScanVideos(cfg.Paths.VideoDir, cfg.Library.VideoExtensions, cfg.Library.ScanRecursive)
	if err != nil {
		return nil, err
	}

	joined, err := joinShowFiles(cfg, showData, files, logger)
	if err != nil {
		return nil, err
	}

	var cache *store.Namespace
	if cfg.Library.FFprobeCache && st != nil {
		cache = st.Namespace(store.NamespaceFFprobeCache)
	}
	prober := NewProber(cfg.Library.FFprobeBinary, cache)

	episodes := probeAll(ctx, joined, showData.CommonTimings, prober, cfg.Library.FFprobeLoadLimit, logger)
	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].Season != episodes[j].Season {
			return episodes[i].Season < episodes[j].Season
		}
		return episodes[i].Episode < episodes[j].Episode
	})

	available := make(map[[2]int]struct{}, len(episodes))
	for _, ep := range episodes {
		available[[2]int{ep.Season, ep.Episode}] = struct{}{}
	}

	lib := &Library{
		Episodes:        episodes,
		DefaultLanguage: defaultLanguage(cfg, showData),
		clientData: showData.clientData(func(season, episode int) bool {
			_, ok := available[[2]int{season, episode}]
			return ok
		}),
	}
	lib.buildMatcher()

	logger.Info("episode library loaded",
		logging.Int("episodes", len(lib.Episodes)),
		logging.Int("languages", len(lib.langNames)),
	)
	return lib, nil
}

type joinedEpisode struct {
	ShowEpisode
	path string
}

func joinShowFiles(cfg *config.Config, showData *ShowData, files []VideoFile, logger *slog.Logger) ([]joinedEpisode, error) {
	var joined []joinedEpisode
	var missing []string
	for _, episode := range showData.Episodes {
		var path string
		for _, file := range files {
			if file.Season == episode.SeasonNumber && file.Episode == episode.EpisodeNumber {
				path = file.Path
				break
			}
		}
		if path == "" {
			missing = append(missing, EpisodeTag(episode.SeasonNumber, episode.EpisodeNumber))
			continue
		}
		joined = append(joined, joinedEpisode{ShowEpisode: episode, path: path})
	}
	if len(missing) > 0 {
		message := fmt.Sprintf("couldn't find files for %d episodes: %s", len(missing), strings.Join(missing, ", "))
		if !cfg.Library.AllowMissingEpisodes {
			return nil, fmt.Errorf("%s", message)
		}
		logger.Warn(message)
	}
	return joined, nil
}

func probeAll(ctx context.Context, joined []joinedEpisode, commonTimings *Timings, prober *Prober, loadLimit int, logger *slog.Logger) []Episode {
	if loadLimit <= 0 {
		loadLimit = len(joined)
	}
	limiter := make(chan struct{}, loadLimit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	var episodes []Episode

	for _, entry := range joined {
		wg.Add(1)
		go func(entry joinedEpisode) {
			defer wg.Done()
			limiter <- struct{}{}
			defer func() { <-limiter }()

			tag := EpisodeTag(entry.SeasonNumber, entry.EpisodeNumber)
			lengthSec, err := prober.Duration(ctx, entry.path)
			if err != nil {
				logger.Error("failed to load episode",
					logging.String("episode", tag),
					logging.String("file", entry.path),
					logging.Error(err),
				)
				return
			}
			skipRanges, err := GenerateSkipRanges(lengthSec, entry.Timings, commonTimings)
			if err != nil {
				logger.Error("bad timings for episode", logging.String("episode", tag), logging.Error(err))
				return
			}
			genLength := lengthSec
			for _, r := range skipRanges {
				genLength -= r.Length
			}

			mu.Lock()
			episodes = append(episodes, Episode{
				Season:     entry.SeasonNumber,
				Episode:    entry.EpisodeNumber,
				Path:       entry.path,
				LengthSec:  lengthSec,
				GenLength:  genLength,
				SkipRanges: skipRanges,
			})
			mu.Unlock()
		}(entry)
	}
	wg.Wait()
	return episodes
}

func defaultLanguage(cfg *config.Config, showData *ShowData) string {
	if cfg.Library.DefaultLanguage != "" {
		return cfg.Library.DefaultLanguage
	}
	if showData.DefaultLanguage != "" {
		return showData.DefaultLanguage
	}
	if len(showData.Name.PerLanguage) > 0 {
		return showData.Name.PerLanguage[0].Language
	}
	return "en"
}

func (l *Library) buildMatcher() {
	names := make([]string, 0, len(l.clientData))
	for name := range l.clientData {
		names = append(names, name)
	}
	sort.Strings(names)

	// The default language leads so the matcher falls back to it.
	ordered := make([]string, 0, len(names))
	if _, ok := l.clientData[l.DefaultLanguage]; ok {
		ordered = append(ordered, l.DefaultLanguage)
	}
	for _, name := range names {
		if name != l.DefaultLanguage {
			ordered = append(ordered, name)
		}
	}

	tags := make([]language.Tag, 0, len(ordered))
	kept := make([]string, 0, len(ordered))
	for _, name := range ordered {
		tag, err := language.Parse(name)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		kept = append(kept, name)
	}
	l.langTags = tags
	l.langNames = kept
	if len(tags) > 0 {
		l.matcher = language.NewMatcher(tags)
	}
}

// ClientDataFor returns the client show data best matching the requested
// language (an Accept-Language style value), falling back to the default.
func (l *Library) ClientDataFor(requested string) (string, ClientShow) {
	if l.matcher == nil || requested == "" {
		return l.DefaultLanguage, l.clientData[l.DefaultLanguage]
	}
	tags, _, err := language.ParseAcceptLanguage(requested)
	if err != nil || len(tags) == 0 {
		return l.DefaultLanguage, l.clientData[l.DefaultLanguage]
	}
	_, index, _ := l.matcher.Match(tags...)
	name := l.langNames[index]
	return name, l.clientData[name]
}

// Languages lists the languages client data is available in.
func (l *Library) Languages() []string {
	out := make([]string, len(l.langNames))
	copy(out, l.langNames)
	return out
}

// PickRandom selects a random episode and a seek time outside its skip
// ranges.
func (l *Library) PickRandom(rnd *rand.Rand) (Episode, float64) {
	episode := l.Episodes[rnd.Intn(len(l.Episodes))]
	unoffset := rnd.Float64() * episode.GenLength
	seekTime := OffsetBySkipRanges(unoffset, episode.SkipRanges)
	return episode, seekTime
}
