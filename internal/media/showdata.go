package media

import (
	"encoding/json"
	"fmt"
	"os"
)

// PerLanguageName is a show name in one language.
type PerLanguageName struct {
	Language string `json:"language"`
	Name     string `json:"name"`
}

// PerLanguageEpisode is an episode's name and synopsis in one language.
type PerLanguageEpisode struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Overview string `json:"overview"`
}

// ShowEpisode is one configured episode from the show data file.
type ShowEpisode struct {
	SeasonNumber  int                  `json:"season_number"`
	EpisodeNumber int                  `json:"episode_number"`
	PerLanguage   []PerLanguageEpisode `json:"perLanguage"`
	Timings       *Timings             `json:"timings"`
}

// ShowName carries the show's display names.
type ShowName struct {
	Name        string            `json:"name"`
	PerLanguage []PerLanguageName `json:"perLanguage"`
}

// ShowData is the parsed show metadata file.
type ShowData struct {
	Name            ShowName      `json:"name"`
	DefaultLanguage string        `json:"defaultLanguage"`
	Episodes        []ShowEpisode `json:"episodes"`
	// Timings that are the same for every episode (credits always start at
	// MM:SS, intro is always MM:SS long, and so on).
	CommonTimings *Timings `json:"commonTimings"`
}

// ReadShowData loads and validates the show metadata file.
func ReadShowData(path string) (*ShowData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read show data: %w", err)
	}
	var data ShowData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse show data: %w", err)
	}
	if err := data.Check(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Check validates the show data for language misconfigurations.
func (d *ShowData) Check() error {
	if len(d.Name.PerLanguage) == 0 {
		return fmt.Errorf("at least one language/show name is required")
	}
	languages := make(map[string]struct{}, len(d.Name.PerLanguage))
	for _, entry := range d.Name.PerLanguage {
		if _, dup := languages[entry.Language]; dup {
			return fmt.Errorf("duplicate input language %q", entry.Language)
		}
		languages[entry.Language] = struct{}{}
	}

	for _, episode := range d.Episodes {
		tag := EpisodeTag(episode.SeasonNumber, episode.EpisodeNumber)
		if len(episode.PerLanguage) != len(languages) {
			return fmt.Errorf("missing/extra languages in %s", tag)
		}
		seen := make(map[string]struct{}, len(episode.PerLanguage))
		for _, entry := range episode.PerLanguage {
			if _, dup := seen[entry.Language]; dup {
				return fmt.Errorf("duplicate language %q in %s", entry.Language, tag)
			}
			if _, known := languages[entry.Language]; !known {
				return fmt.Errorf("unexpected language %q in %s", entry.Language, tag)
			}
			seen[entry.Language] = struct{}{}
		}
	}
	return nil
}

// EpisodeTag formats a season/episode pair as a SxxExx tag.
func EpisodeTag(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

// ClientEpisode is the per-language episode data exposed to API clients.
type ClientEpisode struct {
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
	Name     string `json:"name"`
	Synopsis string `json:"synopsis,omitempty"`
}

// ClientShow is the per-language show data exposed to API clients.
type ClientShow struct {
	Name              string          `json:"name"`
	SynopsisAvailable bool            `json:"synopsisAvailable"`
	Episodes          []ClientEpisode `json:"episodes"`
}

// clientData builds per-language client data restricted to the episodes that
// actually have source files, so missing episodes never show up as options.
func (d *ShowData) clientData(available func(season, episode int) bool) map[string]ClientShow {
	out := make(map[string]ClientShow, len(d.Name.PerLanguage))
	for _, showName := range d.Name.PerLanguage {
		var episodes []ClientEpisode
		synopsisAvailable := false
		for _, episode := range d.Episodes {
			if available != nil && !available(episode.SeasonNumber, episode.EpisodeNumber) {
				continue
			}
			for _, perLang := range episode.PerLanguage {
				if perLang.Language != showName.Language {
					continue
				}
				episodes = append(episodes, ClientEpisode{
					Season:   episode.SeasonNumber,
					Episode:  episode.EpisodeNumber,
					Name:     perLang.Name,
					Synopsis: perLang.Overview,
				})
				if perLang.Overview != "" {
					synopsisAvailable = true
				}
				break
			}
		}
		out[showName.Language] = ClientShow{
			Name:              showName.Name,
			SynopsisAvailable: synopsisAvailable,
			Episodes:          episodes,
		}
	}
	return out
}
