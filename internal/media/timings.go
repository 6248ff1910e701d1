package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Timecode is a point in time inside an episode. Show data may give it as a
// bare number of seconds or as a string like "1:10:34", "12:05", "1h10m34s",
// or "90s".
type Timecode struct {
	set     bool
	seconds float64
}

// Seconds returns the timecode in seconds.
func (t Timecode) Seconds() float64 { return t.seconds }

// IsSet reports whether the timecode was present in the input.
func (t Timecode) IsSet() bool { return t.set }

// UnmarshalJSON accepts either a JSON number or a timecode string.
func (t *Timecode) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		t.set = true
		t.seconds = num
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("timecode must be a number or string: %s", data)
	}
	seconds, err := ParseTimecode(str)
	if err != nil {
		return err
	}
	t.set = true
	t.seconds = seconds
	return nil
}

var hmsRegexp = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(\d+(?:\.\d+)?)s?$`)

// ParseTimecode converts a timecode string to seconds.
func ParseTimecode(timecode string) (float64, error) {
	timecode = strings.TrimSpace(timecode)
	if timecode == "" {
		return 0, errors.New("empty timecode")
	}

	if strings.Contains(timecode, ":") {
		parts := strings.Split(timecode, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("couldn't parse %q as timecode", timecode)
		}
		var total float64
		for _, part := range parts {
			value, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0, fmt.Errorf("couldn't parse %q as timecode: %w", timecode, err)
			}
			total = total*60 + value
		}
		return total, nil
	}

	match := hmsRegexp.FindStringSubmatch(timecode)
	if match == nil {
		return 0, fmt.Errorf("couldn't parse %q as timecode", timecode)
	}
	var total float64
	if match[1] != "" {
		hours, _ := strconv.ParseFloat(match[1], 64)
		total += hours * 3600
	}
	if match[2] != "" {
		minutes, _ := strconv.ParseFloat(match[2], 64)
		total += minutes * 60
	}
	seconds, _ := strconv.ParseFloat(match[3], 64)
	return total + seconds, nil
}

// TimeRange is a span of an episode that clip generation must avoid.
type TimeRange struct {
	Start  float64
	Length float64
}

// InputRange is a user-provided range, given with either an end timecode or
// a length.
type InputRange struct {
	Start  Timecode  `json:"start"`
	End    *Timecode `json:"end"`
	Length *Timecode `json:"length"`
}

func (r InputRange) toRange() (TimeRange, error) {
	start := r.Start.Seconds()
	if r.End != nil && r.End.IsSet() {
		return TimeRange{Start: start, Length: r.End.Seconds() - start}, nil
	}
	if r.Length != nil && r.Length.IsSet() {
		return TimeRange{Start: start, Length: r.Length.Seconds()}, nil
	}
	return TimeRange{}, errors.New("one of length or end is required")
}

// OpeningIntro marks an intro sequence starting at 0:00.
type OpeningIntro struct {
	End *Timecode `json:"end"`
}

// ColdOpen marks an intro sequence that follows a cold open.
type ColdOpen struct {
	IntroStart  *Timecode `json:"introStart"`
	IntroEnd    *Timecode `json:"introEnd"`
	IntroLength *Timecode `json:"introLength"`
}

// EndCredits marks a credits sequence running to the end of the file.
type EndCredits struct {
	Start     *Timecode `json:"start"`
	EndOffset *Timecode `json:"endOffset"`
}

// Timings configures which parts of an episode are skipped during clip
// generation. Episode-level timings override show-level common timings
// field by field.
type Timings struct {
	OpeningIntro *OpeningIntro `json:"openingIntro"`
	ColdOpen     *ColdOpen     `json:"coldOpen"`
	EndCredits   *EndCredits   `json:"endCredits"`
	SkipRanges   []InputRange  `json:"skipRanges"`
}

func isSet(t *Timecode) bool { return t != nil && t.IsSet() }

func mergeTimings(common, episode *Timings) Timings {
	var merged Timings
	for _, src := range []*Timings{common, episode} {
		if src == nil {
			continue
		}
		if src.OpeningIntro != nil {
			if merged.OpeningIntro == nil {
				merged.OpeningIntro = &OpeningIntro{}
			}
			if isSet(src.OpeningIntro.End) {
				merged.OpeningIntro.End = src.OpeningIntro.End
			}
		}
		if src.ColdOpen != nil {
			if merged.ColdOpen == nil {
				merged.ColdOpen = &ColdOpen{}
			}
			if isSet(src.ColdOpen.IntroStart) {
				merged.ColdOpen.IntroStart = src.ColdOpen.IntroStart
			}
			if isSet(src.ColdOpen.IntroEnd) {
				merged.ColdOpen.IntroEnd = src.ColdOpen.IntroEnd
			}
			if isSet(src.ColdOpen.IntroLength) {
				merged.ColdOpen.IntroLength = src.ColdOpen.IntroLength
			}
		}
		if src.EndCredits != nil {
			if merged.EndCredits == nil {
				merged.EndCredits = &EndCredits{}
			}
			if isSet(src.EndCredits.Start) {
				merged.EndCredits.Start = src.EndCredits.Start
			}
			if isSet(src.EndCredits.EndOffset) {
				merged.EndCredits.EndOffset = src.EndCredits.EndOffset
			}
		}
	}
	return merged
}

// GenerateSkipRanges builds the sorted list of time ranges clip generation
// must avoid, from episode timings merged over show-level common timings.
func GenerateSkipRanges(episodeLength float64, episodeTimings, commonTimings *Timings) ([]TimeRange, error) {
	var skipRanges []TimeRange
	if episodeTimings == nil && commonTimings == nil {
		return skipRanges, nil
	}

	merged := mergeTimings(commonTimings, episodeTimings)

	if merged.OpeningIntro != nil && isSet(merged.OpeningIntro.End) {
		skipRanges = append(skipRanges, TimeRange{Start: 0, Length: merged.OpeningIntro.End.Seconds()})
	}

	if merged.ColdOpen != nil && isSet(merged.ColdOpen.IntroStart) {
		start := merged.ColdOpen.IntroStart.Seconds()
		// When both introLength and introEnd are merged in from different
		// levels, the episode's own field wins.
		both := isSet(merged.ColdOpen.IntroLength) && isSet(merged.ColdOpen.IntroEnd)
		var episodeCold *ColdOpen
		if episodeTimings != nil {
			episodeCold = episodeTimings.ColdOpen
		}
		episodeHasLength := episodeCold != nil && isSet(episodeCold.IntroLength)
		episodeHasEnd := episodeCold != nil && isSet(episodeCold.IntroEnd)
		switch {
		case (both && episodeHasLength) || (!both && isSet(merged.ColdOpen.IntroLength)):
			skipRanges = append(skipRanges, TimeRange{Start: start, Length: merged.ColdOpen.IntroLength.Seconds()})
		case (both && episodeHasEnd) || (!both && isSet(merged.ColdOpen.IntroEnd)):
			skipRanges = append(skipRanges, TimeRange{Start: start, Length: merged.ColdOpen.IntroEnd.Seconds() - start})
		default:
			return nil, errors.New("one of coldOpen.introLength or introEnd is required if skipping cold open intro")
		}
	}

	if merged.EndCredits != nil {
		switch {
		case isSet(merged.EndCredits.Start):
			start := merged.EndCredits.Start.Seconds()
			skipRanges = append(skipRanges, TimeRange{Start: start, Length: episodeLength - start})
		case isSet(merged.EndCredits.EndOffset):
			endOffset := merged.EndCredits.EndOffset.Seconds()
			skipRanges = append(skipRanges, TimeRange{Start: episodeLength - endOffset, Length: endOffset})
		default:
			return nil, errors.New("one of endCredits.start or endOffset is required if skipping end credits")
		}
	}

	for _, src := range []*Timings{commonTimings, episodeTimings} {
		if src == nil {
			continue
		}
		for _, input := range src.SkipRanges {
			parsed, err := input.toRange()
			if err != nil {
				return nil, err
			}
			skipRanges = append(skipRanges, parsed)
		}
	}

	sort.Slice(skipRanges, func(i, j int) bool { return skipRanges[i].Start < skipRanges[j].Start })
	return skipRanges, nil
}

// OffsetBySkipRanges shifts a random draw from the skippable-time domain
// back into real episode time. Drawing from [0, length minus skipped) and
// offsetting keeps the distribution uniform over the allowed spans.
func OffsetBySkipRanges(unoffsetTime float64, skipRanges []TimeRange) float64 {
	offsetTime := unoffsetTime
	for i := 0; i < len(skipRanges) && skipRanges[i].Start < offsetTime; i++ {
		offsetTime += skipRanges[i].Length
	}
	return offsetTime
}
