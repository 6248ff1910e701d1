package media

import (
	"encoding/json"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParseTimecode(t *testing.T) {
	cases := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"34", 34, false},
		{"34.5", 34.5, false},
		{"90s", 90, false},
		{"12:05", 725, false},
		{"1:10:34", 4234, false},
		{"1h10m34s", 4234, false},
		{"10m", 0, true},
		{"garbage", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTimecode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimecode(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimecode(%q) failed: %v", tc.input, err)
			continue
		}
		if !almostEqual(got, tc.want) {
			t.Errorf("ParseTimecode(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestTimecodeUnmarshalJSON(t *testing.T) {
	var timings Timings
	body := `{"openingIntro": {"end": "1:30"}, "skipRanges": [{"start": 10, "length": 5}]}`
	if err := json.Unmarshal([]byte(body), &timings); err != nil {
		t.Fatalf("unmarshal timings: %v", err)
	}
	if !isSet(timings.OpeningIntro.End) || !almostEqual(timings.OpeningIntro.End.Seconds(), 90) {
		t.Fatalf("unexpected opening intro end: %#v", timings.OpeningIntro)
	}
	if len(timings.SkipRanges) != 1 || !almostEqual(timings.SkipRanges[0].Start.Seconds(), 10) {
		t.Fatalf("unexpected skip ranges: %#v", timings.SkipRanges)
	}
}

func tc(seconds float64) *Timecode {
	return &Timecode{set: true, seconds: seconds}
}

func TestGenerateSkipRangesOpeningAndCredits(t *testing.T) {
	episodeTimings := &Timings{
		OpeningIntro: &OpeningIntro{End: tc(60)},
		EndCredits:   &EndCredits{EndOffset: tc(30)},
	}
	ranges, err := GenerateSkipRanges(600, episodeTimings, nil)
	if err != nil {
		t.Fatalf("GenerateSkipRanges failed: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %#v", ranges)
	}
	if !almostEqual(ranges[0].Start, 0) || !almostEqual(ranges[0].Length, 60) {
		t.Fatalf("unexpected intro range: %#v", ranges[0])
	}
	if !almostEqual(ranges[1].Start, 570) || !almostEqual(ranges[1].Length, 30) {
		t.Fatalf("unexpected credits range: %#v", ranges[1])
	}
}

func TestGenerateSkipRangesColdOpenEpisodeOverride(t *testing.T) {
	common := &Timings{
		ColdOpen: &ColdOpen{IntroLength: tc(90)},
	}
	episode := &Timings{
		ColdOpen: &ColdOpen{IntroStart: tc(120), IntroEnd: tc(200)},
	}
	ranges, err := GenerateSkipRanges(1200, episode, common)
	if err != nil {
		t.Fatalf("GenerateSkipRanges failed: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected 1 range, got %#v", ranges)
	}
	// Both introLength (common) and introEnd (episode) are present after the
	// merge; the episode's own introEnd wins.
	if !almostEqual(ranges[0].Start, 120) || !almostEqual(ranges[0].Length, 80) {
		t.Fatalf("unexpected cold open range: %#v", ranges[0])
	}
}

func TestGenerateSkipRangesColdOpenMissingBounds(t *testing.T) {
	episode := &Timings{ColdOpen: &ColdOpen{IntroStart: tc(120)}}
	if _, err := GenerateSkipRanges(1200, episode, nil); err == nil {
		t.Fatal("expected error for cold open without introLength/introEnd")
	}
}

func TestGenerateSkipRangesSorted(t *testing.T) {
	episode := &Timings{
		SkipRanges: []InputRange{
			{Start: *tc(300), Length: tc(10)},
			{Start: *tc(100), End: tc(150)},
		},
	}
	ranges, err := GenerateSkipRanges(600, episode, nil)
	if err != nil {
		t.Fatalf("GenerateSkipRanges failed: %v", err)
	}
	if len(ranges) != 2 || ranges[0].Start > ranges[1].Start {
		t.Fatalf("ranges not sorted: %#v", ranges)
	}
	if !almostEqual(ranges[0].Length, 50) {
		t.Fatalf("end-form range has wrong length: %#v", ranges[0])
	}
}

func TestOffsetBySkipRanges(t *testing.T) {
	skip := []TimeRange{{Start: 3, Length: 2}}
	if got := OffsetBySkipRanges(10, skip); !almostEqual(got, 12) {
		t.Fatalf("OffsetBySkipRanges = %v, want 12", got)
	}
	// A draw before the skipped span is unaffected.
	if got := OffsetBySkipRanges(2, skip); !almostEqual(got, 2) {
		t.Fatalf("OffsetBySkipRanges = %v, want 2", got)
	}
	// Consecutive ranges accumulate.
	skip = []TimeRange{{Start: 0, Length: 60}, {Start: 500, Length: 100}}
	if got := OffsetBySkipRanges(450, skip); !almostEqual(got, 610) {
		t.Fatalf("OffsetBySkipRanges = %v, want 610", got)
	}
}
