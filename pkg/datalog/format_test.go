package datalog

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

func dur(d time.Duration) *time.Duration {
	return &d
}

func TestHexDump(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, ""},
		{
			"short row",
			[]byte("AB\x00"),
			"0000: 41 42 00" + strings.Repeat(" ", 60-len("0000: 41 42 00")) + " |AB.|\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HexDump(tt.data))
		})
	}
}

func TestHexDumpRows(t *testing.T) {
	got := HexDump([]byte(strings.Repeat("x", 20)))
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0000: 78"))
	assert.True(t, strings.HasPrefix(lines[1], "0010: 78"))
	assert.True(t, strings.HasSuffix(lines[1], "|xxxx|"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name   string
		d      *time.Duration
		digits int
		want   string
	}{
		{"nil", nil, 1, "--:--.-"},
		{"seconds", dur(5*time.Second + 300*time.Millisecond), 1, "00:05.3"},
		{"minutes", dur(time.Minute + 23*time.Second + 456*time.Millisecond), 3, "01:23.456"},
		{"zero", dur(0), 1, "00:00.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.d, tt.digits))
		})
	}
}

func TestEllipsis(t *testing.T) {
	assert.Equal(t, "abc  ", ellipsis("abc", 5))
	assert.Equal(t, "abcde...", ellipsis("abcdefgh", 5))
}

func TestFormatRawEntry(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	got := formatRawEntry([]byte("Running time: 12.3"), "127.0.0.1:5000 (TIMING)", ts)
	assert.Contains(t, got, "=== Data received at 2025-03-01 10:00:00.000 from 127.0.0.1:5000 (TIMING) ===")
	assert.Contains(t, got, "Data length: 18 bytes")
	assert.Contains(t, got, "Text interpretation (UTF-8):\nRunning time: 12.3\n")
	assert.True(t, strings.HasSuffix(got, "=== End of data ===\n\n"))
}

func TestFormatStartListSummary(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := &model.RaceEvent{EventName: "Ladies 500m", RoundNumber: 1, HeatNumber: 2, IsOfficial: false}
	racers := []*model.Racer{
		{Lane: 2, ID: 12, Name: "Second", Affiliation: "Club B"},
		{Lane: 1, ID: 11, Name: "First", Affiliation: "Club A"},
	}
	got := formatStartListSummary(ev, racers, "src", ts)
	assert.Contains(t, got, "Event: Ladies 500m\n")
	assert.Contains(t, got, "Round: 1, Heat: 2\n")
	assert.Contains(t, got, "Official: No\n")
	assert.Contains(t, got, "Number of Racers: 2\n")
	assert.Less(t, strings.Index(got, "First"), strings.Index(got, "Second"))
}

func TestFormatLiveInfo(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	rd := model.NewRaceData(ts)
	rd.Status = model.RaceStatusRunning
	rd.CurrentTime = dur(42*time.Second + 100*time.Millisecond)
	rd.Racers = []*model.Racer{
		{Lane: 3, Name: "Third", Place: model.NewPlaceRank("2"), LapsRemaining: decimal.NewFromInt(3)},
		{Lane: 1, Name: "", Place: model.NewPlaceRank("1"), LapsRemaining: decimal.NewFromInt(3)},
		{Lane: 2, Name: "Nobody", LapsRemaining: decimal.NewFromInt(4)},
		{Lane: 4, Name: "Gone", Place: model.NewPlaceRank("DNF")},
	}
	got := formatLiveInfo(rd, ts)
	assert.Contains(t, got, "Elapsed Time: 00:42.1\n")
	assert.Contains(t, got, "Race Status: Running\n")
	assert.Contains(t, got, "## Number of racers ##: 4\n")
	assert.Contains(t, got, "Racer 1")
	assert.Less(t, strings.Index(got, "Racer 1"), strings.Index(got, "Third"))
	assert.Less(t, strings.Index(got, "Third"), strings.Index(got, "Unplaced Racers:"))
	assert.Less(t, strings.Index(got, "Nobody"), strings.Index(got, "Gone"))
	assert.Contains(t, got, "DNF")
}

func TestFormatLiveInfoNoRacers(t *testing.T) {
	got := formatLiveInfo(model.NewRaceData(time.Now()), time.Now())
	assert.Contains(t, got, "Elapsed Time: --:--.-\n")
	assert.Contains(t, got, "No racers in current race\n")
}
