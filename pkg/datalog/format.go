package datalog

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

const (
	entryTimeLayout = "2006-01-02 15:04:05.000"
	bytesPerRow     = 16
	hexColumnWidth  = 60
)

// HexDump renders data as rows of 16 bytes with offset, hex values and printable chars.
func HexDump(data []byte) string {
	var b strings.Builder
	for off := 0; off < len(data); off += bytesPerRow {
		row := data[off:min(off+bytesPerRow, len(data))]
		var line strings.Builder
		fmt.Fprintf(&line, "%04X: ", off)
		for _, c := range row {
			fmt.Fprintf(&line, "%02X ", c)
		}
		for line.Len() < hexColumnWidth {
			line.WriteByte(' ')
		}
		line.WriteString(" |")
		for _, c := range row {
			if c >= 32 && c <= 126 {
				line.WriteByte(c)
			} else {
				line.WriteByte('.')
			}
		}
		line.WriteString("|")
		b.WriteString(line.String())
		b.WriteString("\n")
	}
	return b.String()
}

func formatRawEntry(data []byte, label string, ts time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Data received at %s from %s ===\n", ts.UTC().Format(entryTimeLayout), label)
	fmt.Fprintf(&b, "Data length: %d bytes\n", len(data))
	b.WriteString("Raw data (hex):\n")
	b.WriteString(HexDump(data))
	if text, enc, ok := decode.Text(data); ok {
		fmt.Fprintf(&b, "\nText interpretation (%s):\n", enc)
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=== End of data ===\n\n")
	return b.String()
}

func formatStartListSummary(ev *model.RaceEvent, racers []*model.Racer, label string, ts time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== StartList Summary at %s from %s ===\n", ts.UTC().Format(entryTimeLayout), label)
	if ev != nil {
		fmt.Fprintf(&b, "Event: %s\n", ev.EventName)
		fmt.Fprintf(&b, "Event Number: %s\n", ev.EventNumber)
		fmt.Fprintf(&b, "Round: %d, Heat: %d\n", ev.RoundNumber, ev.HeatNumber)
		fmt.Fprintf(&b, "Wind: %s\n", ev.Wind)
		fmt.Fprintf(&b, "Start Type: %s\n", ev.StartType)
		fmt.Fprintf(&b, "Official: %s\n", lo.Ternary(ev.IsOfficial, "Yes", "No"))
	}
	fmt.Fprintf(&b, "Number of Racers: %d\n\n", len(racers))
	if len(racers) > 0 {
		b.WriteString("Racer List:\n")
		b.WriteString("Lane | ID   | Name                           | Affiliation\n")
		b.WriteString("-----|------|--------------------------------|----------------------------\n")
		sorted := slices.Clone(racers)
		slices.SortStableFunc(sorted, func(a, b *model.Racer) int { return a.Lane - b.Lane })
		for _, r := range sorted {
			fmt.Fprintf(&b, "%4d | %4d | %s | %s\n",
				r.Lane, r.ID, ellipsis(r.Name, 30), ellipsis(r.Affiliation, 25))
		}
	}
	b.WriteString("=== End of StartList Summary ===\n\n")
	return b.String()
}

// formatLiveInfo renders the standings, placed racers by place, the others by lane.
func formatLiveInfo(rd *model.RaceData, ts time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Live Race Info - %s ===\n", ts.Format(time.DateTime))
	if rd.CurrentTime != nil {
		fmt.Fprintf(&b, "Elapsed Time: %s\n", formatDuration(rd.CurrentTime, 1))
	} else {
		b.WriteString("Elapsed Time: --:--.-\n")
	}
	fmt.Fprintf(&b, "Race Status: %s\n", rd.Status)
	if rd.Event != nil {
		fmt.Fprintf(&b, "Event: %s\n", rd.Event.EventName)
	}
	b.WriteString("\n")

	if len(rd.Racers) == 0 {
		b.WriteString("No racers in current race\n")
	} else {
		placed, unplaced := lo.FilterReject(rd.Racers, func(r *model.Racer, _ int) bool {
			_, ok := r.Place.Numeric()
			return ok
		})
		slices.SortStableFunc(placed, func(a, b *model.Racer) int { return a.Place.Compare(b.Place) })
		slices.SortStableFunc(unplaced, func(a, b *model.Racer) int { return a.Lane - b.Lane })

		fmt.Fprintf(&b, "## Number of racers ##: %d\n", len(rd.Racers))
		b.WriteString("Current Standings:\n")
		b.WriteString("Lane | Place | Last Split | Final Time | Laps Remaining | Name\n")
		b.WriteString("-----|-------|------------|------------|----------------|-----\n")
		for _, r := range placed {
			fmt.Fprintf(&b, "%4d | %5s | %10s | %10s | %14s | %s\n",
				r.Lane, r.Place.Text(),
				formatDuration(r.LastSplitTime, 3), formatDuration(r.FinalTime, 3),
				r.LapsRemaining.String(), racerName(r))
		}
		if len(unplaced) > 0 {
			b.WriteString("\nUnplaced Racers:\n")
			for _, r := range unplaced {
				fmt.Fprintf(&b, "%4d | %5s | %10s | %10s | %14s | %s\n",
					r.Lane, lo.Ternary(r.Place.HasPlace(), r.Place.Text(), "--"),
					formatDuration(r.LastSplitTime, 1), formatDuration(r.FinalTime, 1),
					r.LapsRemaining.String(), racerName(r))
			}
		}
	}
	b.WriteString("\n==========================================\n\n")
	return b.String()
}

// formatDuration renders mm:ss with the given number of fraction digits.
func formatDuration(d *time.Duration, digits int) string {
	if d == nil {
		return "--:--.-"
	}
	v := *d
	minutes := int(v / time.Minute)
	seconds := (v % time.Minute).Seconds()
	width := 3 + digits
	return fmt.Sprintf("%02d:%0*.*f", minutes, width, digits, seconds)
}

func racerName(r *model.Racer) string {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Sprintf("Racer %d", r.Lane)
	}
	return r.Name
}

func ellipsis(s string, width int) string {
	runes := []rune(s)
	if len(runes) > width {
		return string(runes[:width]) + "..."
	}
	return s + strings.Repeat(" ", width-len(runes))
}
