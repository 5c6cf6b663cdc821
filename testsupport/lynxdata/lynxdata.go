// Package lynxdata builds FinishLynx messages in wire layout for tests.
package lynxdata

import (
	"fmt"
	"strings"
	"time"
)

const (
	crlf    = "\r\n"
	trailer = "*** StartList/Started/ResultsTrailer ***"
)

type (
	Event struct {
		Name        string
		Wind        string
		EventNumber string
		Round       int
		Heat        int
		EeeRhhName  string
		StartType   string // AUTO or MANUAL
		Results     int
		Official    string // OFFICIAL or UNOFFICIAL
	}
	Entry struct {
		Lane        int
		ID          int
		Name        string
		Affiliation string
		Laps        string
	}
	StartedEntry struct {
		Place    string
		Lane     int
		Reaction string
		Cum      string
		Last     string
		Best     string
		Laps     string
		Speed    string
		Pace     string
	}
	ResultEntry struct {
		Place       string
		Lane        int
		ID          int
		Name        string
		Affiliation string
		Final       string
		Delta       string
		Reaction    string
	}
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2025-03-01T10:00:00Z")
	return t
}

func SampleEvent() Event {
	return Event{
		Name:        "Ladies 500m",
		Wind:        "0.0",
		EventNumber: "12",
		Round:       1,
		Heat:        2,
		EeeRhhName:  "012-1-02",
		StartType:   "AUTO",
		Results:     2,
		Official:    "UNOFFICIAL",
	}
}

func SampleEntries() []Entry {
	return []Entry{
		{Lane: 1, ID: 100, Name: "Adella Akanko", Affiliation: "Ottawa SSC", Laps: "4"},
		{Lane: 2, ID: 261, Name: "Autumn Vandermeer", Affiliation: "London SSC", Laps: "4"},
	}
}

// StartListHeader returns the header block without racers and trailer.
func StartListHeader(ev Event) string {
	var b strings.Builder
	b.WriteString("*** StartListHeader ***" + crlf)
	fmt.Fprintf(&b, "Event name: %s%s", ev.Name, crlf)
	fmt.Fprintf(&b, "Wind: %s%s", ev.Wind, crlf)
	fmt.Fprintf(&b, "Event number: %s%s", ev.EventNumber, crlf)
	fmt.Fprintf(&b, "Round number: %d%s", ev.Round, crlf)
	fmt.Fprintf(&b, "Heat number: %d%s", ev.Heat, crlf)
	fmt.Fprintf(&b, "EEE-R-HH Name: %s%s", ev.EeeRhhName, crlf)
	fmt.Fprintf(&b, "AUTO/MANUAL start: %s%s", ev.StartType, crlf)
	fmt.Fprintf(&b, "Number of results: %d%s", ev.Results, crlf)
	fmt.Fprintf(&b, "OFFICIAL/UNOFFICIAL: %s%s", ev.Official, crlf)
	b.WriteString(fmt.Sprintf("%-3s %-4s %-50s %-30s %s", "Ln", "Id", "Name", "Affiliation", "Laps") + crlf)
	b.WriteString(dashes(3, 4, 50, 30, 5) + crlf)
	return b.String()
}

// StartListBody returns the racer lines followed by the trailer.
func StartListBody(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(StartListLine(e) + crlf)
	}
	b.WriteString(trailer + crlf)
	return b.String()
}

func StartList(ev Event, entries []Entry) string {
	return StartListHeader(ev) + StartListBody(entries)
}

func StartListLine(e Entry) string {
	return fmt.Sprintf("%-3d %-4d %-50s %-30s %s", e.Lane, e.ID, e.Name, e.Affiliation+`"`, e.Laps)
}

func Started(entries []StartedEntry) string {
	var b strings.Builder
	b.WriteString("*** StartedHeader ***" + crlf)
	b.WriteString("Plc Ln  ReacTime Cum ST   Last ST  Best ST  Laps   Speed  Pace  " + crlf)
	b.WriteString(dashes(3, 3, 8, 8, 8, 8, 6, 6, 6) + crlf)
	for _, e := range entries {
		b.WriteString(StartedLine(e) + crlf)
	}
	b.WriteString(trailer + crlf)
	return b.String()
}

func StartedLine(e StartedEntry) string {
	return strings.TrimRight(fmt.Sprintf("%-3s %-3d %-8s %-8s %-8s %-8s %-6s %-6s %s",
		e.Place, e.Lane, e.Reaction, e.Cum, e.Last, e.Best, e.Laps, e.Speed, e.Pace), " ")
}

func Results(ev Event, entries []ResultEntry) string {
	var b strings.Builder
	b.WriteString("*** ResultsHeader ***" + crlf)
	fmt.Fprintf(&b, "Event name: %s%s", ev.Name, crlf)
	fmt.Fprintf(&b, "OFFICIAL/UNOFFICIAL: %s%s", ev.Official, crlf)
	b.WriteString(fmt.Sprintf("%-3s %-3s %-4s %-50s %-30s %-8s %-8s %s",
		"Plc", "Ln", "Id", "Name", "Affiliation", "Time", "Delta", "ReacTime") + crlf)
	b.WriteString(dashes(3, 3, 4, 50, 30, 8, 8, 8) + crlf)
	for _, e := range entries {
		b.WriteString(ResultsLine(e) + crlf)
	}
	b.WriteString(trailer + crlf)
	return b.String()
}

func ResultsLine(e ResultEntry) string {
	return fmt.Sprintf("%-3s %-3d %-4d %-50s %-30s %-8s %-8s %-8s",
		e.Place, e.Lane, e.ID, e.Name, e.Affiliation+`"`, e.Final, e.Delta, e.Reaction)
}

func RunningTime(value string) string {
	return "Running time: " + value + crlf
}

func Announcement(lines ...string) string {
	var b strings.Builder
	b.WriteString("*** AnnouncementHeader ***" + crlf)
	for _, l := range lines {
		b.WriteString(l + crlf)
	}
	b.WriteString("*** AnnouncementTrailer ***" + crlf)
	return b.String()
}

func dashes(widths ...int) string {
	parts := make([]string, 0, len(widths))
	for _, w := range widths {
		parts = append(parts, strings.Repeat("-", w))
	}
	return strings.Join(parts, " ")
}
