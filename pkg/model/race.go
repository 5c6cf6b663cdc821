package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type RaceStatus int

const (
	RaceStatusNotStarted RaceStatus = iota
	RaceStatusRunning
	RaceStatusPaused
	RaceStatusFinished
)

var raceStatusNames = map[RaceStatus]string{
	RaceStatusNotStarted: "NotStarted",
	RaceStatusRunning:    "Running",
	RaceStatusPaused:     "Paused",
	RaceStatusFinished:   "Finished",
}

func (s RaceStatus) String() string {
	if n, ok := raceStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RaceStatus(%d)", int(s))
}

func (s RaceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RaceStatus) UnmarshalText(data []byte) error {
	for k, v := range raceStatusNames {
		if v == string(data) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown race status %q", string(data))
}

type StartType int

const (
	StartTypeAuto StartType = iota
	StartTypeManual
)

func (s StartType) String() string {
	if s == StartTypeManual {
		return "Manual"
	}
	return "Auto"
}

func (s StartType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StartType) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	switch text {
	case "Auto":
		*s = StartTypeAuto
	case "Manual":
		*s = StartTypeManual
	default:
		return fmt.Errorf("unknown start type %q", text)
	}
	return nil
}

// RaceEvent is the header information of a start list
type RaceEvent struct {
	EventName       string    `json:"eventName"`
	Wind            string    `json:"wind"`
	EventNumber     string    `json:"eventNumber"`
	RoundNumber     int       `json:"roundNumber"`
	HeatNumber      int       `json:"heatNumber"`
	EeeRhhName      string    `json:"eeeRhhName"`
	StartType       StartType `json:"startType"`
	IsOfficial      bool      `json:"isOfficial"`
	NumberOfResults int       `json:"numberOfResults"`
}

// RaceData holds the state of the current race
type RaceData struct {
	Event        *RaceEvent     `json:"event"`
	Racers       []*Racer       `json:"racers"`
	CurrentTime  *time.Duration `json:"currentTime"`
	Status       RaceStatus     `json:"status"`
	LastUpdated  time.Time      `json:"lastUpdated"`
	Announcement string         `json:"announcementMessage,omitempty"`
}

func NewRaceData(now time.Time) *RaceData {
	return &RaceData{
		Racers:      make([]*Racer, 0),
		Status:      RaceStatusNotStarted,
		LastUpdated: now,
	}
}

// RacerByLane returns the racer assigned to lane or nil.
func (r *RaceData) RacerByLane(lane int) *Racer {
	for _, racer := range r.Racers {
		if racer.Lane == lane {
			return racer
		}
	}
	return nil
}

// HasHalfLapLaps reports whether any racer has a fractional (x.5) lap count.
func (r *RaceData) HasHalfLapLaps() bool {
	for _, racer := range r.Racers {
		if racer.HasHalfLap() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy which is not affected by later changes of r.
func (r *RaceData) Clone() *RaceData {
	ret := &RaceData{
		Status:       r.Status,
		LastUpdated:  r.LastUpdated,
		Announcement: r.Announcement,
		CurrentTime:  cloneDuration(r.CurrentTime),
		Racers:       make([]*Racer, 0, len(r.Racers)),
	}
	if r.Event != nil {
		ev := *r.Event
		ret.Event = &ev
	}
	for _, racer := range r.Racers {
		ret.Racers = append(ret.Racers, racer.Clone())
	}
	return ret
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
