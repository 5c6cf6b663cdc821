// Package view builds the race data representation delivered to clients.
package view

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/weblynx-service-go/pkg/config"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

type SortOrder string

const (
	SortByPlace SortOrder = "place"
	SortByLane  SortOrder = "lane"
)

// ParseSortOrder returns SortByPlace for everything except "lane".
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(SortByLane)) {
		return SortByLane
	}
	return SortByPlace
}

type (
	RaceData struct {
		CurrentTime         null.Val[float64] `json:"currentTime"`
		Event               *model.RaceEvent  `json:"event"`
		Status              model.RaceStatus  `json:"status"`
		LastUpdated         time.Time         `json:"lastUpdated"`
		AnnouncementMessage string            `json:"announcementMessage"`
		HalfLapModeEnabled  bool              `json:"halfLapModeEnabled"`
		HasHalfLapLaps      bool              `json:"hasHalfLapLaps"`
		Racers              []Racer           `json:"racers"`
		KeyValues           map[string]string `json:"keyValues"`
	}

	// Racer contains durations as seconds.
	Racer struct {
		Lane                 int                       `json:"lane"`
		ID                   int                       `json:"id"`
		Name                 string                    `json:"name"`
		Affiliation          string                    `json:"affiliation"`
		PlaceText            string                    `json:"placeText"`
		HasPlaceData         bool                      `json:"hasPlaceData"`
		ReactionTime         null.Val[float64]         `json:"reactionTime"`
		CumulativeSplitTime  null.Val[float64]         `json:"cumulativeSplitTime"`
		LastSplitTime        null.Val[float64]         `json:"lastSplitTime"`
		BestSplitTime        null.Val[float64]         `json:"bestSplitTime"`
		LapsRemaining        decimal.Decimal           `json:"lapsRemaining"`
		DelayedLapsRemaining decimal.Decimal           `json:"delayedLapsRemaining"`
		LapCountLastChanged  null.Val[time.Time]       `json:"lapCountLastChanged"`
		Speed                null.Val[decimal.Decimal] `json:"speed"`
		Pace                 null.Val[decimal.Decimal] `json:"pace"`
		FinalTime            null.Val[float64]         `json:"finalTime"`
		DeltaTime            null.Val[float64]         `json:"deltaTime"`
		HasFinished          bool                      `json:"hasFinished"`
		HasFirstCrossing     bool                      `json:"hasFirstCrossing"`
	}
)

// NewRaceData converts a race state snapshot. Delayed lap counts are evaluated at now.
func NewRaceData(
	rd *model.RaceData,
	settings config.LapCounterSettings,
	keyValues map[string]string,
	order SortOrder,
	now time.Time,
) *RaceData {
	delay := settings.DelayWindow()
	if keyValues == nil {
		keyValues = map[string]string{}
	}
	return &RaceData{
		CurrentTime:         seconds(rd.CurrentTime),
		Event:               rd.Event,
		Status:              rd.Status,
		LastUpdated:         rd.LastUpdated,
		AnnouncementMessage: rd.Announcement,
		HalfLapModeEnabled:  settings.HalfLapModeEnabled,
		HasHalfLapLaps:      rd.HasHalfLapLaps(),
		KeyValues:           keyValues,
		Racers: lo.Map(SortRacers(rd.Racers, order), func(r *model.Racer, _ int) Racer {
			return newRacer(r, delay, now)
		}),
	}
}

// SortRacers returns a sorted copy. By place ties are ordered by lane.
func SortRacers(racers []*model.Racer, order SortOrder) []*model.Racer {
	ret := slices.Clone(racers)
	if order == SortByLane {
		slices.SortStableFunc(ret, func(a, b *model.Racer) int { return cmp.Compare(a.Lane, b.Lane) })
		return ret
	}
	slices.SortStableFunc(ret, func(a, b *model.Racer) int {
		if c := a.Place.Compare(b.Place); c != 0 {
			return c
		}
		return cmp.Compare(a.Lane, b.Lane)
	})
	return ret
}

func newRacer(r *model.Racer, delay time.Duration, now time.Time) Racer {
	ret := Racer{
		Lane:                 r.Lane,
		ID:                   r.ID,
		Name:                 r.Name,
		Affiliation:          r.Affiliation,
		PlaceText:            r.Place.Text(),
		HasPlaceData:         r.Place.HasPlace(),
		ReactionTime:         seconds(r.ReactionTime),
		CumulativeSplitTime:  seconds(r.CumulativeSplitTime),
		LastSplitTime:        seconds(r.LastSplitTime),
		BestSplitTime:        seconds(r.BestSplitTime),
		LapsRemaining:        r.LapsRemaining,
		DelayedLapsRemaining: r.DelayedLapsAt(delay, now),
		LapCountLastChanged:  null.FromPtr(r.LapCountLastChanged),
		FinalTime:            seconds(r.FinalTime),
		DeltaTime:            seconds(r.DeltaTime),
		HasFinished:          r.HasFinished,
		HasFirstCrossing:     r.HasFirstCrossing(),
	}
	if r.Speed.Valid {
		ret.Speed = null.From(r.Speed.Decimal)
	}
	if r.Pace.Valid {
		ret.Pace = null.From(r.Pace.Decimal)
	}
	return ret
}

func seconds(d *time.Duration) null.Val[float64] {
	if d == nil {
		return null.Val[float64]{}
	}
	return null.From(d.Seconds())
}
