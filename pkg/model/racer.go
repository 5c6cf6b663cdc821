package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var half = decimal.NewFromFloat(0.5)

type Racer struct {
	Lane                int            `json:"lane"`
	ID                  int            `json:"id"`
	Name                string         `json:"name"`
	Affiliation         string         `json:"affiliation"`
	Place               PlaceRank      `json:"place"`
	ReactionTime        *time.Duration `json:"reactionTime"`
	CumulativeSplitTime *time.Duration `json:"cumulativeSplitTime"`
	LastSplitTime       *time.Duration `json:"lastSplitTime"`
	BestSplitTime       *time.Duration `json:"bestSplitTime"`
	// use SetLapsRemaining/UpdateLapsRemaining for changes during a race
	LapsRemaining        decimal.Decimal     `json:"lapsRemaining"`
	DelayedLapsRemaining decimal.Decimal     `json:"delayedLapsRemaining"`
	LapCountLastChanged  *time.Time          `json:"lapCountLastChanged"`
	Speed                decimal.NullDecimal `json:"speed"`
	Pace                 decimal.NullDecimal `json:"pace"`
	FinalTime            *time.Duration      `json:"finalTime"`
	DeltaTime            *time.Duration      `json:"deltaTime"`
	HasFinished          bool                `json:"hasFinished"`
}

// SetLapsRemaining applies a new lap count with delayed display.
// The previous value stays visible until the delay window passed.
// On the first real observation no delay is applied.
func (r *Racer) SetLapsRemaining(value decimal.Decimal, now time.Time) {
	if r.LapsRemaining.Equal(value) {
		return
	}
	r.DelayedLapsRemaining = r.LapsRemaining
	r.stamp(now)
	r.LapsRemaining = value
	if r.DelayedLapsRemaining.IsZero() && value.IsPositive() {
		r.DelayedLapsRemaining = value
	}
}

// UpdateLapsRemaining sets the lap count either delayed or immediately.
func (r *Racer) UpdateLapsRemaining(value decimal.Decimal, skipDelay bool, now time.Time) {
	if !skipDelay {
		r.SetLapsRemaining(value, now)
		return
	}
	if r.LapsRemaining.Equal(value) {
		return
	}
	r.LapsRemaining = value
	r.DelayedLapsRemaining = value
	r.stamp(now)
}

// HoldLapCount sets the delayed value and restarts the delay window.
func (r *Racer) HoldLapCount(value decimal.Decimal, now time.Time) {
	r.DelayedLapsRemaining = value
	r.stamp(now)
}

// InitializeDelayedLapCount starts the delay tracking for a racer new to the race.
func (r *Racer) InitializeDelayedLapCount(now time.Time) {
	r.DelayedLapsRemaining = r.LapsRemaining
	r.stamp(now)
}

// DelayedLapsAt returns the lap count to be displayed at now.
// A lap count <= 0 is returned as zero immediately.
func (r *Racer) DelayedLapsAt(delay time.Duration, now time.Time) decimal.Decimal {
	if !r.LapsRemaining.IsPositive() {
		return decimal.Zero
	}
	if r.LapCountLastChanged == nil {
		return r.LapsRemaining
	}
	if now.Sub(*r.LapCountLastChanged) >= delay {
		return r.LapsRemaining
	}
	return r.DelayedLapsRemaining
}

func (r *Racer) HasHalfLap() bool {
	return r.LapsRemaining.Mod(decimal.NewFromInt(1)).Equal(half)
}

// HasSplitData reports whether any place or split information is present.
func (r *Racer) HasSplitData() bool {
	return r.Place.HasPlace() ||
		r.CumulativeSplitTime != nil ||
		r.LastSplitTime != nil ||
		r.BestSplitTime != nil
}

func (r *Racer) HasFirstCrossing() bool {
	return r.CumulativeSplitTime != nil || r.LastSplitTime != nil
}

func (r *Racer) Clone() *Racer {
	ret := *r
	ret.ReactionTime = cloneDuration(r.ReactionTime)
	ret.CumulativeSplitTime = cloneDuration(r.CumulativeSplitTime)
	ret.LastSplitTime = cloneDuration(r.LastSplitTime)
	ret.BestSplitTime = cloneDuration(r.BestSplitTime)
	ret.FinalTime = cloneDuration(r.FinalTime)
	ret.DeltaTime = cloneDuration(r.DeltaTime)
	if r.LapCountLastChanged != nil {
		t := *r.LapCountLastChanged
		ret.LapCountLastChanged = &t
	}
	return &ret
}

func (r *Racer) stamp(now time.Time) {
	t := now
	r.LapCountLastChanged = &t
}

func (r *Racer) String() string {
	return fmt.Sprintf("Racer: Lane=%d, Id=%d, Name='%s', Affiliation='%s', Place=%s, Laps=%s",
		r.Lane, r.ID, r.Name, r.Affiliation, r.Place.Text(), r.LapsRemaining)
}
