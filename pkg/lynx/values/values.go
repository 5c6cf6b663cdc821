// Package values converts time and lap tokens used by FinishLynx into typed values.
package values

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	nanosPerSecond = decimal.NewFromInt(int64(time.Second))
	halfLap        = decimal.NewFromFloat(0.5)
)

// ParseDuration parses "SS", "SS.f" or "M:SS.f".
// It returns nil for empty, zero valued or unparseable input.
func ParseDuration(text string) *time.Duration {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	minutes := int64(0)
	secPart := text
	if m, s, found := strings.Cut(text, ":"); found {
		if strings.Contains(s, ":") {
			return nil
		}
		v, err := strconv.ParseInt(m, 10, 64)
		if err != nil || v < 0 {
			return nil
		}
		minutes = v
		secPart = s
	}
	sec, err := decimal.NewFromString(secPart)
	if err != nil || sec.IsNegative() {
		return nil
	}
	d := time.Duration(minutes)*time.Minute + time.Duration(sec.Mul(nanosPerSecond).IntPart())
	if d == 0 {
		return nil
	}
	return &d
}

// ParseLaps parses a lap count like "9", "4.5", "4 1/2" or "1/2".
// Empty or unparseable input yields zero.
func ParseLaps(text string) decimal.Decimal {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Zero
	}
	if text == "1/2" {
		return halfLap
	}
	if whole, ok := strings.CutSuffix(text, "1/2"); ok {
		whole = strings.TrimSpace(whole)
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil || whole == "" {
			return decimal.Zero
		}
		return decimal.NewFromInt(v).Add(halfLap)
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero
	}
	return v
}
