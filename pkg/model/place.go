package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PlaceRank is the standing of a racer as sent by the timing device.
// Ordering: positive integers (by value), then blanks, then codes like DNF (ordinal).
type PlaceRank struct {
	text string
}

type placeClass int

const (
	placeNumeric placeClass = iota + 1
	placeBlank
	placeCode
)

func NewPlaceRank(text string) PlaceRank {
	return PlaceRank{text: strings.TrimSpace(text)}
}

func (p PlaceRank) Text() string {
	return p.text
}

func (p PlaceRank) HasPlace() bool {
	return p.text != ""
}

// Numeric returns the place as integer if it is a positive integer.
func (p PlaceRank) Numeric() (int, bool) {
	v, err := strconv.Atoi(p.text)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (p PlaceRank) class() placeClass {
	if _, ok := p.Numeric(); ok {
		return placeNumeric
	}
	if p.text == "" {
		return placeBlank
	}
	return placeCode
}

// Compare returns -1, 0 or 1 if p sorts before, equal to or after other.
func (p PlaceRank) Compare(other PlaceRank) int {
	pc, oc := p.class(), other.class()
	if pc != oc {
		if pc < oc {
			return -1
		}
		return 1
	}
	switch pc {
	case placeNumeric:
		a, _ := p.Numeric()
		b, _ := other.Numeric()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case placeCode:
		return strings.Compare(p.text, other.text)
	default:
		return 0
	}
}

// CompareTo compares against an optional rank. An absent rank sorts before any value.
func (p PlaceRank) CompareTo(other *PlaceRank) int {
	if other == nil {
		return 1
	}
	return p.Compare(*other)
}

func (p PlaceRank) String() string {
	return p.text
}

func (p PlaceRank) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.text)
}

func (p *PlaceRank) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = NewPlaceRank(s)
	return nil
}
