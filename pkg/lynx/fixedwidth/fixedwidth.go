// Package fixedwidth extracts column values from the fixed width lines
// FinishLynx sends for start lists, started and results messages.
package fixedwidth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidLength = errors.New("length must be positive")
	ErrInvalidOffset = errors.New("start must not be negative")
)

// Converter converts an extracted (trimmed) column value
type Converter[T any] func(string) (T, error)

// Column is a field location within a line counted in characters.
type Column struct {
	Start  int
	Length int
}

func (c Column) validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("column %d/%d: %w", c.Start, c.Length, ErrInvalidLength)
	}
	if c.Start < 0 {
		return fmt.Errorf("column %d/%d: %w", c.Start, c.Length, ErrInvalidOffset)
	}
	return nil
}

// Raw returns the text of the column without trimming.
// If the line ends within the column the remaining text is returned,
// if it ends before the column an empty string is returned.
func Raw(line string, col Column) (string, error) {
	if err := col.validate(); err != nil {
		return "", err
	}
	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, "�")
	}
	runes := []rune(line)
	if col.Start >= len(runes) {
		return "", nil
	}
	end := min(col.Start+col.Length, len(runes))
	return string(runes[col.Start:end]), nil
}

// Extract returns the converted value of the trimmed column text.
// def is returned if the column is empty, missing or not convertible.
// A misconfigured column panics as this is a programming error.
func Extract[T any](line string, col Column, conv Converter[T], def T) T {
	raw, err := Raw(line, col)
	if err != nil {
		panic(err)
	}
	v := strings.TrimSpace(raw)
	if v == "" {
		return def
	}
	ret, err := conv(v)
	if err != nil {
		return def
	}
	return ret
}

// String returns the trimmed column text or def if empty.
func String(line string, col Column, def string) string {
	return Extract(line, col, func(s string) (string, error) { return s, nil }, def)
}

// Int returns the column as int or def if empty or not numeric.
func Int(line string, col Column, def int) int {
	return Extract(line, col, strconv.Atoi, def)
}
