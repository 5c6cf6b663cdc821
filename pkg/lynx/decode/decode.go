// Package decode detects the text encoding of raw chunks received from FinishLynx.
package decode

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
)

type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingUTF16LE
	EncodingUTF8
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF16LE:
		return "UTF-16LE"
	case EncodingUTF8:
		return "UTF-8"
	default:
		return "none"
	}
}

const (
	minUTF16Ratio = 0.7
	minUTF8Ratio  = 0.8
)

var utf16le = xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM)

// Text decodes data as UTF-16LE or UTF-8.
// It returns false if data looks like neither of them.
func Text(data []byte) (string, Encoding, bool) {
	if len(data) == 0 {
		return "", EncodingNone, false
	}
	if s, ok := asUTF16(data); ok {
		return s, EncodingUTF16LE, true
	}
	if s, ok := asUTF8(data); ok {
		return s, EncodingUTF8, true
	}
	return "", EncodingNone, false
}

// Latin text encoded as UTF-16LE always contains zero bytes.
// Without this check plain ASCII of even length would decode to CJK letters.
func asUTF16(data []byte) (string, bool) {
	if len(data)%2 != 0 || bytes.IndexByte(data, 0) < 0 {
		return "", false
	}
	decoded, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	total, printable := 0, 0
	for _, r := range string(decoded) {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || float64(printable)/float64(total) < minUTF16Ratio {
		return "", false
	}
	return string(decoded), true
}

func asUTF8(data []byte) (string, bool) {
	printable := 0
	for _, b := range data {
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	if float64(printable)/float64(len(data)) < minUTF8Ratio {
		return "", false
	}
	if !utf8.Valid(data) {
		return string(bytes.ToValidUTF8(data, []byte("�"))), true
	}
	return string(data), true
}

// EncodeUTF16LE returns s encoded the way FinishLynx sends its messages.
func EncodeUTF16LE(s string) ([]byte, error) {
	return xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
}
