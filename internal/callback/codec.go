// Package callback encodes and decodes the compact action tokens carried in
// inline keyboard button payloads.
//
// A token is a marker followed by one to four fields, joined with "|":
//
//	val|cancel
//	prop|lang|ru
//	prop2|game|toggle|3
//	prop3|quiz|12|40|118
//
// The marker declares the arity, so a token whose field count disagrees with
// its marker is rejected.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Separator = "|"

	// MaxTokenLen is the Telegram limit for callback_data.
	MaxTokenLen = 64
)

const (
	MarkerValue     = "val"
	MarkerProperty  = "prop"
	MarkerProperty2 = "prop2"
	MarkerProperty3 = "prop3"
)

var (
	ErrMalformedToken    = errors.New("malformed callback token")
	ErrUnknownMarker     = errors.New("unknown callback marker")
	ErrReservedSeparator = errors.New("callback field contains separator")
	ErrTokenTooLong      = errors.New("callback token too long")
)

const (
	minArity = 1
	maxArity = 4
)

// Token is a decoded callback payload.
type Token struct {
	Marker string
	Fields []string
}

// Property is the first field. For the val family it is the value itself.
func (t Token) Property() string {
	return t.Value(0)
}

// Value returns field i or "" when out of range.
func (t Token) Value(i int) string {
	if i < 0 || i >= len(t.Fields) {
		return ""
	}
	return t.Fields[i]
}

// Int64 parses field i as a database identifier.
func (t Token) Int64(i int) (int64, error) {
	if i < 0 || i >= len(t.Fields) {
		return 0, fmt.Errorf("field %d: %w", i, ErrMalformedToken)
	}
	v, err := strconv.ParseInt(t.Fields[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %d: %w", i, ErrMalformedToken)
	}
	return v, nil
}

func (t Token) String() string {
	return t.Marker + Separator + strings.Join(t.Fields, Separator)
}

// Codec maps markers to their declared arity.
type Codec struct {
	arity map[string]int
}

// Default knows the four marker families used by the bot.
var Default = MustNew(map[string]int{
	MarkerValue:     1,
	MarkerProperty:  2,
	MarkerProperty2: 3,
	MarkerProperty3: 4,
})

func New(schemas map[string]int) (*Codec, error) {
	c := &Codec{arity: make(map[string]int, len(schemas))}
	for marker, n := range schemas {
		if marker == "" || strings.Contains(marker, Separator) {
			return nil, fmt.Errorf("marker %q: %w", marker, ErrReservedSeparator)
		}
		if n < minArity || n > maxArity {
			return nil, fmt.Errorf("marker %q: arity %d out of range", marker, n)
		}
		c.arity[marker] = n
	}
	return c, nil
}

func MustNew(schemas map[string]int) *Codec {
	c, err := New(schemas)
	if err != nil {
		panic(err)
	}
	return c
}

// Encode joins marker and fields after checking them against the schema.
func (c *Codec) Encode(marker string, fields ...string) (string, error) {
	n, ok := c.arity[marker]
	if !ok {
		return "", fmt.Errorf("%q: %w", marker, ErrUnknownMarker)
	}
	if len(fields) != n {
		return "", fmt.Errorf("%q wants %d fields, got %d: %w", marker, n, len(fields), ErrMalformedToken)
	}
	for i, f := range fields {
		if f == "" {
			return "", fmt.Errorf("%q field %d is empty: %w", marker, i, ErrMalformedToken)
		}
		if strings.Contains(f, Separator) {
			return "", fmt.Errorf("%q field %d: %w", marker, i, ErrReservedSeparator)
		}
	}

	token := marker + Separator + strings.Join(fields, Separator)
	if len(token) > MaxTokenLen {
		return "", fmt.Errorf("%d bytes: %w", len(token), ErrTokenTooLong)
	}
	return token, nil
}

// Decode splits a token and validates it against the marker's arity.
func (c *Codec) Decode(token string) (Token, error) {
	parts := strings.Split(token, Separator)
	n := len(parts) - 1
	if n < minArity || n > maxArity {
		return Token{}, fmt.Errorf("%d fields: %w", n, ErrMalformedToken)
	}

	marker := parts[0]
	want, ok := c.arity[marker]
	if !ok {
		return Token{}, fmt.Errorf("%q: %w", marker, ErrUnknownMarker)
	}
	if n != want {
		return Token{}, fmt.Errorf("%q wants %d fields, got %d: %w", marker, want, n, ErrMalformedToken)
	}

	return Token{Marker: marker, Fields: parts[1:]}, nil
}

// Encode uses the Default codec.
func Encode(marker string, fields ...string) (string, error) {
	return Default.Encode(marker, fields...)
}

// Decode uses the Default codec.
func Decode(token string) (Token, error) {
	return Default.Decode(token)
}

// MustEncode is for button payloads built from constants and database ids.
func MustEncode(marker string, fields ...string) string {
	token, err := Default.Encode(marker, fields...)
	if err != nil {
		panic(err)
	}
	return token
}
