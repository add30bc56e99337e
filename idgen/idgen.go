// Package idgen provides pluggable ID generation.
//
// Stores that persist records accept a Generator at construction, so the
// ID strategy is chosen at startup rather than baked into each package.
package idgen

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Default is the package-wide default: time-sortable UUIDv7 (RFC 9562).
// Callers wanting typed IDs compose with Prefixed.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings,
// globally unique and ordered by creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator producing short base-36 IDs of the given
// length. URL-safe and cheap; prefer UUIDv7 unless the extra length is
// a problem (session handles, short-lived keys).
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = alphabet[int(b)%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends a fixed type prefix ("sess_", "bmk_") to every ID
// from the inner generator.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped produces IDs of the form "20060102T150405Z_<suffix>",
// where the suffix comes from the inner generator.
func Timestamped(gen Generator) Generator {
	return func() string {
		return time.Now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}

// MustParse is Parse that panics on invalid input.
func MustParse(s string) string {
	_ = uuid.MustParse(s)
	return s
}
