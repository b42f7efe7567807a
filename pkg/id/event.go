// Package id issues public identifiers for journal entries.
package id

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// EventIDLen is the length of an event id: a random UUID as bare lowercase hex.
const EventIDLen = 32

func NewEventID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ValidEventID reports whether s has the NewEventID form.
func ValidEventID(s string) bool {
	if len(s) != EventIDLen {
		return false
	}
	b, err := hex.DecodeString(s)
	if err != nil || hex.EncodeToString(b) != s {
		return false
	}
	u, err := uuid.FromBytes(b)
	return err == nil && u.Version() == 4
}
