package utils

import (
	"strings"

	"github.com/google/uuid"
)

// UniqueString returns 32 random lowercase hex characters. Meeting ids and generated
// meeting passwords use it.
func UniqueString() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ShortString returns the first n characters of a UniqueString, n at most 32.
func ShortString(n int) string {
	s := UniqueString()
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// RoomID is the public identifier of a new room, also used as its meeting id.
func RoomID() string { return ShortString(12) }

// RoomPassword is a shared join password short enough to read out.
func RoomPassword() string { return ShortString(6) }
