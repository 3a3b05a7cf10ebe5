package domain

import (
	"errors"
	"strings"
)

const MaxUsernameLen = 20

var (
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameBlank   = errors.New("username blank after trim")
	ErrUsernameCharset = errors.New("username has invalid characters")
	ErrRoomCodeLength  = errors.New("room code must be 6 characters")
)

// SanitizeUsername trims and bounds a raw display name. Over-long input
// is truncated silently rather than rejected; everything else invalid is
// a typed error.
func SanitizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		name = name[:MaxUsernameLen]
	}
	for _, r := range name {
		if !usernameRune(r) {
			return "", ErrUsernameCharset
		}
	}
	if strings.ReplaceAll(name, " ", "") == "" {
		return "", ErrUsernameBlank
	}
	return name, nil
}

func usernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '-' || r == '_':
		return true
	}
	return false
}

// NormalizeRoomCode uppercases a typed-in room code so joins are
// case-insensitive.
func NormalizeRoomCode(raw string) (RoomCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != RoomCodeLen {
		return "", ErrRoomCodeLength
	}
	return RoomCode(code), nil
}
