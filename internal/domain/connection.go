// Package domain contains the relay's entities and the input validation
// rules that guard them. No transport or lifecycle logic lives here.
package domain

import "time"

type SessionID string

// Connection is one live client session. The registry owns it: created
// on a successful create/join, destroyed on leave or disconnect.
type Connection struct {
	ID       SessionID
	Username string
	RoomCode RoomCode
	JoinedAt time.Time
	Muted    bool
}
