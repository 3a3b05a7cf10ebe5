package domain

import "time"

type RoomCode string

const RoomCodeLen = 6

// Room holds room meta-data only; membership lives in the registry so
// that every mutation happens under one lock.
type Room struct {
	Code           RoomCode
	CreatedAt      time.Time
	LastActivityAt time.Time
}
