package app

import "errors"

// Operation errors surfaced to clients as an `error` event. None is
// fatal to the process and none leaves partial state behind.
var (
	ErrServerFull    = errors.New("server is full, try again later")
	ErrRoomFull      = errors.New("room is full")
	ErrRoomNotFound  = errors.New("room not found, check the code and try again")
	ErrUsernameTaken = errors.New("that username is already taken in this room")
	ErrCodeExhausted = errors.New("no room codes available")
	ErrRateLimited   = errors.New("too many requests, slow down")
	ErrNotInRoom     = errors.New("not in a room")
)
