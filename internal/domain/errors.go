package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyInRoom     = errors.New("already in room")
	ErrMemberNotFound    = errors.New("member not found")
	ErrNotInRoom         = errors.New("not in a room")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRoomLimitReached  = errors.New("room limit reached")
)
