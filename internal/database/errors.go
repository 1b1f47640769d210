package database

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomUnavailable        = errors.New("room is fully booked for the requested dates")
	ErrAlreadyResolved        = errors.New("payment attempt already resolved")
	ErrAttemptInProgress      = errors.New("another payment attempt is in progress for this booking")
)
