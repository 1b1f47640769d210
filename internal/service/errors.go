package service

import "errors"

var (
	ErrRateLimited    = errors.New("too many payment attempts, try again later")
	ErrAmountMismatch = errors.New("payment amount does not match the booking")
	ErrUnknownStatus  = errors.New("unsupported status override")
)
