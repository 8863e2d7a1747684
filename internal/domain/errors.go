package domain

import "errors"

var (
	ErrMalformedData   = errors.New("malformed data")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrStale           = errors.New("stale market data")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrLockHeld        = errors.New("lock already held")
)
