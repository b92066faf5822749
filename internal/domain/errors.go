package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrExecutionBlocked   = errors.New("execution not permitted")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrSyncStopped        = errors.New("sync stopped")
)
