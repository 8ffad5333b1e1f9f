package executor

import "errors"

var (
	ErrUnknownExecutorType = errors.New("unknown executor type")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionRunning      = errors.New("session already running")
	ErrInputRequired       = errors.New("input is required")
)
