package backend

import "errors"

var (
	ErrInputRequired     = errors.New("input is required")
	ErrSessionIDRequired = errors.New("session_id is required")
)
