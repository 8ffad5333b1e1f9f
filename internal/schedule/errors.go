package schedule

import "errors"

var (
	ErrCommandRequired = errors.New("command is required")
	ErrDateRequired    = errors.New("date is required")
	ErrTimeRequired    = errors.New("time is required")
	ErrTaskNotFound    = errors.New("scheduled task not found")
	ErrAmbiguousID     = errors.New("task id prefix matches more than one task")
)
