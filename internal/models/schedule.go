package models

import "time"

// Task categories.
const (
	CategoryWork     = "Work"
	CategoryPersonal = "Personal"
	CategoryOther    = "Other"
)

// Recurrence values.
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// Task statuses.
const (
	TaskStatusScheduled = "scheduled"
	// TaskStatusLocal marks a task the scheduler endpoint did not accept.
	TaskStatusLocal = "local"
)

// ScheduledTask is a command scheduled for later execution.
type ScheduledTask struct {
	ID         string    `yaml:"id"`
	RemoteID   string    `yaml:"remote_id,omitempty"`
	Command    string    `yaml:"command"`
	ScheduleAt time.Time `yaml:"schedule_at"`
	CreatedAt  time.Time `yaml:"created_at"`
	Category   string    `yaml:"category"`
	Recurrence string    `yaml:"recurrence"`
	DueDate    string    `yaml:"due_date,omitempty"`
	Status     string    `yaml:"status"`
}

// ScheduleBook is the local list of scheduled tasks.
// This corresponds to ~/.promptrunner/schedule.yaml.
type ScheduleBook struct {
	Version int             `yaml:"version"`
	Tasks   []ScheduledTask `yaml:"tasks"`
}

// NewScheduleBook creates an empty schedule book.
func NewScheduleBook() *ScheduleBook {
	return &ScheduleBook{Version: 1}
}
