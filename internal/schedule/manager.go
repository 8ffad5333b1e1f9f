// Package schedule keeps the local list of scheduled commands and submits new
// ones to the scheduler endpoint.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/models"
	"github.com/supremeagent/promptrunner/pkg/api"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Submitter sends a scheduled prompt to the scheduler endpoint.
type Submitter interface {
	SchedulePrompt(ctx context.Context, req api.ScheduleRequest) (api.ScheduleResponse, error)
}

// Options configures a Manager.
type Options struct {
	Submitter Submitter
	UserID    string
	// UTCOffset is the offset ("+05:30") dates and times are entered in.
	UTCOffset string
	// Load and Save default to the schedule.yaml of the config directory.
	Load func() (*models.ScheduleBook, error)
	Save func(*models.ScheduleBook) error
	Now  func() time.Time
}

// AddRequest describes a new scheduled command.
type AddRequest struct {
	Command    string
	Date       string // YYYY-MM-DD
	Time       string // hh:mm or hh:mm:ss
	Category   string
	Recurrence string
	DueDate    string
}

// EditRequest changes a scheduled command. Empty fields are left unchanged.
type EditRequest struct {
	Command    string
	Date       string
	Time       string
	Category   string
	Recurrence string
	DueDate    string
}

// Manager manages scheduled commands.
type Manager struct {
	submitter Submitter
	userID    string
	loc       *time.Location
	load      func() (*models.ScheduleBook, error)
	save      func(*models.ScheduleBook) error
	now       func() time.Time

	mu sync.Mutex
}

// NewManager creates a manager.
func NewManager(opts Options) (*Manager, error) {
	loc, err := ParseOffset(opts.UTCOffset)
	if err != nil {
		return nil, err
	}
	if opts.Load == nil {
		opts.Load = config.LoadScheduleBook
	}
	if opts.Save == nil {
		opts.Save = config.SaveScheduleBook
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		submitter: opts.Submitter,
		userID:    opts.UserID,
		loc:       loc,
		load:      opts.Load,
		save:      opts.Save,
		now:       opts.Now,
	}, nil
}

// ParseOffset turns "+05:30" into a fixed location. An empty offset is UTC.
func ParseOffset(offset string) (*time.Location, error) {
	if offset == "" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("invalid UTC offset %q: %w", offset, err)
	}
	_, secs := t.Zone()
	return time.FixedZone(offset, secs), nil
}

func (m *Manager) parseWhen(date, clock string) (time.Time, error) {
	layout := DateLayout + " " + TimeLayout
	if strings.Count(clock, ":") == 2 {
		layout += ":05"
	}
	at, err := time.ParseInLocation(layout, date+" "+clock, m.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return at, nil
}

// Add validates req, submits it to the scheduler and records it locally. A
// task the scheduler did not accept is still recorded, with status local.
func (m *Manager) Add(ctx context.Context, req AddRequest) (models.ScheduledTask, error) {
	command := strings.TrimSpace(req.Command)
	switch {
	case command == "":
		return models.ScheduledTask{}, ErrCommandRequired
	case req.Date == "":
		return models.ScheduledTask{}, ErrDateRequired
	case req.Time == "":
		return models.ScheduledTask{}, ErrTimeRequired
	}
	at, err := m.parseWhen(req.Date, req.Time)
	if err != nil {
		return models.ScheduledTask{}, err
	}

	task := models.ScheduledTask{
		ID:         strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Command:    command,
		ScheduleAt: at,
		CreatedAt:  m.now(),
		Category:   orDefault(req.Category, models.CategoryWork),
		Recurrence: orDefault(req.Recurrence, models.RecurrenceNone),
		DueDate:    req.DueDate,
		Status:     models.TaskStatusScheduled,
	}

	if m.submitter != nil {
		resp, err := m.submitter.SchedulePrompt(ctx, api.ScheduleRequest{
			UserID:        m.userID,
			Query:         command,
			ExecutionTime: at.Format(api.ExecutionTimeLayout),
			IsRecurring:   task.Recurrence != models.RecurrenceNone,
		})
		if err != nil {
			log.Errorf("schedule: submit failed, keeping task %s locally: %v", task.ID, err)
			task.Status = models.TaskStatusLocal
		} else {
			task.RemoteID = resp.ID
		}
	} else {
		task.Status = models.TaskStatusLocal
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	book, err := m.load()
	if err != nil {
		return models.ScheduledTask{}, err
	}
	book.Tasks = append(book.Tasks, task)
	if err := m.save(book); err != nil {
		return models.ScheduledTask{}, err
	}
	return task, nil
}

// List returns the scheduled tasks ordered by schedule time.
func (m *Manager) List() ([]models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, err := m.load()
	if err != nil {
		return nil, err
	}
	tasks := append([]models.ScheduledTask(nil), book.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].ScheduleAt.Before(tasks[j].ScheduleAt)
	})
	return tasks, nil
}

// Edit changes the task whose id starts with id.
func (m *Manager) Edit(id string, req EditRequest) (models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, err := m.load()
	if err != nil {
		return models.ScheduledTask{}, err
	}
	idx, err := find(book, id)
	if err != nil {
		return models.ScheduledTask{}, err
	}

	task := book.Tasks[idx]
	if c := strings.TrimSpace(req.Command); c != "" {
		task.Command = c
	}
	if req.Date != "" || req.Time != "" {
		local := task.ScheduleAt.In(m.loc)
		date := orDefault(req.Date, local.Format(DateLayout))
		clock := orDefault(req.Time, local.Format(TimeLayout+":05"))
		at, err := m.parseWhen(date, clock)
		if err != nil {
			return models.ScheduledTask{}, err
		}
		task.ScheduleAt = at
	}
	task.Category = orDefault(req.Category, task.Category)
	task.Recurrence = orDefault(req.Recurrence, task.Recurrence)
	task.DueDate = orDefault(req.DueDate, task.DueDate)

	book.Tasks[idx] = task
	if err := m.save(book); err != nil {
		return models.ScheduledTask{}, err
	}
	return task, nil
}

// Remove deletes the task whose id starts with id.
func (m *Manager) Remove(id string) (models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, err := m.load()
	if err != nil {
		return models.ScheduledTask{}, err
	}
	idx, err := find(book, id)
	if err != nil {
		return models.ScheduledTask{}, err
	}

	removed := book.Tasks[idx]
	book.Tasks = append(book.Tasks[:idx], book.Tasks[idx+1:]...)
	if err := m.save(book); err != nil {
		return models.ScheduledTask{}, err
	}
	return removed, nil
}

func find(book *models.ScheduleBook, id string) (int, error) {
	if id == "" {
		return -1, ErrTaskNotFound
	}
	match := -1
	for i, task := range book.Tasks {
		if task.ID == id {
			return i, nil
		}
		if strings.HasPrefix(task.ID, id) {
			if match >= 0 {
				return -1, ErrAmbiguousID
			}
			match = i
		}
	}
	if match < 0 {
		return -1, ErrTaskNotFound
	}
	return match, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
