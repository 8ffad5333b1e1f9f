package httpapi

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/supremeagent/promptrunner/pkg/api"
)

var (
	ErrQueryRequired         = errors.New("query is required")
	ErrExecutionTimeRequired = errors.New("execution_time is required")
	ErrInvalidExecutionTime  = errors.New("execution_time must look like " + api.ExecutionTimeLayout)
)

// ScheduledPrompt is a prompt accepted by the scheduler endpoint.
type ScheduledPrompt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Query       string    `json:"query"`
	RunAt       time.Time `json:"execution_time"`
	IsRecurring bool      `json:"is_recurring"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScheduleBook records scheduled prompts in memory. It does not run them.
type ScheduleBook struct {
	mu    sync.RWMutex
	items map[string]ScheduledPrompt
}

func NewScheduleBook() *ScheduleBook {
	return &ScheduleBook{items: make(map[string]ScheduledPrompt)}
}

// Add validates and records req.
func (b *ScheduleBook) Add(req api.ScheduleRequest) (ScheduledPrompt, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return ScheduledPrompt{}, ErrQueryRequired
	}
	if strings.TrimSpace(req.ExecutionTime) == "" {
		return ScheduledPrompt{}, ErrExecutionTimeRequired
	}
	runAt, err := time.Parse(api.ExecutionTimeLayout, req.ExecutionTime)
	if err != nil {
		return ScheduledPrompt{}, ErrInvalidExecutionTime
	}

	item := ScheduledPrompt{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Query:       query,
		RunAt:       runAt,
		IsRecurring: req.IsRecurring,
		CreatedAt:   time.Now(),
	}

	b.mu.Lock()
	b.items[item.ID] = item
	b.mu.Unlock()
	return item, nil
}

// List returns the recorded prompts ordered by execution time.
func (b *ScheduleBook) List() []ScheduledPrompt {
	b.mu.RLock()
	out := make([]ScheduledPrompt, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, item)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}
