// Package api holds the wire contract of the prompt-execution backend and a
// small HTTP client for it.
package api

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Step types carried in ProgressRecord.StepType.
const (
	StepExecuteAction     = "execute_action"
	StepPlanFinalResponse = "plan_final_response"
)

// Named SSE events on the progress stream. Unnamed events carry progress records.
const (
	EventComplete = "complete"
	EventError    = "error"
)

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	Input     string `json:"input"`
	SessionID string `json:"session_id"`
}

// PromptMessage is the nested message of a prompt response.
type PromptMessage struct {
	Response *string `json:"response,omitempty"`
}

// PromptResponse is the body returned by POST /prompt.
type PromptResponse struct {
	Message *PromptMessage `json:"message,omitempty"`
}

// NewPromptResponse wraps a final response text.
func NewPromptResponse(text string) PromptResponse {
	return PromptResponse{Message: &PromptMessage{Response: &text}}
}

// Text returns message.response, or ErrMalformedResponse when absent.
func (p PromptResponse) Text() (string, error) {
	if p.Message == nil || p.Message.Response == nil {
		return "", ErrMalformedResponse
	}
	return *p.Message.Response, nil
}

// ProgressRecord is one progress event of a session.
type ProgressRecord struct {
	Response         string `json:"response,omitempty"`
	StepType         string `json:"step_type,omitempty"`
	ExecutedActionID string `json:"executed_action_id,omitempty"`
}

// IsAction reports whether the record describes a tool/action execution.
func (r ProgressRecord) IsAction() bool {
	return r.StepType == StepExecuteAction
}

// DecodeProgressRecord decodes an event payload leniently. Fields with an
// unexpected type are dropped instead of failing the whole record; only
// payloads that are not a JSON object return an error.
func DecodeProgressRecord(data []byte) (ProgressRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ProgressRecord{}, fmt.Errorf("decode progress record: %w", err)
	}
	if raw == nil {
		return ProgressRecord{}, fmt.Errorf("decode progress record: not an object")
	}

	return ProgressRecord{
		Response:         stringField(raw, "response"),
		StepType:         stringField(raw, "step_type"),
		ExecutedActionID: stringField(raw, "executed_action_id"),
	}, nil
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// Completion is the payload of the complete event.
type Completion struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// LoginRequest is the body of the login and signup endpoints.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is returned by the login and signup endpoints.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ScheduleRequest is the body of POST /schedule/prompt/.
type ScheduleRequest struct {
	UserID        string `json:"user_id"`
	Query         string `json:"query"`
	ExecutionTime string `json:"execution_time"`
	IsRecurring   bool   `json:"is_recurring"`
}

// ScheduleResponse is returned after a prompt is scheduled.
type ScheduleResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ExecutionTimeLayout is the layout of ScheduleRequest.ExecutionTime.
const ExecutionTimeLayout = "2006-01-02T15:04:05-07:00"
