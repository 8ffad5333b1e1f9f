package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/pkg/backend"
	"github.com/supremeagent/promptrunner/pkg/executor"
	"github.com/supremeagent/promptrunner/pkg/store"
	"github.com/supremeagent/promptrunner/pkg/streaming"
)

const defaultPingInterval = 15 * time.Second

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Service   *backend.Service
	Auth      *Authenticator
	Schedules *ScheduleBook
	// PingInterval between keep-alive comments on event streams.
	PingInterval time.Duration
}

// Handler handles HTTP API requests.
type Handler struct {
	service   *backend.Service
	auth      *Authenticator
	schedules *ScheduleBook
	ping      time.Duration
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Service == nil {
		opts.Service = backend.New()
	}
	if opts.Schedules == nil {
		opts.Schedules = NewScheduleBook()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	return &Handler{
		service:   opts.Service,
		auth:      opts.Auth,
		schedules: opts.Schedules,
		ping:      opts.PingInterval,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := h.service.Prompt(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, backend.ErrInputRequired), errors.Is(err, backend.ErrSessionIDRequired):
			status = http.StatusBadRequest
		case errors.Is(err, executor.ErrSessionRunning):
			status = http.StatusConflict
		case errors.Is(err, context.Canceled):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if err := h.service.CancelSession(sessionID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, executor.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("failed to cancel: %v", err), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HandleStream serves the progress of a session as server-sent events.
// Progress records go out as unnamed events; the stream ends with a
// complete event.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("HandleStream: panic recovered: %v", err)
		}
	}()

	sessionID := mux.Vars(r)["session_id"]
	returnAll, _ := strconv.ParseBool(r.URL.Query().Get("return_all"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the headers are flushed: a client may dispatch the
	// prompt as soon as the stream is open.
	events, unsubscribe := h.service.Subscribe(sessionID, backend.SubscribeOptions{ReturnAll: returnAll})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, evt); err != nil {
				log.Errorf("HandleStream: session=%s write failed: %v", sessionID, err)
				return
			}
			flusher.Flush()

			if evt.Completes() {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, evt store.Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	var b strings.Builder
	if evt.Seq > 0 {
		fmt.Fprintf(&b, "id: %d\n", evt.Seq)
	}
	if evt.Name != "" && evt.Name != streaming.EventMessage {
		fmt.Fprintf(&b, "event: %s\n", evt.Name)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)
	_, err = w.Write([]byte(b.String()))
	return err
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	afterSeq, err := strconv.ParseUint(r.URL.Query().Get("after_seq"), 10, 64)
	if err != nil {
		afterSeq = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = 0
	}

	events, err := h.service.ListEvents(r.Context(), sessionID, afterSeq, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list events: %v", err), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []store.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"running":    h.service.SessionRunning(sessionID),
		"events":     events,
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.auth.Login)
}

func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.auth.Signup)
}

func (h *Handler) handleCredentials(w http.ResponseWriter, r *http.Request, fn func(email, password string) (TokenPair, error)) {
	if h.auth == nil {
		http.Error(w, "authentication is not configured", http.StatusNotImplemented)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	pair, err := fn(req.Email, req.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			status = http.StatusUnauthorized
		case errors.Is(err, ErrUserExists):
			status = http.StatusConflict
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleSchedulePrompt(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		if subject, ok := SubjectFromContext(r.Context()); ok {
			req.UserID = subject
		}
	}

	item, err := h.schedules.Add(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Infof("schedule: accepted %s for %s", item.ID, item.RunAt.Format(time.RFC3339))

	writeJSON(w, http.StatusCreated, ScheduleResponse{ID: item.ID, Status: "scheduled"})
}

func (h *Handler) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": h.schedules.List(),
	})
}
