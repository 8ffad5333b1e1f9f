package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// RequireAuth protects the prompt and schedule endpoints with bearer tokens.
	RequireAuth bool
}

// NewRouter creates a new HTTP router.
func NewRouter(handler *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(RecoveryMiddleware)

	router.HandleFunc("/logevents/{session_id}", handler.HandleStream).Methods(http.MethodGet)
	router.HandleFunc("/auth/login/", handler.HandleLogin).Methods(http.MethodPost)
	router.HandleFunc("/auth/signup/", handler.HandleSignup).Methods(http.MethodPost)

	protected := router.NewRoute().Subrouter()
	if opts.RequireAuth && handler.auth != nil {
		protected.Use(RequireAuth(handler.auth))
	}
	protected.HandleFunc("/prompt", handler.HandlePrompt).Methods(http.MethodPost)
	protected.HandleFunc("/schedule/prompt/", handler.HandleSchedulePrompt).Methods(http.MethodPost)
	protected.HandleFunc("/schedule/prompt/", handler.HandleSchedules).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/{session_id}/events", handler.HandleEvents).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/{session_id}/cancel", handler.HandleCancel).Methods(http.MethodPost)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
