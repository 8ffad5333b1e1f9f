package runner

// Hooks lets callers observe a runner. Callbacks run on the runner's
// goroutines and must not block for long; OnLog is called in append order.
// OnStateChange calls are serialized and never go back to an older snapshot.
type Hooks struct {
	OnRunStart    func(sessionID, command string)
	OnStateChange func(snap Snapshot)
	OnLog         func(sessionID string, entry LogEntry)
	OnResult      func(sessionID, response string)
	OnError       func(sessionID string, err error)
}

func (h Hooks) runStart(sessionID, command string) {
	if h.OnRunStart != nil {
		h.OnRunStart(sessionID, command)
	}
}

func (h Hooks) stateChange(snap Snapshot) {
	if h.OnStateChange != nil {
		h.OnStateChange(snap)
	}
}

func (h Hooks) log(sessionID string, entry LogEntry) {
	if h.OnLog != nil {
		h.OnLog(sessionID, entry)
	}
}

func (h Hooks) result(sessionID, response string) {
	if h.OnResult != nil {
		h.OnResult(sessionID, response)
	}
}

func (h Hooks) error(sessionID string, err error) {
	if h.OnError != nil {
		h.OnError(sessionID, err)
	}
}
