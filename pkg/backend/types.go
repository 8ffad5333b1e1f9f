package backend

import (
	"context"

	"github.com/supremeagent/promptrunner/pkg/store"
)

// SubscribeOptions configures event subscription behavior.
type SubscribeOptions struct {
	// ReturnAll replays stored history before live events.
	ReturnAll bool
	AfterSeq  uint64
	Limit     int
}

// Hooks allows callers to observe session lifecycle and persistence behavior.
type Hooks struct {
	OnSessionStart func(ctx context.Context, sessionID, input string)
	OnEventStored  func(ctx context.Context, evt store.Event)
	OnSessionEnd   func(ctx context.Context, sessionID string, err error)
	OnStoreError   func(ctx context.Context, sessionID string, evt store.Event, err error)
}
