package assessment

import (
	"context"
	"encoding/json"
)

// API is the remote chat service used by the Orchestrator. Implementations
// return *RemoteError for every failed call.
type API interface {
	// Chat posts one user turn. The raw body is classified by Classify.
	Chat(ctx context.Context, req ChatRequest) (json.RawMessage, error)
	// Complete asks the service to end the session early.
	Complete(ctx context.Context, sessionID string) (json.RawMessage, error)
	// Reset abandons the caller's active session and opens a new one.
	Reset(ctx context.Context) (*ResetReply, error)
	// Current returns the caller's active session, or nil when there is none.
	Current(ctx context.Context) (*Session, error)
}

// HistoryAPI is the read path used by the HistoryBrowser.
type HistoryAPI interface {
	History(ctx context.Context, limit int, includeConversation bool) ([]SessionSummary, error)
	HistorySession(ctx context.Context, sessionID string) (*SessionSummary, error)
}
