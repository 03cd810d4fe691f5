package assessment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultHistoryLimit is used when ListOptions.Limit is zero.
const DefaultHistoryLimit = 10

// ListOptions controls HistoryBrowser.List.
type ListOptions struct {
	// Limit is the maximum number of sessions. Zero means DefaultHistoryLimit.
	Limit               int
	IncludeConversation bool
}

// HistoryBrowser fetches past sessions for display. It shares nothing with
// the Orchestrator, so it may run while a chat request is in flight.
type HistoryBrowser struct {
	api    HistoryAPI
	logger zerolog.Logger
}

func NewHistoryBrowser(api HistoryAPI, logger zerolog.Logger) *HistoryBrowser {
	return &HistoryBrowser{api: api, logger: logger}
}

// List returns past sessions, most recent first. On failure it returns an
// empty list together with the error.
func (h *HistoryBrowser) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit < 0 {
		return []SessionSummary{}, ErrInvalidLimit
	}

	items, err := h.api.History(ctx, limit, opts.IncludeConversation)
	if err != nil {
		h.logger.Warn().Err(err).Int("limit", limit).Msg("failed to list assessment history")
		return []SessionSummary{}, fmt.Errorf("list history: %w", err)
	}

	out := make([]SessionSummary, 0, len(items))
	for _, s := range items {
		if !opts.IncludeConversation {
			s.ConversationHistory = nil
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FetchOne returns a single past session with its full conversation.
func (h *HistoryBrowser) FetchOne(ctx context.Context, sessionID string) (*SessionSummary, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("fetch history: session_id is required")
	}
	s, err := h.api.HistorySession(ctx, sessionID)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to fetch assessment session")
		return nil, fmt.Errorf("fetch history %s: %w", sessionID, err)
	}
	if s == nil {
		return nil, fmt.Errorf("fetch history %s: empty response", sessionID)
	}
	return s, nil
}
