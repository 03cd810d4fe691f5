package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReplyKind discriminates the two shapes a chat reply can take.
type ReplyKind int

const (
	ReplyQuestion ReplyKind = iota + 1
	ReplyTerminal
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyQuestion:
		return "question"
	case ReplyTerminal:
		return "terminal"
	}
	return "unknown"
}

// Reply is a classified server reply. Exactly one of Question and Terminal
// is set, matching Kind.
type Reply struct {
	Kind     ReplyKind
	Question *QuestionTurn
	Terminal *TerminalAssessment
}

// SessionID returns the session the reply belongs to.
func (r Reply) SessionID() string {
	if r.Kind == ReplyTerminal {
		return r.Terminal.SessionID
	}
	return r.Question.SessionID
}

// replyProbe only decodes the fields that decide the shape.
type replyProbe struct {
	SessionID     *string         `json:"session_id"`
	Message       *string         `json:"message"`
	Conditions    json.RawMessage `json:"conditions"`
	OverallStatus *string         `json:"overall_status"`
}

// Classify turns a raw reply body into a Question or Terminal reply. A reply
// is terminal iff it carries a non-empty conditions list or an overall
// status; otherwise it must look like a question turn. Anything else fails
// with ErrUnrecognizedReply.
func Classify(raw []byte) (Reply, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Reply{}, fmt.Errorf("%w: body is not a JSON object", ErrUnrecognizedReply)
	}

	var probe replyProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrUnrecognizedReply, err)
	}
	if probe.SessionID == nil || *probe.SessionID == "" {
		return Reply{}, fmt.Errorf("%w: missing session_id", ErrUnrecognizedReply)
	}

	terminal, err := isTerminal(probe)
	if err != nil {
		return Reply{}, err
	}
	if terminal {
		var t TerminalAssessment
		if err := json.Unmarshal(raw, &t); err != nil {
			return Reply{}, fmt.Errorf("%w: terminal assessment: %v", ErrUnrecognizedReply, err)
		}
		if !t.OverallStatus.Valid() {
			return Reply{}, fmt.Errorf("%w: unknown overall_status %q", ErrUnrecognizedReply, t.OverallStatus)
		}
		for i, c := range t.Conditions {
			if c.Name == "" {
				return Reply{}, fmt.Errorf("%w: condition %d has no name", ErrUnrecognizedReply, i)
			}
			if !c.UrgencyLevel.Valid() {
				return Reply{}, fmt.Errorf("%w: condition %q has unknown urgency_level %q", ErrUnrecognizedReply, c.Name, c.UrgencyLevel)
			}
		}
		return Reply{Kind: ReplyTerminal, Terminal: &t}, nil
	}

	if probe.Message == nil {
		return Reply{}, fmt.Errorf("%w: neither a question nor an assessment", ErrUnrecognizedReply)
	}
	var q QuestionTurn
	if err := json.Unmarshal(raw, &q); err != nil {
		return Reply{}, fmt.Errorf("%w: question turn: %v", ErrUnrecognizedReply, err)
	}
	if q.Progress < 0 || q.Progress > 100 {
		return Reply{}, fmt.Errorf("%w: progress %d out of range", ErrUnrecognizedReply, q.Progress)
	}
	return Reply{Kind: ReplyQuestion, Question: &q}, nil
}

func isTerminal(p replyProbe) (bool, error) {
	if p.OverallStatus != nil && *p.OverallStatus != "" {
		return true, nil
	}
	raw := bytes.TrimSpace(p.Conditions)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	var conds []json.RawMessage
	if err := json.Unmarshal(raw, &conds); err != nil {
		return false, fmt.Errorf("%w: conditions is not a list", ErrUnrecognizedReply)
	}
	return len(conds) > 0, nil
}
