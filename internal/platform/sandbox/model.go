package sandbox

import (
	"time"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

// Session is the server-side record of one assessment conversation.
type Session struct {
	ID         string                         `json:"id"`
	UserID     string                         `json:"user_id"`
	Status     assessment.SessionStatus       `json:"status"`
	Opening    string                         `json:"opening"`
	Symptoms   []string                       `json:"symptoms"`
	Turns      []Turn                         `json:"turns"`
	Severe     bool                           `json:"severe"`
	Assessment *assessment.TerminalAssessment `json:"assessment,omitempty"`
	StartedAt  time.Time                      `json:"started_at"`
	UpdatedAt  time.Time                      `json:"updated_at"`
}

// Turn is one question issued by the service and the user's answer to it.
type Turn struct {
	QuestionID string     `json:"question_id"`
	Question   string     `json:"question"`
	Options    []string   `json:"options,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	Answered   bool       `json:"answered"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// QuestionCount is the number of questions issued so far.
func (s *Session) QuestionCount() int { return len(s.Turns) }

// Replies is the number of questions the user has answered: the opening
// message answers the welcome prompt, then one per answered turn.
func (s *Session) Replies() int {
	n := 0
	if s.Opening != "" {
		n++
	}
	for _, t := range s.Turns {
		if t.Answered {
			n++
		}
	}
	return n
}

// Pending returns the last turn if it still awaits an answer.
func (s *Session) Pending() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	t := &s.Turns[len(s.Turns)-1]
	if t.Answered {
		return nil
	}
	return t
}

// Asked reports whether the question with the given id was already issued.
func (s *Session) Asked(id string) bool {
	for _, t := range s.Turns {
		if t.QuestionID == id {
			return true
		}
	}
	return false
}

// LastMessage is the most recent assistant text of the session.
func (s *Session) LastMessage() string {
	if s.Assessment != nil && s.Assessment.Message != "" {
		return s.Assessment.Message
	}
	if len(s.Turns) == 0 {
		return ""
	}
	return s.Turns[len(s.Turns)-1].Question
}

// ToSession projects the record onto the current-session payload.
func (s *Session) ToSession() *assessment.Session {
	return &assessment.Session{
		SessionID:          s.ID,
		Status:             s.Status,
		QuestionCount:      s.QuestionCount(),
		IdentifiedSymptoms: nonNil(s.Symptoms),
		LastMessage:        s.LastMessage(),
		StartedAt:          s.StartedAt,
		HasAssessment:      s.Assessment != nil,
	}
}

// ToSummary projects the record onto a history entry.
func (s *Session) ToSummary(includeConversation bool) assessment.SessionSummary {
	out := assessment.SessionSummary{
		SessionID:          s.ID,
		Status:             s.Status,
		QuestionCount:      s.QuestionCount(),
		IdentifiedSymptoms: nonNil(s.Symptoms),
		LastMessage:        s.LastMessage(),
		StartedAt:          s.StartedAt,
		HasAssessment:      s.Assessment != nil,
	}
	if includeConversation {
		out.ConversationHistory = make([]assessment.QAPair, 0, len(s.Turns))
		for _, t := range s.Turns {
			if !t.Answered {
				continue
			}
			asked := t.AskedAt
			out.ConversationHistory = append(out.ConversationHistory, assessment.QAPair{
				Question: t.Question,
				Answer:   t.Answer,
				AskedAt:  &asked,
			})
		}
	}
	return out
}

func cloneSession(s *Session) *Session {
	c := *s
	c.Symptoms = append([]string(nil), s.Symptoms...)
	c.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		t.Options = append([]string(nil), t.Options...)
		if t.AnsweredAt != nil {
			at := *t.AnsweredAt
			t.AnsweredAt = &at
		}
		c.Turns[i] = t
	}
	if s.Assessment != nil {
		a := *s.Assessment
		a.Conditions = append([]assessment.Condition(nil), s.Assessment.Conditions...)
		a.LifestyleRecommendations = append([]string(nil), s.Assessment.LifestyleRecommendations...)
		c.Assessment = &a
	}
	return &c
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
