package assessment

import (
	"time"
)

// MinQuestionsForCompletion mirrors the server rule for early completion.
const MinQuestionsForCompletion = 3

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the Message Log. It is never mutated after append.
type Message struct {
	ID               string    `json:"id"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	Options          []string  `json:"options,omitempty"`
	ContextReference string    `json:"context_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// SessionStatus is the server-side lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// Session maps to the payload of GET /assessment/chat/current.
type Session struct {
	SessionID          string        `json:"session_id"`
	Status             SessionStatus `json:"status"`
	QuestionCount      int           `json:"question_count"`
	IdentifiedSymptoms []string      `json:"identified_symptoms"`
	LastMessage        string        `json:"last_message"`
	StartedAt          time.Time     `json:"started_at"`
	HasAssessment      bool          `json:"has_assessment"`
}

// Snapshot is a read-only copy of the tracker's view of the current session.
type Snapshot struct {
	Session
	Progress    int  `json:"progress"`
	CanComplete bool `json:"can_complete"`
}

// QuestionTurn is an intermediate server reply asking for more information.
type QuestionTurn struct {
	SessionID          string   `json:"session_id"`
	Message            string   `json:"message"`
	Options            []string `json:"options,omitempty"`
	ContextReference   string   `json:"context_reference,omitempty"`
	Progress           int      `json:"progress"`
	QuestionCount      int      `json:"question_count"`
	CanComplete        bool     `json:"can_complete"`
	IdentifiedSymptoms []string `json:"identified_symptoms"`
}

// OverallStatus summarises a TerminalAssessment.
type OverallStatus string

const (
	OverallHealthy        OverallStatus = "healthy"
	OverallNeedsAttention OverallStatus = "needs_attention"
	OverallConcerning     OverallStatus = "concerning"
	OverallUrgent         OverallStatus = "urgent"
)

// Valid reports whether s is one of the known overall statuses.
func (s OverallStatus) Valid() bool {
	switch s {
	case OverallHealthy, OverallNeedsAttention, OverallConcerning, OverallUrgent:
		return true
	}
	return false
}

// UrgencyLevel is an ordinal severity classification of a Condition. It is
// independent of the condition's confidence.
type UrgencyLevel string

const (
	UrgencyLow          UrgencyLevel = "low"
	UrgencyModerate     UrgencyLevel = "moderate"
	UrgencyModerateHigh UrgencyLevel = "moderate_high"
	UrgencyHigh         UrgencyLevel = "high"
	UrgencyUrgent       UrgencyLevel = "urgent"
	UrgencyEmergency    UrgencyLevel = "emergency"
)

var urgencyRanks = map[UrgencyLevel]int{
	UrgencyLow:          0,
	UrgencyModerate:     1,
	UrgencyModerateHigh: 2,
	UrgencyHigh:         3,
	UrgencyUrgent:       4,
	UrgencyEmergency:    5,
}

// Valid reports whether u is one of the known urgency levels.
func (u UrgencyLevel) Valid() bool {
	_, ok := urgencyRanks[u]
	return ok
}

// Rank returns the ordinal position of u, or -1 for an unknown level.
func (u UrgencyLevel) Rank() int {
	if r, ok := urgencyRanks[u]; ok {
		return r
	}
	return -1
}

// Condition is one candidate health condition in a TerminalAssessment.
type Condition struct {
	Name              string       `json:"name"`
	Confidence        float64      `json:"confidence"`
	UrgencyLevel      UrgencyLevel `json:"urgency_level"`
	Description       string       `json:"description,omitempty"`
	MatchingSymptoms  []string     `json:"matching_symptoms"`
	MatchingLabValues []string     `json:"matching_lab_values"`
	RiskFactors       []string     `json:"risk_factors"`
	Recommendations   []string     `json:"recommendations"`
}

// TerminalAssessment is the final structured reply that ends a session.
type TerminalAssessment struct {
	SessionID                string        `json:"session_id"`
	QuestionCount            int           `json:"question_count"`
	OverallStatus            OverallStatus `json:"overall_status"`
	Conditions               []Condition   `json:"conditions"`
	LifestyleRecommendations []string      `json:"lifestyle_recommendations"`
	FollowUpTimeframe        string        `json:"follow_up_timeframe"`
	Disclaimer               string        `json:"disclaimer"`
	SummaryForDoctor         string        `json:"summary_for_doctor"`
	Message                  string        `json:"message"`
}

// HighestUrgency returns the most severe urgency among the conditions, or
// the empty level when there are none.
func (a *TerminalAssessment) HighestUrgency() UrgencyLevel {
	var top UrgencyLevel
	for _, c := range a.Conditions {
		if c.UrgencyLevel.Rank() > top.Rank() {
			top = c.UrgencyLevel
		}
	}
	return top
}

// QAPair is one question/answer exchange of a past session.
type QAPair struct {
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	AskedAt  *time.Time `json:"asked_at,omitempty"`
}

// SessionSummary is a history entry. ConversationHistory is only present
// when explicitly requested.
type SessionSummary struct {
	SessionID           string        `json:"session_id"`
	Status              SessionStatus `json:"status"`
	QuestionCount       int           `json:"question_count"`
	IdentifiedSymptoms  []string      `json:"identified_symptoms"`
	LastMessage         string        `json:"last_message"`
	StartedAt           time.Time     `json:"started_at"`
	HasAssessment       bool          `json:"has_assessment"`
	ConversationHistory []QAPair      `json:"conversation_history,omitempty"`
}

// ChatRequest is the body of POST /assessment/chat. A nil SessionID is sent
// as JSON null and asks the server to open a new session.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// ResetReply is the body returned by POST /assessment/chat/reset.
type ResetReply struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
