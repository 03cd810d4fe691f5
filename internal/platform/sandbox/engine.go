package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

// DefaultMaxQuestions is the number of answers after which the next reply
// is a terminal assessment.
const DefaultMaxQuestions = 6

const (
	progressPerQuestion = 20
	maxQuestionProgress = 90
	supportBonus        = 10
	severeBonus         = 5
	maxConfidence       = 95
)

var urgencyOrder = []assessment.UrgencyLevel{
	assessment.UrgencyLow,
	assessment.UrgencyModerate,
	assessment.UrgencyModerateHigh,
	assessment.UrgencyHigh,
	assessment.UrgencyUrgent,
	assessment.UrgencyEmergency,
}

var severeMarkers = []string{"severe", "with blood", "above 39", "unbearable", "worst"}

var followUp = map[assessment.OverallStatus]string{
	assessment.OverallHealthy:        "Only if symptoms persist beyond two weeks",
	assessment.OverallNeedsAttention: "Within 1-2 weeks",
	assessment.OverallConcerning:     "Within 2-3 days",
	assessment.OverallUrgent:         "Today, seek care immediately",
}

// Engine is the scripted stand-in for the assessment model: keyword
// symptom extraction, a fixed question bank and a rule table.
type Engine struct {
	k            *Knowledge
	maxQuestions int
}

func NewEngine(k *Knowledge, maxQuestions int) *Engine {
	if maxQuestions < assessment.MinQuestionsForCompletion {
		maxQuestions = DefaultMaxQuestions
	}
	return &Engine{k: k, maxQuestions: maxQuestions}
}

func (e *Engine) Welcome() string { return e.k.Welcome }

// MaxQuestions is the configured answer cap.
func (e *Engine) MaxQuestions() int { return e.maxQuestions }

// ExtractSymptoms returns the known symptoms mentioned in text, in lexicon
// order.
func (e *Engine) ExtractSymptoms(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, s := range e.k.Symptoms {
		for _, kw := range s.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = append(found, s.Name)
				break
			}
		}
	}
	return found
}

// MergeSymptoms appends newly found symptoms, keeping existing order.
func MergeSymptoms(existing, found []string) []string {
	out := append([]string{}, existing...)
	for _, f := range found {
		dup := false
		for _, x := range out {
			if x == f {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}

// IsSevere reports whether an answer signals a severe presentation.
func IsSevere(answer string) bool {
	lower := strings.ToLower(answer)
	for _, m := range severeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (e *Engine) Progress(questionCount int) int {
	p := progressPerQuestion * questionCount
	if p > maxQuestionProgress {
		return maxQuestionProgress
	}
	return p
}

// CanComplete reports whether enough questions were answered to assess.
func (e *Engine) CanComplete(answered int) bool {
	return answered >= assessment.MinQuestionsForCompletion
}

// Exhausted reports whether the session has answered the maximum number of
// questions.
func (e *Engine) Exhausted(s *Session) bool {
	answered := 0
	for _, t := range s.Turns {
		if t.Answered {
			answered++
		}
	}
	return answered >= e.maxQuestions
}

// NextQuestion picks the first question not yet asked: a clarification when
// nothing was recognised, then symptom-specific questions, then general
// ones.
func (e *Engine) NextQuestion(s *Session) QuestionDef {
	if len(s.Symptoms) == 0 && !s.Asked(e.k.Clarify.ID) {
		return e.k.Clarify
	}
	for _, symptom := range s.Symptoms {
		for _, q := range e.k.Questions {
			if q.Symptom == symptom && !s.Asked(q.ID) {
				return q
			}
		}
	}
	for _, q := range e.k.General {
		if !s.Asked(q.ID) {
			return q
		}
	}
	last := e.k.General[len(e.k.General)-1]
	last.ID = fmt.Sprintf("%s_%d", last.ID, s.QuestionCount()+1)
	return last
}

// QuestionTurn builds the reply announcing the session's latest question.
func (e *Engine) QuestionTurn(s *Session) *assessment.QuestionTurn {
	t := s.Turns[len(s.Turns)-1]
	qc := s.QuestionCount()
	return &assessment.QuestionTurn{
		SessionID:          s.ID,
		Message:            t.Question,
		Options:            append([]string(nil), t.Options...),
		ContextReference:   contextReference(t.QuestionID),
		Progress:           e.Progress(qc),
		QuestionCount:      qc,
		CanComplete:        e.CanComplete(s.Replies()),
		IdentifiedSymptoms: nonNil(s.Symptoms),
	}
}

// Assess evaluates the rule table against the session.
func (e *Engine) Assess(s *Session) *assessment.TerminalAssessment {
	present := make(map[string]bool, len(s.Symptoms))
	for _, sym := range s.Symptoms {
		present[sym] = true
	}
	risks := riskFactors(s)

	conditions := []assessment.Condition{}
	for _, rule := range e.k.Conditions {
		if !containsAll(present, rule.Requires) {
			continue
		}
		matching := append([]string{}, rule.Requires...)
		confidence := rule.Confidence
		for _, sup := range rule.Supports {
			if present[sup] {
				matching = append(matching, sup)
				confidence += supportBonus
			}
		}
		urgency := rule.Urgency
		if s.Severe {
			confidence += severeBonus
			urgency = raise(urgency)
		}
		if confidence > maxConfidence {
			confidence = maxConfidence
		}
		conditions = append(conditions, assessment.Condition{
			Name:              rule.Name,
			Confidence:        confidence,
			UrgencyLevel:      urgency,
			Description:       rule.Description,
			MatchingSymptoms:  matching,
			MatchingLabValues: []string{},
			RiskFactors:       append([]string{}, risks...),
			Recommendations:   append([]string{}, rule.Recommendations...),
		})
	}
	sort.SliceStable(conditions, func(i, j int) bool {
		if conditions[i].Confidence != conditions[j].Confidence {
			return conditions[i].Confidence > conditions[j].Confidence
		}
		return conditions[i].Name < conditions[j].Name
	})

	result := &assessment.TerminalAssessment{
		SessionID:                s.ID,
		QuestionCount:            s.QuestionCount(),
		Conditions:               conditions,
		LifestyleRecommendations: append([]string{}, e.k.Lifestyle...),
		Disclaimer:               e.k.Disclaimer,
		Message:                  e.k.Closing,
	}
	result.OverallStatus = overallFor(result.HighestUrgency())
	result.FollowUpTimeframe = followUp[result.OverallStatus]
	result.SummaryForDoctor = summaryForDoctor(s)
	return result
}

func overallFor(u assessment.UrgencyLevel) assessment.OverallStatus {
	switch {
	case u.Rank() >= assessment.UrgencyUrgent.Rank():
		return assessment.OverallUrgent
	case u.Rank() >= assessment.UrgencyModerateHigh.Rank():
		return assessment.OverallConcerning
	case u.Rank() >= assessment.UrgencyModerate.Rank():
		return assessment.OverallNeedsAttention
	}
	return assessment.OverallHealthy
}

func raise(u assessment.UrgencyLevel) assessment.UrgencyLevel {
	r := u.Rank() + 1
	if r >= len(urgencyOrder) {
		r = len(urgencyOrder) - 1
	}
	return urgencyOrder[r]
}

func containsAll(set map[string]bool, keys []string) bool {
	for _, k := range keys {
		if !set[k] {
			return false
		}
	}
	return true
}

func riskFactors(s *Session) []string {
	var out []string
	for _, t := range s.Turns {
		if t.QuestionID == "history" && t.Answered && strings.HasPrefix(strings.ToLower(t.Answer), "yes") {
			out = append(out, t.Answer)
		}
	}
	return out
}

func summaryForDoctor(s *Session) string {
	var b strings.Builder
	if len(s.Symptoms) == 0 {
		b.WriteString("No specific symptoms identified.")
	} else {
		fmt.Fprintf(&b, "Patient-reported symptoms: %s.", strings.Join(s.Symptoms, ", "))
	}
	for _, t := range s.Turns {
		if !t.Answered {
			continue
		}
		switch t.QuestionID {
		case "duration":
			fmt.Fprintf(&b, " Duration: %s.", t.Answer)
		case "severity":
			fmt.Fprintf(&b, " Severity: %s.", t.Answer)
		}
	}
	fmt.Fprintf(&b, " %d questions asked.", s.QuestionCount())
	return b.String()
}

func contextReference(questionID string) string {
	return "sandbox:" + questionID
}
