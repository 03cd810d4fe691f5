package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

func renderMessage(w io.Writer, m assessment.Message) {
	who := "you"
	if m.Role == assessment.RoleAssistant {
		who = "assistant"
	}
	fmt.Fprintf(w, "%s: %s\n", who, m.Content)
	for i, opt := range m.Options {
		fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
	}
}

func renderStatus(w io.Writer, v assessment.View) {
	if v.Session == nil {
		fmt.Fprintf(w, "state: %s, no session\n", v.State)
		return
	}
	s := v.Session
	fmt.Fprintf(w, "state: %s, session %s (%s)\n", v.State, s.SessionID, s.Status)
	fmt.Fprintf(w, "questions: %d, progress: %d%%, can complete: %t\n", s.QuestionCount, s.Progress, s.CanComplete)
	if len(s.IdentifiedSymptoms) > 0 {
		fmt.Fprintf(w, "symptoms: %s\n", strings.Join(s.IdentifiedSymptoms, ", "))
	}
}

func renderAssessment(w io.Writer, a *assessment.TerminalAssessment) {
	fmt.Fprintf(w, "\n== Assessment: %s ==\n", strings.ReplaceAll(string(a.OverallStatus), "_", " "))
	if len(a.Conditions) == 0 {
		fmt.Fprintln(w, "No specific conditions identified.")
	}
	for _, c := range a.Conditions {
		fmt.Fprintf(w, "- %s (confidence %.0f%%, urgency %s)\n", c.Name, c.Confidence, c.UrgencyLevel)
		if c.Description != "" {
			fmt.Fprintf(w, "    %s\n", c.Description)
		}
		for _, r := range c.Recommendations {
			fmt.Fprintf(w, "    * %s\n", r)
		}
	}
	if len(a.LifestyleRecommendations) > 0 {
		fmt.Fprintln(w, "Lifestyle:")
		for _, r := range a.LifestyleRecommendations {
			fmt.Fprintf(w, "  * %s\n", r)
		}
	}
	if a.FollowUpTimeframe != "" {
		fmt.Fprintf(w, "Follow up: %s\n", a.FollowUpTimeframe)
	}
	if a.SummaryForDoctor != "" {
		fmt.Fprintf(w, "For your doctor: %s\n", a.SummaryForDoctor)
	}
	if a.Disclaimer != "" {
		fmt.Fprintf(w, "\n%s\n", a.Disclaimer)
	}
}

func renderHistory(w io.Writer, items []assessment.SessionSummary) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No past sessions.")
		return
	}
	for _, s := range items {
		renderSummary(w, s, len(s.ConversationHistory) > 0)
	}
}

func renderSummary(w io.Writer, s assessment.SessionSummary, conversation bool) {
	mark := ""
	if s.HasAssessment {
		mark = " [assessed]"
	}
	fmt.Fprintf(w, "%s  %s  %-9s %d questions%s\n",
		s.StartedAt.Local().Format("2006-01-02 15:04"), s.SessionID, s.Status, s.QuestionCount, mark)
	if len(s.IdentifiedSymptoms) > 0 {
		fmt.Fprintf(w, "    symptoms: %s\n", strings.Join(s.IdentifiedSymptoms, ", "))
	}
	if !conversation {
		return
	}
	for _, qa := range s.ConversationHistory {
		fmt.Fprintf(w, "    Q: %s\n    A: %s\n", qa.Question, qa.Answer)
	}
}
