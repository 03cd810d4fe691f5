package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ehr/healthassist/internal/domain/assessment"
)

const chatHelp = "Type your answer, or a number to pick an option. " +
	"Commands: /complete /reset /status /history /quit"

type chatSession struct {
	orch         *assessment.Orchestrator
	history      *assessment.HistoryBrowser
	historyLimit int
	out          io.Writer

	printed int
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	if err := s.orch.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.out, chatHelp)
	s.flush()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if quit := s.handle(ctx, strings.TrimSpace(scanner.Text())); quit {
			return nil
		}
	}
}

// handle runs one input line and reports whether the loop should end.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	var err error
	before := s.orch.View().Assessment
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/status":
		renderStatus(s.out, s.orch.View())
		return false
	case "/history":
		items, herr := s.history.List(ctx, assessment.ListOptions{Limit: s.historyLimit})
		if herr != nil {
			notice(s.out, herr)
			return false
		}
		renderHistory(s.out, items)
		return false
	case "/reset":
		err = s.orch.Reset(ctx)
	case "/complete":
		_, err = s.orch.ForceComplete(ctx)
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Fprintln(s.out, chatHelp)
			return false
		}
		if opt, ok := s.option(line); ok {
			_, err = s.orch.SelectOption(ctx, opt)
		} else {
			_, err = s.orch.Send(ctx, line)
		}
	}

	s.flush()
	if err != nil {
		notice(s.out, err)
	}
	if after := s.orch.View().Assessment; after != nil && after != before {
		renderAssessment(s.out, after)
	}
	return false
}

// option maps a bare number to an option of the latest assistant message.
func (s *chatSession) option(line string) (string, bool) {
	n, err := strconv.Atoi(line)
	if err != nil {
		return "", false
	}
	msgs := s.orch.View().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != assessment.RoleAssistant {
			continue
		}
		if n < 1 || n > len(msgs[i].Options) {
			return "", false
		}
		return msgs[i].Options[n-1], true
	}
	return "", false
}

// flush prints the messages appended since the last call. A shorter log
// means it was reset and is printed from the start.
func (s *chatSession) flush() {
	msgs := s.orch.View().Messages
	if len(msgs) < s.printed {
		s.printed = 0
	}
	for _, m := range msgs[s.printed:] {
		renderMessage(s.out, m)
	}
	s.printed = len(msgs)
}

func notice(w io.Writer, err error) {
	var ce *assessment.ChatError
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(w, "! %s\n", ce.Detail)
	case errors.Is(err, assessment.ErrSessionClosed):
		fmt.Fprintln(w, "! This assessment is complete. Type /reset to start a new one.")
	case errors.Is(err, assessment.ErrInsufficientData):
		fmt.Fprintf(w, "! Please answer at least %d questions before completing.\n", assessment.MinQuestionsForCompletion)
	case errors.Is(err, assessment.ErrBusy):
		fmt.Fprintln(w, "! Still waiting for the previous reply.")
	default:
		fmt.Fprintf(w, "! %v\n", err)
	}
}
