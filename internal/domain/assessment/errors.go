package assessment

import (
	"errors"
	"fmt"
	"net/http"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrBusy indicates another operation is still waiting on the remote
	// service.
	ErrBusy = errors.New("assessment: a request is already in flight")

	// ErrSessionClosed indicates the session already received its terminal
	// assessment. Only a reset is accepted afterwards.
	ErrSessionClosed = errors.New("assessment: session is closed")

	// ErrSessionMismatch indicates a reply for a session other than the
	// current one. The reply is discarded.
	ErrSessionMismatch = errors.New("assessment: reply belongs to a different session")

	// ErrConflict indicates an attempt to adopt a session while a request is
	// outstanding.
	ErrConflict = errors.New("assessment: cannot replace session while a request is outstanding")

	// ErrInsufficientData indicates an early completion attempt before the
	// minimum number of questions was answered.
	ErrInsufficientData = errors.New("assessment: not enough information to complete the assessment")

	// ErrUnrecognizedReply indicates a successful response matching neither
	// a question turn nor a terminal assessment.
	ErrUnrecognizedReply = errors.New("assessment: unrecognized reply")

	// ErrEmptyMessage indicates a blank message.
	ErrEmptyMessage = errors.New("assessment: message must not be blank")

	// ErrInvalidLimit indicates a non-positive history limit.
	ErrInvalidLimit = errors.New("assessment: limit must be a positive integer")
)

// ---------------------------------------------------------------------------
// Remote errors
// ---------------------------------------------------------------------------

// RemoteErrorKind classifies a failed call to the remote service.
type RemoteErrorKind string

const (
	KindNetwork    RemoteErrorKind = "network"
	KindAuth       RemoteErrorKind = "auth"
	KindValidation RemoteErrorKind = "validation"
	KindServer     RemoteErrorKind = "server"
)

// RemoteError is returned by API implementations for every failed call.
// StatusCode is 0 when no HTTP response was received.
type RemoteError struct {
	Kind       RemoteErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s error (%d): %s", e.Kind, e.StatusCode, e.Detail)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *RemoteError {
	return &RemoteError{Kind: KindNetwork, Detail: err.Error(), Err: err}
}

// NewStatusError classifies a non-2xx HTTP response.
func NewStatusError(status int, detail string) *RemoteError {
	kind := KindValidation
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status >= 500:
		kind = KindServer
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &RemoteError{Kind: kind, StatusCode: status, Detail: detail}
}

// NewMalformedBodyError reports a 2xx response whose body could not be read.
func NewMalformedBodyError(status int, err error) *RemoteError {
	return &RemoteError{Kind: KindServer, StatusCode: status, Detail: "malformed response body", Err: err}
}

// IsRemoteKind reports whether err is a RemoteError of the given kind.
func IsRemoteKind(err error, kind RemoteErrorKind) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == kind
}

// ---------------------------------------------------------------------------
// Orchestrator errors
// ---------------------------------------------------------------------------

// ChatError is the recoverable error surfaced by the Orchestrator when a
// remote call fails. The Message Log and Session Tracker are untouched, so
// the user can simply retry.
type ChatError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *ChatError) Unwrap() error { return e.Err }

func newChatError(op string, err error) *ChatError {
	detail := err.Error()
	var re *RemoteError
	if errors.As(err, &re) {
		switch re.Kind {
		case KindNetwork:
			detail = "could not reach the assessment service, please try again"
		case KindAuth:
			detail = "your session has expired, please sign in again"
		default:
			detail = re.Detail
		}
	}
	return &ChatError{Op: op, Detail: detail, Err: err}
}
