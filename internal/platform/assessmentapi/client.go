// Package assessmentapi is the HTTP/JSON client for the remote assessment
// chat service.
package assessmentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/healthassist/internal/domain/assessment"
	"github.com/ehr/healthassist/internal/platform/auth"
	"github.com/ehr/healthassist/internal/platform/middleware"
	"github.com/ehr/healthassist/pkg/pagination"
)

const (
	// DefaultTimeout bounds every request made with the default HTTP client.
	DefaultTimeout = 30 * time.Second

	maxBodySize = 1 << 20
	chatPath    = "/assessment/chat"
)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTokenSource(ts auth.TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Client implements assessment.API and assessment.HistoryAPI.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens auth.TokenSource
	logger zerolog.Logger
}

var (
	_ assessment.API        = (*Client)(nil)
	_ assessment.HistoryAPI = (*Client)(nil)
)

// New returns a client for the service rooted at baseURL, for example
// http://localhost:8000/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Chat(ctx context.Context, req assessment.ChatRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	raw, _, err := c.do(ctx, http.MethodPost, chatPath, nil, body)
	return raw, err
}

func (c *Client) Complete(ctx context.Context, sessionID string) (json.RawMessage, error) {
	q := url.Values{"session_id": {sessionID}}
	raw, _, err := c.do(ctx, http.MethodPost, chatPath+"/complete", q, nil)
	return raw, err
}

func (c *Client) Reset(ctx context.Context) (*assessment.ResetReply, error) {
	raw, status, err := c.do(ctx, http.MethodPost, chatPath+"/reset", nil, nil)
	if err != nil {
		return nil, err
	}
	var reply assessment.ResetReply
	if err := decode(raw, status, &reply); err != nil {
		return nil, err
	}
	if reply.SessionID == "" {
		return nil, assessment.NewMalformedBodyError(status, errors.New("reset reply has no session_id"))
	}
	return &reply, nil
}

// Current returns nil without error when the caller has no active session.
func (c *Client) Current(ctx context.Context) (*assessment.Session, error) {
	raw, status, err := c.do(ctx, http.MethodGet, chatPath+"/current", nil, nil)
	if err != nil {
		var re *assessment.RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var s assessment.Session
	if err := decode(raw, status, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) History(ctx context.Context, limit int, includeConversation bool) ([]assessment.SessionSummary, error) {
	q := pagination.Params{Limit: limit, IncludeConversation: includeConversation}.Values()
	raw, status, err := c.do(ctx, http.MethodGet, chatPath+"/history", q, nil)
	if err != nil {
		return nil, err
	}
	items := []assessment.SessionSummary{}
	if err := decode(raw, status, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) HistorySession(ctx context.Context, sessionID string) (*assessment.SessionSummary, error) {
	q := url.Values{"include_conversation": {"true"}}
	raw, status, err := c.do(ctx, http.MethodGet, chatPath+"/history/"+url.PathEscape(sessionID), q, nil)
	if err != nil {
		return nil, err
	}
	var s assessment.SessionSummary
	if err := decode(raw, status, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// do sends one request and returns the 2xx body. path is already escaped.
// Every failure is a *assessment.RemoteError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, int, error) {
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, 0, assessment.NewNetworkError(err)
	}
	u.Path = unescaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, 0, assessment.NewNetworkError(err)
	}
	rid := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.RequestIDHeader, rid)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, 0, &assessment.RemoteError{Kind: assessment.KindAuth, Detail: err.Error(), Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	log := c.logger.With().Str("request_id", rid).Str("method", method).Str("path", path).Logger()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("request failed")
		return nil, 0, assessment.NewNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		log.Warn().Err(err).Int("status", resp.StatusCode).Msg("read response body")
		return nil, resp.StatusCode, assessment.NewMalformedBodyError(resp.StatusCode, err)
	}
	if len(data) > maxBodySize {
		return nil, resp.StatusCode, assessment.NewMalformedBodyError(resp.StatusCode, errors.New("response body exceeds 1 MiB"))
	}
	log.Debug().Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, assessment.NewStatusError(resp.StatusCode, errorDetail(data))
	}
	return data, resp.StatusCode, nil
}

func decode(raw []byte, status int, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return assessment.NewMalformedBodyError(status, err)
	}
	return nil
}

// errorDetail extracts a human readable message from an error body. Both
// {"detail": ...} and echo's {"message": ...} shapes are understood.
func errorDetail(data []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return s
		}
		return string(body.Detail)
	}
	return body.Message
}
