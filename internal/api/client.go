// Package api is the HTTP client for the Aptitude Ace backend.
package api

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

	"aptitude-ace/internal/domain"
)

// TokenSource supplies the bearer token for authenticated calls. An empty
// token sends the request without an Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, msg)
}

// Permanent reports client errors that a retry will not fix.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New builds a client for baseURL (for example http://localhost:5000/api).
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// WithTokens returns a copy of the client using a different token source.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

// Topics lists practice topics.
func (c *Client) Topics(ctx context.Context) ([]domain.Topic, error) {
	var wire []topicWire
	if err := c.do(ctx, http.MethodGet, "/topics", nil, &wire); err != nil {
		return nil, err
	}
	topics := make([]domain.Topic, 0, len(wire))
	for _, t := range wire {
		topics = append(topics, t.domain())
	}
	return topics, nil
}

// TopicQuestions fetches one topic's questions.
func (c *Client) TopicQuestions(ctx context.Context, topicID string) ([]domain.Question, error) {
	return c.questions(ctx, "/topics/"+url.PathEscape(topicID)+"/questions", topicID)
}

// DailyChallenge fetches the daily challenge pool.
func (c *Client) DailyChallenge(ctx context.Context) ([]domain.Question, error) {
	return c.questions(ctx, "/daily-challenge", "")
}

// GrandTestQuestions fetches the grand test questions.
func (c *Client) GrandTestQuestions(ctx context.Context) ([]domain.Question, error) {
	return c.questions(ctx, "/grand-test/questions", "")
}

// LoadQuestions dispatches on mode; it lets the client act as a question loader.
func (c *Client) LoadQuestions(ctx context.Context, mode domain.Mode, topicID string) ([]domain.Question, error) {
	switch mode {
	case domain.ModePractice:
		return c.TopicQuestions(ctx, topicID)
	case domain.ModeDaily:
		return c.DailyChallenge(ctx)
	case domain.ModeGrand:
		return c.GrandTestQuestions(ctx)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
}

func (c *Client) questions(ctx context.Context, path, topicID string) ([]domain.Question, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	wire, err := decodeQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	questions := make([]domain.Question, 0, len(wire))
	for _, q := range wire {
		questions = append(questions, q.domain(topicID))
	}
	return questions, nil
}

// ResultPath is the results endpoint for a mode.
func ResultPath(mode domain.Mode) string {
	switch mode {
	case domain.ModeDaily:
		return "/daily-challenge/results"
	case domain.ModeGrand:
		return "/grand-test/results"
	}
	return "/quiz-results"
}

// SubmitResult posts a completed session's result.
func (c *Client) SubmitResult(ctx context.Context, mode domain.Mode, result domain.Result) error {
	return c.do(ctx, http.MethodPost, ResultPath(mode), result, nil)
}

// UpdateTopicProgress stores a user's progress on one topic.
func (c *Client) UpdateTopicProgress(ctx context.Context, userID string, progress domain.TopicProgress) error {
	path := "/users/" + url.PathEscape(userID) + "/topics/" + url.PathEscape(progress.TopicID) + "/progress"
	return c.do(ctx, http.MethodPut, path, progress, nil)
}

// UpdateStreak bumps the user's daily streak.
func (c *Client) UpdateStreak(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/streak", struct{}{}, nil)
}

// UnlockGrandTest marks the grand test unlocked for the user.
func (c *Client) UnlockGrandTest(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/unlock-grand-test", struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }
