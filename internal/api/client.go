package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pmflab/interviewd/internal/question"
	"github.com/pmflab/interviewd/internal/stt"
)

// Client talks to the interview session backend: plain JSON over HTTP,
// request/response, no persistent connection.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Session is the backend's session handle with its initial questions.
type Session struct {
	SessionID string   `json:"session_id"`
	Questions []string `json:"questions"`
}

// GetOrCreateSession returns the backend's single persistent session,
// creating it if needed.
func (c *Client) GetOrCreateSession(ctx context.Context) (Session, error) {
	var s Session
	if err := c.get(ctx, "/get-session", nil, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// StartLive marks the session live; the backend seeds its question list
// from the session's initial questions.
func (c *Client) StartLive(ctx context.Context, sessionID string) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.post(ctx, "/live/start", map[string]string{"session_id": sessionID}, &resp)
}

// StopLive finalizes the interview on the backend.
func (c *Client) StopLive(ctx context.Context, sessionID string) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.post(ctx, "/live/stop", map[string]string{"session_id": sessionID}, &resp)
}

// SubmitTranscript forwards one aggregated speech chunk for follow-up
// question generation. The suggested follow-ups arrive back through the
// question poll, so the response body is informational only.
func (c *Client) SubmitTranscript(ctx context.Context, sessionID, text string) ([]string, error) {
	var resp struct {
		Followups []string `json:"followups"`
	}
	err := c.post(ctx, "/live/transcript", map[string]string{
		"session_id": sessionID,
		"text":       text,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Followups, nil
}

// wireQuestion is the backend's question representation; created_at is an
// ISO timestamp without zone.
type wireQuestion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Order     int    `json:"order"`
}

func (w wireQuestion) toQuestion() question.Question {
	return question.Question{
		ID:        w.ID,
		Text:      w.Text,
		Order:     w.Order,
		Status:    question.Status(w.Status),
		CreatedAt: parseTimestamp(w.CreatedAt),
	}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// QuestionSnapshot is the authoritative remote question state.
type QuestionSnapshot struct {
	Questions []question.Question
	// Current is the backend's designated current question: the active
	// one, or the first pending when none is active.
	Current *question.Question
}

// GetQuestions fetches the remote question list and current question.
func (c *Client) GetQuestions(ctx context.Context, sessionID string) (QuestionSnapshot, error) {
	var resp struct {
		Questions       []wireQuestion `json:"questions"`
		CurrentQuestion *wireQuestion  `json:"current_question"`
	}
	if err := c.get(ctx, "/live/questions", url.Values{"session_id": {sessionID}}, &resp); err != nil {
		return QuestionSnapshot{}, err
	}
	snap := QuestionSnapshot{Questions: make([]question.Question, 0, len(resp.Questions))}
	for _, w := range resp.Questions {
		snap.Questions = append(snap.Questions, w.toQuestion())
	}
	if resp.CurrentQuestion != nil {
		q := resp.CurrentQuestion.toQuestion()
		snap.Current = &q
	}
	return snap, nil
}

// UpdateQuestionStatus pushes one local status change to the backend.
func (c *Client) UpdateQuestionStatus(ctx context.Context, sessionID, questionID string, st question.Status) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.post(ctx, "/live/question/status", map[string]string{
		"session_id":  sessionID,
		"question_id": questionID,
		"status":      string(st),
	}, &resp)
}

// FetchRecognitionKey obtains the bearer credential for the
// speech-recognition stream from the key-issuing endpoint. A missing key
// is the MisconfiguredCredential condition.
func (c *Client) FetchRecognitionKey(ctx context.Context) (string, error) {
	var resp struct {
		APIKey  *string `json:"api_key"`
		Message string  `json:"message"`
	}
	if err := c.get(ctx, "/deepgram-key", nil, &resp); err != nil {
		return "", err
	}
	if resp.APIKey == nil || *resp.APIKey == "" {
		return "", fmt.Errorf("%w: %s", stt.ErrMisconfiguredCredential, resp.Message)
	}
	return *resp.APIKey, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("api: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
