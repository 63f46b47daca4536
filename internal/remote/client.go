package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/manseok-song/readlock-sub000/internal/auth"
	"github.com/manseok-song/readlock-sub000/internal/session"
)

// Error classifies an authority failure. Retryable failures (timeouts, 5xx,
// connectivity loss) queue the operation for replay; terminal ones surface to
// the caller and are never retried.
type Error struct {
	Status    int
	Message   string
	retryable bool
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authority: %d %s", e.Status, e.Message)
	}
	return "authority: " + e.Message
}

func (e *Error) Retryable() bool { return e.retryable }

// Client is the thin boundary to the authoritative reading service.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *auth.TokenIssuer
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens *auth.TokenIssuer, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

type createRequest struct {
	UserBookID string `json:"user_book_id"`
	StartPage  int    `json:"start_page,omitempty"`
}

type createResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

type endRequest struct {
	EndPage    int     `json:"end_page"`
	FocusScore float64 `json:"focus_score,omitempty"`
}

type replayRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	UserBookID     string  `json:"user_book_id"`
	StartedAt      string  `json:"started_at"`
	EndedAt        string  `json:"ended_at,omitempty"`
	StartPage      int     `json:"start_page"`
	EndPage        int     `json:"end_page,omitempty"`
	PauseSeconds   int64   `json:"pause_seconds"`
	FocusScore     float64 `json:"focus_score,omitempty"`
}

type activeResponse struct {
	SessionID  string    `json:"session_id"`
	UserBookID string    `json:"user_book_id"`
	StartedAt  time.Time `json:"started_at"`
	StartPage  int       `json:"start_page"`
}

func (c *Client) Create(ctx context.Context, s session.ReadingSession) (string, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, "/reading/sessions",
		createRequest{UserBookID: s.LibraryEntryID, StartPage: s.StartPage}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) Finalize(ctx context.Context, id string, endPage int, focusScore float64) (session.Result, error) {
	var res session.Result
	err := c.do(ctx, http.MethodPost, "/reading/sessions/"+id+"/end",
		endRequest{EndPage: endPage, FocusScore: focusScore}, &res)
	if err != nil {
		return session.Result{}, err
	}
	return res, nil
}

func (c *Client) Pause(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/reading/sessions/"+id+"/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/reading/sessions/"+id+"/resume", nil, nil)
}

// Active asks the authority which session it still considers open for this
// device. A 404 means none.
func (c *Client) Active(ctx context.Context) (*session.ReadingSession, error) {
	var resp activeResponse
	err := c.do(ctx, http.MethodGet, "/reading/sessions/active", nil, &resp)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, nil
	}
	return &session.ReadingSession{
		ID:             resp.SessionID,
		LibraryEntryID: resp.UserBookID,
		Status:         session.StatusActive,
		StartTime:      resp.StartedAt,
		StartPage:      resp.StartPage,
	}, nil
}

// Replay resends an offline-created session. The idempotency key lets the
// authority recognize a record it already applied, answered with 409 and
// mapped to ErrDuplicate so the caller discards the record as a success.
func (c *Client) Replay(ctx context.Context, rec session.PendingRecord) (session.Result, error) {
	req := replayRequest{
		IdempotencyKey: rec.IdempotencyKey,
		UserBookID:     rec.Session.LibraryEntryID,
		StartedAt:      rec.Session.StartTime.UTC().Format(time.RFC3339Nano),
		StartPage:      rec.Session.StartPage,
		PauseSeconds:   int64(rec.Session.TotalPause.Seconds()),
	}
	if rec.Completed {
		req.EndedAt = rec.Session.EndTime.UTC().Format(time.RFC3339Nano)
		req.EndPage = rec.EndPage
		req.FocusScore = rec.FocusScore
	}

	var res session.Result
	if err := c.do(ctx, http.MethodPost, "/reading/sessions/sync", req, &res); err != nil {
		return session.Result{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Issue()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// timeouts and connectivity loss replay later
		return &Error{Message: err.Error(), retryable: true}
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return session.ErrDuplicate
	case resp.StatusCode == http.StatusNotFound:
		return session.ErrSessionNotFound
	case resp.StatusCode >= 500:
		return &Error{Status: resp.StatusCode, Message: readMessage(resp), retryable: true}
	default:
		return &Error{Status: resp.StatusCode, Message: readMessage(resp)}
	}
}

func readMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return string(raw)
}
