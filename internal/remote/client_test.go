package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/manseok-song/readlock-sub000/internal/auth"
	"github.com/manseok-song/readlock-sub000/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	issuer := auth.NewTokenIssuer("test-secret", "device-1")
	return NewClient(srv.URL, 2*time.Second, issuer, nil)
}

func TestClientCreateSendsPayloadAndAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody createRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(createResponse{SessionID: "srv-1", StartedAt: time.Now()})
	})

	id, err := client.Create(context.Background(), session.ReadingSession{
		LibraryEntryID: "entry-1",
		StartPage:      12,
	})
	if err != nil || id != "srv-1" {
		t.Fatalf("create: %v id=%q", err, id)
	}
	if gotPath != "POST /reading/sessions" {
		t.Fatalf("unexpected request: %s", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("missing bearer token: %q", gotAuth)
	}
	if gotBody.UserBookID != "entry-1" || gotBody.StartPage != 12 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestClientFinalize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reading/sessions/srv-1/end" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body endRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(session.Result{
			SessionID:       "srv-1",
			DurationSeconds: 600,
			PagesRead:       body.EndPage,
		})
	})

	res, err := client.Finalize(context.Background(), "srv-1", 42, 0.9)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.DurationSeconds != 600 || res.PagesRead != 42 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClientClassification(t *testing.T) {
	cases := []struct {
		status    int
		wantErr   error
		retryable bool
	}{
		{http.StatusConflict, session.ErrDuplicate, false},
		{http.StatusNotFound, session.ErrSessionNotFound, false},
		{http.StatusInternalServerError, nil, true},
		{http.StatusBadGateway, nil, true},
		{http.StatusUnprocessableEntity, nil, false},
		{http.StatusBadRequest, nil, false},
	}

	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
		})
		err := client.Pause(context.Background(), "srv-1")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("status %d: got %v", tc.status, err)
		}
		if got := session.IsRetryable(err); got != tc.retryable {
			t.Fatalf("status %d: retryable=%v, want %v", tc.status, got, tc.retryable)
		}
	}
}

func TestClientTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, time.Second, nil, nil)

	_, err := client.Create(context.Background(), session.ReadingSession{LibraryEntryID: "entry-1"})
	if err == nil || !session.IsRetryable(err) {
		t.Fatalf("expected retryable transport error, got %v", err)
	}
}

func TestClientErrorMessageParsing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"end page behind start page"}`))
	})
	err := client.Pause(context.Background(), "srv-1")
	if err == nil || !strings.Contains(err.Error(), "end page behind start page") {
		t.Fatalf("expected parsed message, got %v", err)
	}
}

func TestClientActive(t *testing.T) {
	t.Run("open session", func(t *testing.T) {
		started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/reading/sessions/active" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			_ = json.NewEncoder(w).Encode(activeResponse{
				SessionID:  "srv-9",
				UserBookID: "entry-3",
				StartedAt:  started,
				StartPage:  7,
			})
		})
		sess, err := client.Active(context.Background())
		if err != nil || sess == nil {
			t.Fatalf("active: %v", err)
		}
		if sess.ID != "srv-9" || sess.LibraryEntryID != "entry-3" || !sess.StartTime.Equal(started) {
			t.Fatalf("unexpected session: %+v", sess)
		}
		if sess.Status != session.StatusActive {
			t.Fatalf("expected active status, got %s", sess.Status)
		}
	})

	t.Run("none open", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		sess, err := client.Active(context.Background())
		if err != nil || sess != nil {
			t.Fatalf("expected nil,nil for 404, got %v %v", sess, err)
		}
	})
}

func TestClientReplayPayload(t *testing.T) {
	var got replayRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reading/sessions/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(session.Result{SessionID: "srv-1"})
	})

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	rec := session.PendingRecord{
		Session: session.ReadingSession{
			ID:             "offline-x",
			LibraryEntryID: "entry-1",
			StartTime:      start,
			EndTime:        end,
			StartPage:      5,
			TotalPause:     2 * time.Minute,
		},
		EndPage:        25,
		FocusScore:     0.8,
		Completed:      true,
		IdempotencyKey: "key-1",
	}
	if _, err := client.Replay(context.Background(), rec); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got.IdempotencyKey != "key-1" || got.UserBookID != "entry-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.StartedAt != start.Format(time.RFC3339Nano) || got.EndedAt != end.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
	if got.EndPage != 25 || got.PauseSeconds != 120 || got.FocusScore != 0.8 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestClientReplayDuplicate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	_, err := client.Replay(context.Background(), session.PendingRecord{
		Session: session.ReadingSession{ID: "offline-x", StartTime: time.Now()},
	})
	if !errors.Is(err, session.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}
