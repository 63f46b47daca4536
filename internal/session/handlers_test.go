package session

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func newTestApp(svc *Service) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/sessions"), svc, passthrough)
	return app
}

func TestSessionHandlersLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	body, _ := json.Marshal(startRequest{LibraryEntryID: "entry-1", StartPage: 10, Title: "Dune"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %v %d", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/active", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("active status: %v", err)
	}
	var sess ReadingSession
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &sess); err != nil || sess.ID == "" {
		t.Fatalf("unexpected active payload: %s", raw)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/pause", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/resume", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status: %v", err)
	}

	body, _ = json.Marshal(endRequest{EndPage: 20})
	req = httptest.NewRequest(http.MethodPost, "/sessions/end", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("end status: %v", err)
	}
	var res Result
	raw, _ = io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &res); err != nil || res.PagesRead != 10 {
		t.Fatalf("unexpected end payload: %s", raw)
	}
}

func TestSessionHandlersConflict(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	body, _ := json.Marshal(startRequest{LibraryEntryID: "entry-1"})
	req := httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if resp, err := app.Test(req); err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on double start, got %v %d", err, resp.StatusCode)
	}
}

func TestSessionHandlersEndIdleConflict(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	body, _ := json.Marshal(endRequest{EndPage: 10})
	req := httptest.NewRequest(http.MethodPost, "/sessions/end", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on idle end, got %v", err)
	}
}

func TestSessionHandlersBadRequests(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	req := httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed json")
	}

	req = httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing entry id")
	}
}

func TestSessionHandlersValidationEnd(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	body, _ := json.Marshal(startRequest{LibraryEntryID: "entry-1", StartPage: 30})
	req := httptest.NewRequest(http.MethodPost, "/sessions/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if _, err := app.Test(req); err != nil {
		t.Fatalf("start: %v", err)
	}

	body, _ = json.Marshal(endRequest{EndPage: 10})
	req = httptest.NewRequest(http.MethodPost, "/sessions/end", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for regressing end page")
	}
}

func TestSessionHandlersIdleStates(t *testing.T) {
	svc, _, _, _ := newTestService(&fakeStore{}, &fakeRemote{})
	app := newTestApp(svc)

	for _, path := range []string{"/sessions/pause", "/sessions/resume"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		resp, err := app.Test(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("%s on idle: %v", path, err)
		}
		var payload map[string]any
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("payload: %s", raw)
		}
		if active, ok := payload["active"].(bool); !ok || active {
			t.Fatalf("expected active=false payload, got %s", raw)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/active", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("active on idle: %v", err)
	}
}
