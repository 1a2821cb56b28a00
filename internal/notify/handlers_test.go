package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-tanquecheio/internal/db"

	"github.com/gofiber/fiber/v2"
)

func asUser(c *fiber.Ctx) error {
	if u := c.Get("X-User"); u != "" {
		c.Locals("user_id", u)
	}
	return c.Next()
}

func newInboxApp(h History) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/notifications"), h, asUser)
	return app
}

func inboxRequest(method, target, user string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	return req
}

func TestInboxHandlers(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	_ = h.Add(ctx, Record{ID: "n1", UserID: "user-1", CreatedAt: time.Now().UTC()})
	_ = h.Add(ctx, Record{ID: "n2", UserID: "mallory", CreatedAt: time.Now().UTC()})
	app := newInboxApp(h)

	resp, err := app.Test(inboxRequest(http.MethodGet, "/notifications/", "user-1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list struct {
		Notifications []Record `json:"notifications"`
		Total         int      `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || list.Total != 1 || list.Notifications[0].ID != "n1" {
		t.Fatalf("unexpected list status=%d body=%+v", resp.StatusCode, list)
	}

	resp, _ = app.Test(inboxRequest(http.MethodPost, "/notifications/n1/read", "user-1"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on read, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(inboxRequest(http.MethodPost, "/notifications/n1/clicked", "mallory"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's notification, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(inboxRequest(http.MethodGet, "/notifications/stats", "user-1"))
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Read != 1 || stats.Clicked != 0 || stats.ReadRate != 100 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestInboxHandlerErrors(t *testing.T) {
	app := newInboxApp(NewMemoryHistory())

	for _, target := range []string{"/notifications/", "/notifications/stats"} {
		resp, _ := app.Test(inboxRequest(http.MethodGet, target, ""))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, resp.StatusCode)
		}
	}
	resp, _ := app.Test(inboxRequest(http.MethodGet, "/notifications/?limit=0", "user-1"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}

	down := newInboxApp(NewPostgresHistory(db.Unavailable{}))
	resp, _ = down.Test(inboxRequest(http.MethodGet, "/notifications/stats", "user-1"))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 with store down, got %d", resp.StatusCode)
	}
	resp, _ = down.Test(inboxRequest(http.MethodPost, "/notifications/n1/read", "user-1"))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 on mark with store down, got %d", resp.StatusCode)
	}
}
