package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/relaybot/internal/delivery"
	"github.com/user/relaybot/internal/notify"
	"github.com/user/relaybot/internal/state"
	"github.com/user/relaybot/internal/types"
)

type countingSender struct {
	sent []types.OutboundMessage
}

func (c *countingSender) Send(_ context.Context, msg types.OutboundMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

type mockUpdates struct {
	last tgbotapi.Update
	err  error
}

func (m *mockUpdates) HandleUpdate(_ context.Context, u tgbotapi.Update) error {
	m.last = u
	return m.err
}

func setupServer(t *testing.T, opts Options) (*Server, *state.SessionStore, *countingSender, *mockUpdates) {
	t.Helper()
	store := state.NewSessionStore()
	sender := &countingSender{}
	updates := &mockUpdates{}
	// limit 1 keeps the counting sender single-threaded
	router := notify.NewRouter(store, delivery.NewFanout(sender, 1))
	return NewServer(router, updates, store, opts), store, sender, updates
}

func do(srv http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := setupServer(t, Options{})

	w := do(srv, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", w.Body.String())
	}
}

func TestNotifyNoFlags(t *testing.T) {
	srv, store, sender, _ := setupServer(t, Options{})
	store.PutStaff(1, types.StaffSession{WebsiteID: "N/A"})

	w := do(srv, http.MethodPost, "/notify", `{"message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decodeStatus(t, w); resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected no dispatches, got %d", len(sender.sent))
	}
}

func TestNotifyAllStaff(t *testing.T) {
	srv, store, sender, _ := setupServer(t, Options{})
	store.PutStaff(1, types.StaffSession{WebsiteID: "W1"})
	store.PutStaff(2, types.StaffSession{WebsiteID: "W1"})
	store.PutStaff(3, types.StaffSession{WebsiteID: "W2"})

	w := do(srv, http.MethodPost, "/notify", `{"notifyAllStaff":true,"websiteId":"W1","message":"m"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(sender.sent) != 2 {
		t.Errorf("expected 2 dispatches, got %d", len(sender.sent))
	}
}

func TestNotifyOwner(t *testing.T) {
	srv, store, sender, _ := setupServer(t, Options{})
	store.PutOwner(1, types.OwnerSession{ChatID: 99, BackendID: "7"})

	w := do(srv, http.MethodPost, "/notify", `{"notifyOwner":true,"ownerId":7,"message":"m"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(sender.sent) != 1 || sender.sent[0].ChatID != 99 {
		t.Errorf("expected one dispatch to chat 99, got %+v", sender.sent)
	}
}

func TestNotifyBadRequests(t *testing.T) {
	srv, _, _, _ := setupServer(t, Options{})

	for _, body := range []string{`{"websiteId":"W1"}`, `{"message":null}`, `not json`, ``} {
		w := do(srv, http.MethodPost, "/notify", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q: expected status 400, got %d", body, w.Code)
			continue
		}
		resp := decodeStatus(t, w)
		if resp.Status != "error" || resp.Message == "" {
			t.Errorf("%q: unexpected response %+v", body, resp)
		}
	}
}

func TestTelegramWebhook(t *testing.T) {
	srv, _, _, updates := setupServer(t, Options{})

	w := do(srv, http.MethodPost, "/telegram/webhook", `{"update_id":5,"message":{"message_id":1,"date":0,"text":"hi","chat":{"id":10,"type":"private"},"from":{"id":1}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if updates.last.UpdateID != 5 || updates.last.Message == nil || updates.last.Message.Text != "hi" {
		t.Errorf("update not forwarded: %+v", updates.last)
	}

	w = do(srv, http.MethodPost, "/telegram/webhook", `{bad`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed JSON, got %d", w.Code)
	}

	updates.err = errors.New("queue full")
	w = do(srv, http.MethodPost, "/telegram/webhook", `{"update_id":6}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestAPISessions(t *testing.T) {
	srv, store, _, _ := setupServer(t, Options{AdminToken: "s3cret"})
	store.PutOwner(1, types.OwnerSession{ChatID: 10, BackendID: "U1", Token: "owner-token"})
	store.PutStaff(20, types.StaffSession{StaffID: "S1", WebsiteID: "W1", Token: "staff-token"})

	if w := do(srv, http.MethodGet, "/api/sessions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := do(srv, http.MethodGet, "/api/sessions", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	w := do(srv, http.MethodGet, "/api/sessions", "", "Authorization", "Bearer s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "token\"") || strings.Contains(w.Body.String(), "owner-token") {
		t.Errorf("snapshot leaked tokens: %s", w.Body.String())
	}

	var snap types.SessionSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Owners) != 1 || snap.Owners[0].BackendID != "U1" {
		t.Errorf("unexpected owners: %+v", snap.Owners)
	}
	if len(snap.Staff) != 1 || snap.Staff[0].WebsiteID != "W1" {
		t.Errorf("unexpected staff: %+v", snap.Staff)
	}
}

func TestAPISessionsDisabledWithoutToken(t *testing.T) {
	srv, _, _, _ := setupServer(t, Options{})

	w := do(srv, http.MethodGet, "/api/sessions", "", "Authorization", "Bearer anything")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _, _ := setupServer(t, Options{CORSOrigins: []string{"https://dash.example.com"}})

	w := do(srv, http.MethodOptions, "/notify", "",
		"Origin", "https://dash.example.com",
		"Access-Control-Request-Method", "POST")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _, _ := setupServer(t, Options{})
	if w := do(srv, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
