package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidechat/tidechat/internal/chatstore"
)

func newTestServer(store chatstore.Store, p *fakeProvider) *Server {
	if p == nil {
		p = &fakeProvider{}
	}
	return New(store, p)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateChat(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/chats", nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	chat := decode[chatstore.Chat](t, rec)
	if chat.ID == "" || chat.Title == "" {
		t.Fatalf("incomplete chat payload: %+v", chat)
	}
	if got := rec.Header().Get("X-Tidechat-Version"); got == "" {
		t.Fatal("missing version header")
	}
}

func TestListChatsNewestFirst(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	router := srv.Router()

	first := decode[chatstore.Chat](t, doJSON(t, router, http.MethodPost, "/chats", nil))
	second := decode[chatstore.Chat](t, doJSON(t, router, http.MethodPost, "/chats", nil))

	rec := doJSON(t, router, http.MethodGet, "/chats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	chats := decode[[]chatstore.Chat](t, rec)
	if len(chats) != 2 {
		t.Fatalf("len(chats) = %d, want 2", len(chats))
	}
	if chats[0].ID != second.ID || chats[1].ID != first.ID {
		t.Fatalf("unexpected order: %s, %s", chats[0].ID, chats[1].ID)
	}
}

func TestRenameChat(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	router := srv.Router()
	chat := decode[chatstore.Chat](t, doJSON(t, router, http.MethodPost, "/chats", nil))

	rec := doJSON(t, router, http.MethodPut, "/chats/"+chat.ID, map[string]string{"title": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[chatstore.Chat](t, rec); got.Title != "Renamed" {
		t.Fatalf("title = %q, want Renamed", got.Title)
	}

	rec = doJSON(t, router, http.MethodPut, "/chats/"+chat.ID, map[string]string{"title": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty title status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPut, "/chats/missing", map[string]string{"title": "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing chat status = %d, want 404", rec.Code)
	}
}

func TestDeleteChat(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	router := srv.Router()
	chat := decode[chatstore.Chat](t, doJSON(t, router, http.MethodPost, "/chats", nil))

	rec := doJSON(t, router, http.MethodDelete, "/chats/"+chat.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := decode[map[string]string](t, rec); msg["message"] != "Chat deleted successfully" {
		t.Fatalf("unexpected body: %v", msg)
	}

	rec = doJSON(t, router, http.MethodDelete, "/chats/"+chat.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestChatHistory(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	router := srv.Router()
	chat := decode[chatstore.Chat](t, doJSON(t, router, http.MethodPost, "/chats", nil))

	if _, err := store.AppendMessage(context.Background(), chat.ID, chatstore.RoleUser, "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendMessage(context.Background(), chat.ID, chatstore.RoleAssistant, "hello"); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, router, http.MethodGet, "/chats/"+chat.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	msgs := decode[[]chatstore.Message](t, rec)
	if len(msgs) != 2 || msgs[0].Role != chatstore.RoleUser || msgs[1].Role != chatstore.RoleAssistant {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	rec = doJSON(t, router, http.MethodGet, "/chats/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing chat status = %d, want 404", rec.Code)
	}
	var errBody map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatal(err)
	}
	if errBody["error"] != "chat not found" {
		t.Fatalf("error = %q, want %q", errBody["error"], "chat not found")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Fatalf("status field = %v, want healthy", body["status"])
	}
}

func TestHealthDegradedUpstream(t *testing.T) {
	srv := newTestServer(newMemStore(), &fakeProvider{pingErr: errors.New("connection refused")})
	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "degraded" {
		t.Fatalf("status field = %v, want degraded", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	router := srv.Router()
	doJSON(t, router, http.MethodPost, "/chats", nil)

	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "tidechat_uptime_seconds") {
		t.Fatalf("uptime metric missing:\n%s", body)
	}
	if !strings.Contains(body, `tidechat_requests_total{route="POST /chats/"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
}

func TestUIFallthrough(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	srv.SetUI(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!doctype html>"))
	}))
	rec := doJSON(t, srv.Router(), http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "doctype") {
		t.Fatalf("ui not served: %d %q", rec.Code, rec.Body.String())
	}
}
