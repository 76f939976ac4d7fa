package pair

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	pairservice "github.com/studyhall/pairhub/internal/service/pair"
)

func setupRouter() (*chi.Mux, *pairservice.Service) {
	svc := pairservice.NewService(pairservice.DefaultConfig())
	handler := New(svc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, svc
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestCreateSession(t *testing.T) {
	r, svc := setupRouter()

	resp := doRequest(t, r, http.MethodPost, "/pair-programming/create", map[string]any{"user_id": 3, "username": "ada"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	body := decode(t, resp)
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("expected session_id, got %v", body)
	}

	session, ok := body["session"].(map[string]any)
	if !ok || session["host_username"] != "ada" {
		t.Fatalf("unexpected session view: %v", body["session"])
	}

	stored, err := svc.GetSession(t.Context(), id)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if stored.HostUserID == nil || *stored.HostUserID != 3 {
		t.Fatalf("unexpected host user id: %v", stored.HostUserID)
	}
}

func TestCreateSessionEmptyBody(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/pair-programming/create", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	session := decode(t, resp)["session"].(map[string]any)
	if session["host_username"] != "Host" {
		t.Fatalf("expected default host, got %v", session["host_username"])
	}
}

func TestCreateSessionInvalidBody(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/pair-programming/create", bytes.NewReader([]byte(`{`)))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSession(t *testing.T) {
	r, svc := setupRouter()
	session, _ := svc.CreateSession(t.Context(), nil, "ada")

	resp := doRequest(t, r, http.MethodGet, "/pair-programming/"+session.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	view := decode(t, resp)["session"].(map[string]any)
	if view["expires_at"] == nil || view["created_at"] == nil {
		t.Fatalf("expected timestamps, got %v", view)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := setupRouter()

	resp := doRequest(t, r, http.MethodGet, "/pair-programming/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if body := decode(t, resp); body["error"] != "Session not found" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestExtendSession(t *testing.T) {
	r, svc := setupRouter()
	session, _ := svc.CreateSession(t.Context(), nil, "ada")

	resp := doRequest(t, r, http.MethodPost, "/pair-programming/"+session.ID+"/extend", map[string]int{"hours": 48})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := decode(t, resp); body["success"] != true || body["message"] != "Session extended by 48 hours" {
		t.Fatalf("unexpected body: %v", body)
	}

	extended, _ := svc.GetSession(t.Context(), session.ID)
	if !extended.ExpiresAt.After(session.ExpiresAt) {
		t.Fatalf("expected expiry to move forward: %v -> %v", session.ExpiresAt, extended.ExpiresAt)
	}
}

func TestExtendSessionDefaultsHours(t *testing.T) {
	r, svc := setupRouter()
	session, _ := svc.CreateSession(t.Context(), nil, "ada")

	resp := doRequest(t, r, http.MethodPost, "/pair-programming/"+session.ID+"/extend", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := decode(t, resp); body["message"] != "Session extended by 24 hours" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestExtendSessionErrors(t *testing.T) {
	r, svc := setupRouter()
	session, _ := svc.CreateSession(t.Context(), nil, "ada")

	if resp := doRequest(t, r, http.MethodPost, "/pair-programming/missing/extend", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := doRequest(t, r, http.MethodPost, "/pair-programming/"+session.ID+"/extend", map[string]int{"hours": -1}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListSessions(t *testing.T) {
	r, svc := setupRouter()
	a, _ := svc.CreateSession(t.Context(), nil, "a")
	b, _ := svc.CreateSession(t.Context(), nil, "b")

	resp := doRequest(t, r, http.MethodGet, "/pair-programming/", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	sessions := decode(t, resp)["sessions"].(map[string]any)
	if _, ok := sessions[a.ID]; !ok {
		t.Fatalf("missing session %s", a.ID)
	}
	if _, ok := sessions[b.ID]; !ok {
		t.Fatalf("missing session %s", b.ID)
	}
}
