package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	return NewHTTPServer(newTestService(t), "*")
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("parse response %s: %v", rr.Body.String(), err)
		}
	}
	return rr, payload
}

func signUp(t *testing.T, server *HTTPServer, username string) string {
	t.Helper()
	rr, _ := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body=%s", username, rr.Code, rr.Body.String())
	}
	rr, payload := doJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]any{
		"login":    username,
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body=%s", username, rr.Code, rr.Body.String())
	}
	data := payload["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestRegisterAndLoginEnvelope(t *testing.T) {
	server := newTestServer(t)

	rr, payload := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d body=%s", rr.Code, rr.Body.String())
	}
	if payload["success"] != true {
		t.Fatalf("success = %v, want true", payload["success"])
	}
	data := payload["data"].(map[string]any)
	if data["role"] != "admin" {
		t.Fatalf("first user role = %v, want admin", data["role"])
	}
	if _, leaked := data["passwordHash"]; leaked {
		t.Fatal("password hash leaked in response")
	}

	rr, payload = doJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]any{
		"login":    "alice",
		"password": "nope-nope",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rr.Code)
	}
	if payload["success"] != false {
		t.Fatalf("success = %v, want false", payload["success"])
	}
}

func TestValidationErrorsInEnvelope(t *testing.T) {
	server := newTestServer(t)

	rr, payload := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username": "x",
		"email":    "not-an-email",
		"password": "password123",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v, want VALIDATION_ERROR", payload["code"])
	}
	errs, ok := payload["errors"].([]any)
	if !ok || len(errs) == 0 {
		t.Fatalf("errors = %v, want field messages", payload["errors"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(t)

	rr, _ := doJSON(t, server, http.MethodGet, "/api/projects", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rr.Code)
	}
	rr, _ = doJSON(t, server, http.MethodGet, "/api/projects", "garbage-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rr.Code)
	}
}

func TestProjectAndItemRoutes(t *testing.T) {
	server := newTestServer(t)
	token := signUp(t, server, "alice")

	rr, payload := doJSON(t, server, http.MethodPost, "/api/projects", token, map[string]any{
		"name": "Alpha",
		"key":  "ALPHA",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create project status = %d body=%s", rr.Code, rr.Body.String())
	}
	projectID := payload["data"].(map[string]any)["id"].(string)

	rr, payload = doJSON(t, server, http.MethodPost, fmt.Sprintf("/api/projects/%s/items", projectID), token, map[string]any{
		"title": "First item",
		"type":  "task",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create item status = %d body=%s", rr.Code, rr.Body.String())
	}
	item := payload["data"].(map[string]any)
	if item["key"] != "ALPHA-1" {
		t.Fatalf("item key = %v, want ALPHA-1", item["key"])
	}

	rr, payload = doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/projects/%s/items?status=todo", projectID), token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list items status = %d body=%s", rr.Code, rr.Body.String())
	}
	data := payload["data"].(map[string]any)
	items := data["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("listed %d items, want 1", len(items))
	}
	pagination := data["pagination"].(map[string]any)
	if pagination["totalItems"] != float64(1) {
		t.Fatalf("totalItems = %v, want 1", pagination["totalItems"])
	}

	rr, _ = doJSON(t, server, http.MethodGet, "/api/projects/prj_missing", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing project status = %d, want 404", rr.Code)
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	server := newTestServer(t)

	rr, _ := doJSON(t, server, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rr.Code)
	}
	rr, _ = doJSON(t, server, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", rr.Code)
	}

	token := signUp(t, server, "alice")
	rr, _ = doJSON(t, server, http.MethodGet, "/api/nothing-here", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want 404", rr.Code)
	}
}
