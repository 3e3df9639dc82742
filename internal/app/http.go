package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tracker/api/internal/apperr"
	"tracker/api/internal/auth"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]any{"store": "ok"}
		status := http.StatusOK
		if err := s.service.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"success": status == http.StatusOK,
			"message": "readiness",
			"data":    checks,
		})
		return
	}

	// Auth routes, no session required.
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		s.handleRefresh(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeSuccess(w, http.StatusOK, "logged out", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	actor := session.Actor()
	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/me" {
		payload, err := s.service.GetUser(r.Context(), actor, actor.ID)
		s.respond(w, payload, "current user", err)
		return
	}

	switch parts[1] {
	case "users":
		s.handleUsers(w, r, session, parts[2:])
	case "projects":
		s.handleProjects(w, r, session, parts[2:])
	case "items":
		s.handleItems(w, r, session, parts[2:])
	case "comments":
		s.handleComments(w, r, session, parts[2:])
	case "tags":
		s.handleTags(w, r, session, parts[2:])
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Register(r.Context(), body)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "account created", payload)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	login := body.Login
	if login == "" {
		login = body.Username
	}
	session, err := s.service.Login(r.Context(), login, body.Password)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "logged in", sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "session refreshed", sessionPayload(session))
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	actor := session.Actor()
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		page, perPage := pageParams(r)
		payload, err := s.service.ListUsers(r.Context(), actor, page, perPage)
		s.respond(w, payload, "users", err)
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetUser(r.Context(), actor, rest[0])
		s.respond(w, payload, "user", err)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProfile(r.Context(), actor, rest[0], body)
		s.respond(w, payload, "profile updated", err)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteUser(r.Context(), actor, rest[0]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "user deleted", nil)
	case len(rest) == 2 && rest[1] == "role" && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateUserRole(r.Context(), actor, rest[0], model.GlobalRole(body.Role))
		s.respond(w, payload, "role updated", err)
	case len(rest) == 2 && rest[1] == "password" && r.Method == http.MethodPut:
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), actor, rest[0], body.CurrentPassword, body.NewPassword); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "password changed", nil)
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	actor := session.Actor()
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body CreateProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateProject(r.Context(), actor, body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "project created", payload)
	case len(rest) == 0 && r.Method == http.MethodGet:
		page, perPage := pageParams(r)
		payload, err := s.service.ListProjects(r.Context(), actor, page, perPage)
		s.respond(w, payload, "projects", err)
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetProject(r.Context(), actor, rest[0])
		s.respond(w, payload, "project", err)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProject(r.Context(), actor, rest[0], body)
		s.respond(w, payload, "project updated", err)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteProject(r.Context(), actor, rest[0]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "project deleted", nil)
	case len(rest) == 2 && rest[1] == "members" && r.Method == http.MethodPost:
		var body MemberInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddMember(r.Context(), actor, rest[0], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "member added", payload)
	case len(rest) == 3 && rest[1] == "members" && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateMemberRole(r.Context(), actor, rest[0], rest[2], body.Role)
		s.respond(w, payload, "member role updated", err)
	case len(rest) == 3 && rest[1] == "members" && r.Method == http.MethodDelete:
		payload, err := s.service.RemoveMember(r.Context(), actor, rest[0], rest[2])
		s.respond(w, payload, "member removed", err)
	case len(rest) == 2 && rest[1] == "items" && r.Method == http.MethodPost:
		var body CreateItemInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateItem(r.Context(), actor, rest[0], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "item created", payload)
	case len(rest) == 2 && rest[1] == "items" && r.Method == http.MethodGet:
		page, perPage := pageParams(r)
		filter := ItemFilter{
			Status:     r.URL.Query().Get("status"),
			AssigneeID: r.URL.Query().Get("assigneeId"),
			Type:       r.URL.Query().Get("type"),
		}
		payload, err := s.service.ListItems(r.Context(), actor, rest[0], filter, page, perPage)
		s.respond(w, payload, "items", err)
	case len(rest) == 2 && rest[1] == "tags" && r.Method == http.MethodPost:
		var body TagInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateTag(r.Context(), actor, rest[0], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "tag created", payload)
	case len(rest) == 2 && rest[1] == "tags" && r.Method == http.MethodGet:
		payload, err := s.service.ListTags(r.Context(), actor, rest[0])
		s.respond(w, payload, "tags", err)
	case len(rest) == 3 && rest[1] == "tags" && rest[2] == "most-used" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		payload, err := s.service.MostUsedTags(r.Context(), actor, rest[0], limit)
		s.respond(w, payload, "most used tags", err)
	case len(rest) == 2 && rest[1] == "stats" && r.Method == http.MethodGet:
		payload, err := s.service.ProjectStats(r.Context(), actor, rest[0])
		s.respond(w, payload, "project stats", err)
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	actor := session.Actor()
	switch {
	case len(rest) == 1 && r.Method == http.MethodGet:
		payload, err := s.service.GetItem(r.Context(), actor, rest[0])
		s.respond(w, payload, "item", err)
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body UpdateItemInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateItem(r.Context(), actor, rest[0], body)
		s.respond(w, payload, "item updated", err)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteItem(r.Context(), actor, rest[0]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "item deleted", nil)
	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodPost:
		var body CommentInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateComment(r.Context(), actor, rest[0], body)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "comment created", payload)
	case len(rest) == 2 && rest[1] == "comments" && r.Method == http.MethodGet:
		page, perPage := pageParams(r)
		payload, err := s.service.ListComments(r.Context(), actor, rest[0], page, perPage)
		s.respond(w, payload, "comments", err)
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	actor := session.Actor()
	switch {
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body CommentInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateComment(r.Context(), actor, rest[0], body)
		s.respond(w, payload, "comment updated", err)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteComment(r.Context(), actor, rest[0]); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "comment deleted", nil)
	case len(rest) == 2 && rest[1] == "read" && r.Method == http.MethodPost:
		payload, err := s.service.MarkCommentRead(r.Context(), actor, rest[0])
		s.respond(w, payload, "comment marked read", err)
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	actor := session.Actor()
	switch {
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body TagInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateTag(r.Context(), actor, rest[0], body)
		s.respond(w, payload, "tag updated", err)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		force := r.URL.Query().Get("force") == "true"
		if err := s.service.DeleteTag(r.Context(), actor, rest[0], force); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, "tag deleted", nil)
	case len(rest) == 2 && rest[1] == "recount" && r.Method == http.MethodPost:
		payload, err := s.service.RecountTag(r.Context(), actor, rest[0])
		s.respond(w, payload, "tag usage recounted", err)
	default:
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload map[string]any, message string, err error) {
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, message, payload)
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeFailure(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeFailure(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || apperr.HasCode(err, "UNAUTHORIZED") {
			writeFailure(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeFailure(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data map[string]any) {
	response := map[string]any{
		"success": true,
		"message": message,
	}
	if data != nil {
		response["data"] = data
	}
	writeJSON(w, status, response)
}

func writeFailure(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["errors"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	return page, perPage
}

func mapError(err error) (status int, code, message string, details any) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code, appErr.Message, appErr.Details
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
