package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daybook/api/internal/auth"
	"daybook/api/internal/authpw"
	"daybook/api/internal/schema"
	"daybook/api/internal/search"
	"daybook/api/internal/store"
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

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		var body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
		if err != nil {
			if errors.Is(err, authpw.ErrEmailTaken) {
				writeError(w, http.StatusConflict, "EMAIL_TAKEN", "Email already registered", nil)
				return
			}
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, err.Error(), nil)
			return
		}
		writeSession(w, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
			return
		}
		writeSession(w, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeSession(w, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
		})
		return
	}

	// Everything below requires a session.
	session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[1] == "documents" && len(parts) == 4:
		s.handleDocument(w, r, session, parts[2], parts[3])

	case parts[1] == "days" && len(parts) == 4 && parts[3] == "close" && r.Method == http.MethodPost:
		s.handleCloseDay(w, r, session, parts[2])

	case parts[1] == "days" && len(parts) == 3 && parts[2] == "missed-count" && r.Method == http.MethodGet:
		count, err := s.service.ConsecutiveMissedCount(r.Context(), session.UserID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"consecutiveMissedDays": count})

	case parts[1] == "sync" && len(parts) == 3 && r.Method == http.MethodPost:
		s.handleSync(w, r, session, parts[2])

	case parts[1] == "partner" && len(parts) == 3 && parts[2] == "summaries" && r.Method == http.MethodGet:
		s.handlePartnerSummaries(w, r, session)

	case parts[1] == "settings" && len(parts) == 2:
		s.handleSettings(w, r, session)

	case parts[1] == "search" && len(parts) == 2 && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		response := s.service.SearchReflections(search.Query{
			UserID: session.UserID,
			Text:   r.URL.Query().Get("q"),
			Limit:  limit,
		})
		writeJSON(w, http.StatusOK, response)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, session Session, docType, docKey string) {
	switch r.Method {
	case http.MethodGet:
		result, err := s.service.GetDocument(r.Context(), session.UserID, docType, docKey)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case http.MethodPut:
		var body struct {
			Content         json.RawMessage `json:"content"`
			ClientUpdatedAt time.Time       `json:"clientUpdatedAt"`
			DeviceID        string          `json:"deviceId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.ClientUpdatedAt.IsZero() {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation, "clientUpdatedAt is required", nil)
			return
		}
		result, err := s.service.SaveDocument(r.Context(), session.UserID, SaveInput{
			DocType:         docType,
			DocKey:          docKey,
			Content:         body.Content,
			ClientUpdatedAt: body.ClientUpdatedAt,
			DeviceID:        body.DeviceID,
		})
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		payload := map[string]any{"document": result.Document}
		if result.ConflictWinner != "" {
			payload["conflictResolution"] = ConflictResolution{Winner: result.ConflictWinner}
		}
		writeJSON(w, http.StatusOK, payload)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleCloseDay(w http.ResponseWriter, r *http.Request, session Session, dateKey string) {
	var body struct {
		Reflection schema.Reflection `json:"reflection"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, err := s.service.CloseDay(r.Context(), session.UserID, dateKey, body.Reflection)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request, session Session, action string) {
	switch action {
	case "push":
		var body struct {
			Mutations []Mutation `json:"mutations"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(body.Mutations) > s.service.cfg.PushBatchLimit {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation,
				fmt.Sprintf("Batch exceeds %d mutations", s.service.cfg.PushBatchLimit), nil)
			return
		}
		results := s.service.ProcessPushMutations(r.Context(), session.UserID, body.Mutations)
		writeJSON(w, http.StatusOK, map[string]any{"results": results})

	case "pull":
		var body struct {
			Since    time.Time `json:"since"`
			DocTypes []string  `json:"docTypes"`
			Limit    int       `json:"limit"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.GetChangedDocuments(r.Context(), session.UserID, body.Since, body.DocTypes, body.Limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case "full":
		var body struct {
			Push struct {
				Mutations []Mutation `json:"mutations"`
			} `json:"push"`
			PullSince time.Time `json:"pullSince"`
			DocTypes  []string  `json:"docTypes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if len(body.Push.Mutations) > s.service.cfg.PushBatchLimit {
			writeError(w, http.StatusUnprocessableEntity, CodeValidation,
				fmt.Sprintf("Batch exceeds %d mutations", s.service.cfg.PushBatchLimit), nil)
			return
		}
		results := s.service.ProcessPushMutations(r.Context(), session.UserID, body.Push.Mutations)
		// Pull with the caller-supplied watermark, never the push completion
		// time; watermark bookkeeping belongs to the client.
		pull, err := s.service.GetChangedDocuments(r.Context(), session.UserID, body.PullSince, body.DocTypes, 0)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"push": map[string]any{"results": results},
			"pull": pull,
		})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePartnerSummaries(w http.ResponseWriter, r *http.Request, session Session) {
	q := r.URL.Query()
	userID := q.Get("userId")
	from, to := q.Get("from"), q.Get("to")
	if userID == "" || from == "" || to == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeValidation, "userId, from, and to are required", nil)
		return
	}
	sums, err := s.service.PartnerSummaries(r.Context(), session.UserID, userID, from, to)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.service.Settings(r.Context(), session.UserID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var body struct {
			Timezone         string `json:"timezone"`
			AccountStartDate string `json:"accountStartDate"`
			PartnerUserID    string `json:"partnerUserId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		settings, err := s.service.UpdateSettings(r.Context(), session.UserID, store.UserSettings{
			Timezone:         body.Timezone,
			AccountStartDate: body.AccountStartDate,
			PartnerUserID:    body.PartnerUserID,
		})
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: internal error: %v", err)
	}
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, CodeInternal, "Internal error", nil
}

func writeSession(w http.ResponseWriter, session Session) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
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
