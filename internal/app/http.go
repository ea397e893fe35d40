package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"annotate/api/internal/annotation"
	"annotate/api/internal/auth"
	"annotate/api/internal/export"
	"annotate/api/internal/logging"
	"annotate/api/internal/metrics"
	"annotate/api/internal/store"
	"annotate/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logging.Component("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/api/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/logout", s.handleLogout)
		r.Get("/api/search", s.handleSearch)
		r.Post("/api/search/replies", s.handleReplies)
		r.Get("/api/export", s.handleExport)
		r.Post("/api/exports", s.handleUploadExport)
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
		Login        string `json:"login"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	grant, err := s.service.IssueToken(r.Context(), body.ClientID, body.ClientSecret, body.Login)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": grant.AccessToken,
		"tokenType":   "Bearer",
		"expiresAt":   grant.ExpiresAt.Unix(),
		"user":        userAccount(grant.User),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), claimsFrom(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	opts, err := s.searchOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.service.Search(r.Context(), opts, claimsFrom(r.Context()).User())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchView(resp))
}

// searchOptions reads the search query. uri may also be given as url and
// group defaults to the public group.
func (s *HTTPServer) searchOptions(r *http.Request) (annotation.SearchOptions, error) {
	query := r.URL.Query()
	opts := annotation.SearchOptions{
		DocumentURI: firstNonBlank(query.Get("uri"), query.Get("url")),
		Group:       firstNonBlank(query.Get("group"), store.WorldGroup),
		Limit:       s.service.DefaultLimit(),
		SortColumn:  annotation.SortColumn(query.Get("sort")),
		SortOrder:   annotation.SortOrder(query.Get("order")),
	}

	var err error
	if raw := query.Get("_separate_replies"); raw != "" {
		if opts.SeparateReplies, err = strconv.ParseBool(raw); err != nil {
			return opts, fmt.Errorf("%w: _separate_replies: not a boolean: %q", annotation.ErrInvalidOptions, raw)
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if opts.Limit, err = strconv.Atoi(raw); err != nil {
			return opts, fmt.Errorf("%w: limit: not a number: %q", annotation.ErrInvalidOptions, raw)
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if opts.Offset, err = strconv.Atoi(raw); err != nil {
			return opts, fmt.Errorf("%w: offset: not a number: %q", annotation.ErrInvalidOptions, raw)
		}
	}
	return opts, nil
}

func (s *HTTPServer) handleReplies(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URI   string   `json:"uri"`
		Group string   `json:"group"`
		IDs   []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	replies, err := s.service.Replies(r.Context(), body.URI, firstNonBlank(body.Group, store.WorldGroup), body.IDs, claimsFrom(r.Context()).User())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"replies": toViews(replies)})
}

func (s *HTTPServer) exportRequest(r *http.Request, uri, group, format string) (export.Request, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return export.Request{}, err
	}
	return export.Request{
		DocumentURI: uri,
		Group:       firstNonBlank(group, store.WorldGroup),
		Requester:   claimsFrom(r.Context()).User(),
		Format:      parsed,
	}, nil
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, err := s.exportRequest(r, firstNonBlank(query.Get("uri"), query.Get("url")), query.Get("group"), query.Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.service.Export(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleUploadExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URI    string `json:"uri"`
		Group  string `json:"group"`
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req, err := s.exportRequest(r, body.URI, body.Group, body.Format)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	upload, err := s.service.UploadReport(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":       upload.Key,
		"url":       upload.URL,
		"filename":  upload.Filename,
		"expiresAt": upload.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("code", code).
			Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(auth.Claims)
	return claims
}

func (s *HTTPServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		claims, err := s.service.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.logger.Error().Err(err).Msg("token lookup failed")
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewPrefixedID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(writer.status)).Inc()

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

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
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
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

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
