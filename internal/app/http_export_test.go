package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"annotate/api/internal/annotation/annotationtest"
)

func TestExportHTMLDownload(t *testing.T) {
	server := NewHTTPServer(newExtendedEnv(t).service, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/export?uri=uri://LEOS/doc1&format=html", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, annotationtest.User1, "jti-export"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="annotations-doc1.html"` {
		t.Fatalf("unexpected content disposition %q", got)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "annotation 20") || !strings.Contains(body, "annotation 23") {
		t.Fatalf("expected thread and reply text in report")
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	server := NewHTTPServer(newExtendedEnv(t).service, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/export?uri=uri://LEOS/doc1&format=odt", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, annotationtest.User1, "jti-export"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assertErrorCode(t, rr, http.StatusBadRequest, "INVALID_FORMAT")
}

func TestExportUploadStoresReport(t *testing.T) {
	env := newExtendedEnv(t)
	server := NewHTTPServer(env.service, "*")

	body, _ := json.Marshal(map[string]string{"uri": annotationtest.DocumentURI, "format": "html"})
	req := httptest.NewRequest(http.MethodPost, "/api/exports", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, annotationtest.User1, "jti-upload"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	key, _ := payload["key"].(string)
	if !strings.HasPrefix(key, "reports/EdiT/user1/") || !strings.HasSuffix(key, "-annotations-doc1.html") {
		t.Fatalf("unexpected key %q", key)
	}
	if _, ok := env.reports.uploads[key]; !ok {
		t.Fatalf("expected report to be uploaded under %q", key)
	}
	if url, _ := payload["url"].(string); !strings.Contains(url, key) {
		t.Fatalf("expected presigned url for key, got %q", url)
	}
}

func TestExportUploadWithoutStorage(t *testing.T) {
	env := newExtendedEnv(t)
	env.service.reports = nil
	server := NewHTTPServer(env.service, "*")

	body := `{"uri":"uri://LEOS/doc1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, annotationtest.User1, "jti-upload"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assertErrorCode(t, rr, http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE")
}
