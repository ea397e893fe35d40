package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotate/api/internal/annotation"
	"annotate/api/internal/annotation/annotationtest"
	"annotate/api/internal/store"
)

type meiliRequest struct {
	method string
	path   string
	body   []byte
}

// fakeMeili answers the handful of Meilisearch endpoints the index uses and
// records every request it sees.
type fakeMeili struct {
	mu       sync.Mutex
	requests []meiliRequest
	hits     []Document
}

func newFakeMeili(t *testing.T, hits ...Document) (*fakeMeili, *MeiliIndex) {
	t.Helper()
	f := &fakeMeili{hits: hits}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	idx := NewMeiliIndex(srv.URL, "", BreakerConfig{})
	t.Cleanup(idx.Close)
	require.True(t, idx.Available())
	return f, idx
}

func (f *fakeMeili) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, meiliRequest{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/health":
		fmt.Fprint(w, `{"status":"available"}`)
	case strings.HasSuffix(r.URL.Path, "/search"):
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": f.hits, "query": "", "processingTimeMs": 0})
	default:
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"taskUid":1,"indexUid":"annotations","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-05-01T12:00:00Z"}`)
	}
}

func (f *fakeMeili) find(method, path string) []meiliRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []meiliRequest
	for _, req := range f.requests {
		if req.method == method && req.path == path {
			out = append(out, req)
		}
	}
	return out
}

func searchFilter(t *testing.T, req meiliRequest) string {
	t.Helper()
	var body struct {
		Filter string `json:"filter"`
	}
	require.NoError(t, json.Unmarshal(req.body, &body))
	return body.Filter
}

func TestMeiliFetchByIDs(t *testing.T) {
	root := annotationtest.Extended()[0]
	f, idx := newFakeMeili(t, toDocument(root))

	items, err := idx.FetchByIDs(context.Background(), annotationtest.Scope(), []string{root.ID, `odd"id`}, annotation.ExcludeDeleted)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, root.ID, items[0].ID)

	searches := f.find(http.MethodPost, "/indexes/annotations/search")
	require.Len(t, searches, 1)
	assert.Equal(t,
		`uri = "uri://LEOS/doc1" AND group = "__world__" AND authority = "EdiT" AND deleted = false AND id IN ["`+root.ID+`", "odd\"id"]`,
		searchFilter(t, searches[0]))
}

func TestMeiliFetchByIDsWithoutIDs(t *testing.T) {
	f, idx := newFakeMeili(t)

	items, err := idx.FetchByIDs(context.Background(), annotationtest.Scope(), nil, annotation.ExcludeDeleted)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.find(http.MethodPost, "/indexes/annotations/search"))
}

func TestMeiliIndexHonoursCancelledContext(t *testing.T) {
	f, idx := newFakeMeili(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := idx.Index(ctx, annotationtest.Extended()[:2])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.find(http.MethodPost, "/indexes/annotations/documents"))
}

func TestServiceSyncIndexesLiveAndRemovesDeleted(t *testing.T) {
	f, idx := newFakeMeili(t)
	svc := NewService(idx, store.NewMemoryStore())

	indexed, removed, err := svc.Sync(context.Background(), annotationtest.Extended())
	require.NoError(t, err)
	assert.Equal(t, 36, indexed)
	assert.Equal(t, 1, removed)

	adds := f.find(http.MethodPost, "/indexes/annotations/documents")
	require.Len(t, adds, 1)
	var docs []Document
	require.NoError(t, json.Unmarshal(adds[0].body, &docs))
	assert.Len(t, docs, 36)
	for _, doc := range docs {
		assert.False(t, doc.Deleted, doc.ID)
	}

	deletes := f.find(http.MethodPost, "/indexes/annotations/documents/delete-batch")
	require.Len(t, deletes, 1)
	var ids []string
	require.NoError(t, json.Unmarshal(deletes[0].body, &ids))
	assert.Equal(t, []string{annotationtest.DeletedParentID}, ids)
}

func TestSyncRequiresMeili(t *testing.T) {
	_, _, err := NewService(nil, store.NewMemoryStore()).Sync(context.Background(), annotationtest.Extended())
	assert.Error(t, err)
}
