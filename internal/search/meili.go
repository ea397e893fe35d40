package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"annotate/api/internal/annotation"
	"annotate/api/internal/metrics"
)

const idxAnnotations = "annotations"

// maxTotalHits bounds how deep the batch cursor can walk one document.
const maxTotalHits = 100000

var errUnhealthy = errors.New("meilisearch unhealthy")

// BreakerConfig controls when Meilisearch is taken out of rotation.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// MeiliIndex serves annotation reads from a Meilisearch index. It has no
// snapshot isolation; searches against it are best-effort.
type MeiliIndex struct {
	client  meili.ServiceManager
	breaker *gobreaker.CircuitBreaker
	healthy atomic.Bool
	done    chan struct{}
	logger  zerolog.Logger
}

// NewMeiliIndex creates a Meilisearch client and configures the index. The
// index starts unhealthy if Meilisearch cannot be reached and recovers in
// the background.
func NewMeiliIndex(url, apiKey string, cfg BreakerConfig) *MeiliIndex {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	m := &MeiliIndex{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: log.With().Str("component", "search").Logger(),
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meilisearch",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *MeiliIndex) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxAnnotations,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxAnnotations)
	filterable := []interface{}{"uri", "group", "authority", "owner", "shared", "isReply", "deleted", "refs"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Msg("update filterable attributes")
	}
	sortable := []string{"createdTs", "updatedTs", "id"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn().Err(err).Msg("update sortable attributes")
	}
	searchable := []string{"text", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn().Err(err).Msg("update searchable attributes")
	}
	if _, err := index.UpdatePagination(&meili.Pagination{MaxTotalHits: maxTotalHits}); err != nil {
		m.logger.Warn().Err(err).Msg("update pagination")
	}
}

func (m *MeiliIndex) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *MeiliIndex) Close() {
	close(m.done)
}

// Available reports whether searches should be routed here.
func (m *MeiliIndex) Available() bool {
	return m.healthy.Load() && m.breaker.State() != gobreaker.StateOpen
}

func (m *MeiliIndex) Ping(ctx context.Context) error {
	if _, err := m.client.HealthWithContext(ctx); err != nil {
		return fmt.Errorf("meilisearch health: %w", err)
	}
	return nil
}

func (m *MeiliIndex) search(ctx context.Context, op string, req *meili.SearchRequest) (*meili.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, annotation.StoreError(op, err)
	}
	if !m.healthy.Load() {
		return nil, annotation.StoreError(op, errUnhealthy)
	}
	resp, err := m.breaker.Execute(func() (interface{}, error) {
		return m.client.Index(idxAnnotations).SearchWithContext(ctx, "", req)
	})
	if err != nil {
		return nil, annotation.StoreError(op, err)
	}
	return resp.(*meili.SearchResponse), nil
}

func (m *MeiliIndex) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	sort, err := sortFor(q.Sort, q.Order)
	if err != nil {
		return nil, err
	}
	resp, err := m.search(ctx, "fetch page", &meili.SearchRequest{
		Filter: scopeFilter(q.Scope, q.Replies, q.Deleted),
		Sort:   sort,
		Offset: int64(q.Offset),
		Limit:  int64(q.Limit),
	})
	if err != nil {
		return nil, err
	}
	return decodeHits(resp.Hits)
}

func (m *MeiliIndex) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	filter := scopeFilter(q.Scope, q.Replies, q.Deleted) +
		" AND (shared = true OR owner = " + quote(q.Requester.String()) + ")"
	resp, err := m.search(ctx, "count visible", &meili.SearchRequest{
		Filter:               filter,
		HitsPerPage:          1,
		Page:                 1,
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return 0, err
	}
	return int(resp.TotalHits), nil
}

func (m *MeiliIndex) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if len(rootIDs) == 0 {
		return []annotation.Annotation{}, nil
	}
	filter := scopeFilter(scope, annotation.RepliesOnly, deleted) + " AND refs IN " + quoteList(rootIDs)
	return m.fetchAll(ctx, "fetch replies", filter)
}

func (m *MeiliIndex) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if len(ids) == 0 {
		return []annotation.Annotation{}, nil
	}
	filter := scopeFilter(scope, annotation.AnyReplyState, deleted) + " AND id IN " + quoteList(ids)
	return m.fetchAll(ctx, "fetch by ids", filter)
}

func (m *MeiliIndex) fetchAll(ctx context.Context, op, filter string) ([]annotation.Annotation, error) {
	items := make([]annotation.Annotation, 0)
	for offset := 0; ; offset += replyPageSize {
		resp, err := m.search(ctx, op, &meili.SearchRequest{
			Filter: filter,
			Sort:   []string{"createdTs:asc", "id:asc"},
			Offset: int64(offset),
			Limit:  replyPageSize,
		})
		if err != nil {
			return nil, err
		}
		page, err := decodeHits(resp.Hits)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		if len(page) < replyPageSize {
			return items, nil
		}
	}
}

const replyPageSize = 500

func scopeFilter(scope annotation.Scope, replies annotation.ReplyFilter, deleted annotation.DeletedFilter) string {
	parts := []string{
		"uri = " + quote(scope.DocumentURI),
		"group = " + quote(scope.Group),
		"authority = " + quote(scope.Authority),
	}
	switch replies {
	case annotation.TopLevelOnly:
		parts = append(parts, "isReply = false")
	case annotation.RepliesOnly:
		parts = append(parts, "isReply = true")
	}
	if deleted == annotation.ExcludeDeleted {
		parts = append(parts, "deleted = false")
	}
	return strings.Join(parts, " AND ")
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders v as a filter string literal. Meilisearch only treats
// backslash and double quote as special inside one.
func quote(v string) string {
	return `"` + filterEscaper.Replace(v) + `"`
}

func quoteList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, quote(v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var sortAttributes = map[annotation.SortColumn]string{
	annotation.SortCreated: "createdTs",
	annotation.SortUpdated: "updatedTs",
	annotation.SortID:      "id",
}

func sortFor(column annotation.SortColumn, order annotation.SortOrder) ([]string, error) {
	attr, ok := sortAttributes[column]
	if !ok {
		return nil, fmt.Errorf("%w: sort: unknown column %q", annotation.ErrInvalidOptions, column)
	}
	dir := "asc"
	if order == annotation.OrderDesc {
		dir = "desc"
	}
	if attr == "id" {
		return []string{"id:" + dir}, nil
	}
	return []string{attr + ":" + dir, "id:" + dir}, nil
}

func decodeHits(hits []meili.Hit) ([]annotation.Annotation, error) {
	items := make([]annotation.Annotation, 0, len(hits))
	for _, hit := range hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			return nil, fmt.Errorf("encode hit: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode hit: %w", err)
		}
		items = append(items, doc.toAnnotation())
	}
	return items, nil
}

// Index adds or replaces annotations in the index.
func (m *MeiliIndex) Index(ctx context.Context, items []annotation.Annotation) error {
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, toDocument(item))
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		return m.client.Index(idxAnnotations).AddDocumentsWithContext(ctx, docs, nil)
	})
	metrics.IndexOperations.WithLabelValues("add", metrics.Outcome(err)).Inc()
	return err
}

// Remove deletes annotations from the index.
func (m *MeiliIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		return m.client.Index(idxAnnotations).DeleteDocumentsWithContext(ctx, ids, nil)
	})
	metrics.IndexOperations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	return err
}
