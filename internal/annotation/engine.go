package annotation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinBatchSize = 50
	DefaultMaxLimit     = 200
)

// Engine serves permission-filtered annotation searches. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	store        Store
	minBatchSize int
	maxLimit     int
	logger       zerolog.Logger
}

type Option func(*Engine)

// WithMinBatchSize sets the smallest batch requested from the store.
func WithMinBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.minBatchSize = n
		}
	}
}

// WithMaxLimit caps the page size callers may request.
func WithMaxLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLimit = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		minBatchSize: DefaultMinBatchSize,
		maxLimit:     DefaultMaxLimit,
		logger:       log.With().Str("component", "annotation").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks opts without touching the store.
func (e *Engine) Validate(opts SearchOptions) error {
	opts = opts.withDefaults()
	if err := validateScope(opts); err != nil {
		return err
	}
	if opts.Limit < 0 {
		return invalidOptions("limit", "must not be negative, got %d", opts.Limit)
	}
	if opts.Limit > e.maxLimit {
		return invalidOptions("limit", "must not exceed %d, got %d", e.maxLimit, opts.Limit)
	}
	if opts.Offset < 0 {
		return invalidOptions("offset", "must not be negative, got %d", opts.Offset)
	}
	if !validSortColumn(opts.SortColumn) {
		return invalidOptions("sort", "unknown column %q", opts.SortColumn)
	}
	if !validSortOrder(opts.SortOrder) {
		return invalidOptions("order", "unknown direction %q", opts.SortOrder)
	}
	return nil
}

func validateScope(opts SearchOptions) error {
	if strings.TrimSpace(opts.DocumentURI) == "" {
		return invalidOptions("uri", "required")
	}
	if strings.TrimSpace(opts.Group) == "" {
		return invalidOptions("group", "required")
	}
	return nil
}

// Search returns one page of visible top-level annotations and the total
// number of such annotations in scope.
func (e *Engine) Search(ctx context.Context, opts SearchOptions, requester UserRef) (SearchResult, error) {
	opts = opts.withDefaults()
	if err := e.Validate(opts); err != nil {
		return SearchResult{}, err
	}

	var result SearchResult
	err := e.withSnapshot(ctx, func(st Store) error {
		var err error
		result, err = e.search(ctx, st, opts, requester)
		return err
	})
	if err != nil {
		return SearchResult{}, err
	}
	return result, nil
}

// ResolveReplies returns the visible replies attached to the annotations in
// page, ordered by creation time.
func (e *Engine) ResolveReplies(ctx context.Context, page []Annotation, opts SearchOptions, requester UserRef) ([]Annotation, error) {
	if err := validateScope(opts); err != nil {
		return nil, err
	}

	var replies []Annotation
	err := e.withSnapshot(ctx, func(st Store) error {
		var err error
		replies, err = e.resolve(ctx, st, page, opts, requester)
		return err
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

// RepliesForIDs resolves replies for roots named by id. Only ids that name a
// live top-level annotation the requester can see act as roots; anything
// else contributes no replies.
func (e *Engine) RepliesForIDs(ctx context.Context, ids []string, opts SearchOptions, requester UserRef) ([]Annotation, error) {
	if err := validateScope(opts); err != nil {
		return nil, err
	}

	var replies []Annotation
	err := e.withSnapshot(ctx, func(st Store) error {
		candidates, err := st.FetchByIDs(ctx, opts.Scope(requester), ids, ExcludeDeleted)
		if err != nil {
			return fmt.Errorf("fetch roots: %w", err)
		}
		roots := make([]Annotation, 0, len(candidates))
		for _, candidate := range candidates {
			if candidate.IsReply() || !IsVisible(candidate, requester) {
				continue
			}
			roots = append(roots, candidate)
		}
		replies, err = e.resolve(ctx, st, roots, opts, requester)
		return err
	})
	if err != nil {
		return nil, err
	}
	return replies, nil
}

// Query runs Search, ResolveReplies and Assemble against a single snapshot.
func (e *Engine) Query(ctx context.Context, opts SearchOptions, requester UserRef) (Response, error) {
	opts = opts.withDefaults()
	if err := e.Validate(opts); err != nil {
		return Response{}, err
	}

	var resp Response
	err := e.withSnapshot(ctx, func(st Store) error {
		result, err := e.search(ctx, st, opts, requester)
		if err != nil {
			return err
		}
		replies, err := e.resolve(ctx, st, result.Rows, opts, requester)
		if err != nil {
			return err
		}
		resp = Assemble(result, replies, opts)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (e *Engine) search(ctx context.Context, st Store, opts SearchOptions, requester UserRef) (SearchResult, error) {
	scope := opts.Scope(requester)
	w := window{
		scope:     scope,
		requester: requester,
		sort:      opts.SortColumn,
		order:     opts.SortOrder,
		offset:    opts.Offset,
		limit:     opts.Limit,
		batchSize: batchSizeFor(opts.Limit, e.minBatchSize),
	}

	var (
		total int
		rows  []Annotation
		meta  Metadata
	)
	count := func(ctx context.Context) error {
		var err error
		total, err = countTotal(ctx, st, scope, requester)
		return err
	}
	fetch := func(ctx context.Context) error {
		var err error
		rows, meta, err = fetchWindow(ctx, st, w)
		return err
	}

	if isSequential(st) {
		if err := count(ctx); err != nil {
			return SearchResult{}, err
		}
		if err := fetch(ctx); err != nil {
			return SearchResult{}, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return count(gctx) })
		g.Go(func() error { return fetch(gctx) })
		if err := g.Wait(); err != nil {
			return SearchResult{}, err
		}
	}

	seen := opts.Offset + len(rows)
	if (len(rows) < opts.Limit && total > seen) || (len(rows) > 0 && seen > total) {
		meta.Inconsistent = true
		e.logger.Warn().
			Err(ErrInconsistentSnapshot).
			Str("uri", scope.DocumentURI).
			Str("group", scope.Group).
			Int("total", total).
			Int("offset", opts.Offset).
			Int("rows", len(rows)).
			Msg("store changed during search, returning collected rows")
	}

	e.logger.Debug().
		Int("batches", meta.Batches).
		Int("rows_examined", meta.RowsExamined).
		Int("rows", len(rows)).
		Int("total", total).
		Msg("search complete")

	return SearchResult{Rows: rows, Total: total, Metadata: meta}, nil
}

func (e *Engine) resolve(ctx context.Context, st Store, page []Annotation, opts SearchOptions, requester UserRef) ([]Annotation, error) {
	set, err := resolveReplies(ctx, st, opts.Scope(requester), page, requester)
	if err != nil {
		return nil, err
	}
	if set.malformed > 0 {
		e.logger.Warn().
			Int("count", set.malformed).
			Int("max_depth", MaxReferenceDepth).
			Msg("replies with overlong reference chains")
	}
	return set.replies, nil
}

func (e *Engine) withSnapshot(ctx context.Context, fn func(Store) error) error {
	if ss, ok := e.store.(SnapshotStore); ok {
		return ss.WithSnapshot(ctx, fn)
	}
	return fn(e.store)
}

func isSequential(st Store) bool {
	s, ok := st.(Sequential)
	return ok && s.Sequential()
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.SortColumn == "" {
		o.SortColumn = SortUpdated
	}
	if o.SortOrder == "" {
		o.SortOrder = OrderDesc
	}
	o.SortColumn = SortColumn(strings.ToLower(string(o.SortColumn)))
	o.SortOrder = SortOrder(strings.ToLower(string(o.SortOrder)))
	return o
}
