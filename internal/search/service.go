package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"annotate/api/internal/annotation"
)

const (
	BackendMeili    = "meilisearch"
	BackendPostgres = "postgres"
)

// Service routes annotation reads to Meilisearch when it is available and to
// the system of record otherwise. The backend is chosen once per snapshot.
type Service struct {
	meili   *MeiliIndex
	primary annotation.SnapshotStore
	logger  zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *MeiliIndex, primary annotation.SnapshotStore) *Service {
	return &Service{
		meili:   meili,
		primary: primary,
		logger:  log.With().Str("component", "search").Logger(),
	}
}

// Backend names the store the next search will use.
func (s *Service) Backend() string {
	if s.meiliAvailable() {
		return BackendMeili
	}
	return BackendPostgres
}

func (s *Service) meiliAvailable() bool {
	return s.meili != nil && s.meili.Available()
}

// WithSnapshot runs fn against a single backend. A failure of that backend
// is returned to the caller rather than retried on the other one.
func (s *Service) WithSnapshot(ctx context.Context, fn func(annotation.Store) error) error {
	if s.meiliAvailable() {
		return fn(s.meili)
	}
	return s.primary.WithSnapshot(ctx, fn)
}

func (s *Service) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	return s.primary.FetchPage(ctx, q)
}

func (s *Service) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	return s.primary.CountVisible(ctx, q)
}

func (s *Service) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	return s.primary.FetchRepliesByRootIDs(ctx, scope, rootIDs, deleted)
}

func (s *Service) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	return s.primary.FetchByIDs(ctx, scope, ids, deleted)
}

// Sync brings Meilisearch in line with items: live annotations are indexed
// and deleted ones are dropped. It returns how many of each it pushed.
func (s *Service) Sync(ctx context.Context, items []annotation.Annotation) (indexed, removed int, err error) {
	if s.meili == nil {
		return 0, 0, fmt.Errorf("sync: meilisearch not configured")
	}
	live := make([]annotation.Annotation, 0, len(items))
	var gone []string
	for _, item := range items {
		if item.Deleted {
			gone = append(gone, item.ID)
			continue
		}
		live = append(live, item)
	}
	if err := s.meili.Index(ctx, live); err != nil {
		return 0, 0, fmt.Errorf("sync: index: %w", err)
	}
	if err := s.meili.Remove(ctx, gone); err != nil {
		return len(live), 0, fmt.Errorf("sync: remove: %w", err)
	}
	s.logger.Info().Int("indexed", len(live)).Int("removed", len(gone)).Msg("search index synced")
	return len(live), len(gone), nil
}

// Reindex copies every annotation from source into Meilisearch, batchSize
// at a time. It returns the number of annotations pushed.
func (s *Service) Reindex(ctx context.Context, source Lister, batchSize int) (int, error) {
	if s.meili == nil {
		return 0, fmt.Errorf("reindex: meilisearch not configured")
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	total := 0
	afterID := ""
	for {
		items, err := source.ListAnnotations(ctx, afterID, batchSize)
		if err != nil {
			return total, fmt.Errorf("reindex: %w", err)
		}
		if len(items) == 0 {
			return total, nil
		}
		if err := s.meili.Index(ctx, items); err != nil {
			return total, fmt.Errorf("reindex batch after %q: %w", afterID, err)
		}
		total += len(items)
		afterID = items[len(items)-1].ID
		s.logger.Info().Int("indexed", total).Msg("reindex progress")
		if len(items) < batchSize {
			return total, nil
		}
	}
}

// Ping reports Meilisearch health; it is nil when Meilisearch is not
// configured.
func (s *Service) Ping(ctx context.Context) error {
	if s.meili == nil {
		return nil
	}
	return s.meili.Ping(ctx)
}

// Configured reports whether a Meilisearch index is attached.
func (s *Service) Configured() bool {
	return s.meili != nil
}
