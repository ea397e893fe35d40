package store

import (
	"context"
	"sort"
	"sync"

	"annotate/api/internal/annotation"
)

// MemoryStore keeps annotations in a map. It is used by tests and by the
// server when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]annotation.Annotation
}

func NewMemoryStore(items ...annotation.Annotation) *MemoryStore {
	m := &MemoryStore{items: make(map[string]annotation.Annotation, len(items))}
	m.Put(items...)
	return m
}

// Put inserts or replaces annotations by id.
func (m *MemoryStore) Put(items ...annotation.Annotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[item.ID] = cloneAnnotation(item)
	}
}

// MarkDeleted flags an annotation as deleted, leaving references to it intact.
func (m *MemoryStore) MarkDeleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return false
	}
	item.Deleted = true
	m.items[id] = item
	return true
}

func (m *MemoryStore) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryView{items: m.items}.FetchPage(ctx, q)
}

func (m *MemoryStore) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryView{items: m.items}.CountVisible(ctx, q)
}

func (m *MemoryStore) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryView{items: m.items}.FetchRepliesByRootIDs(ctx, scope, rootIDs, deleted)
}

func (m *MemoryStore) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryView{items: m.items}.FetchByIDs(ctx, scope, ids, deleted)
}

// WithSnapshot holds the read lock while fn runs, so writers wait until the
// search has finished.
func (m *MemoryStore) WithSnapshot(ctx context.Context, fn func(annotation.Store) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memoryView{items: m.items})
}

// memoryView reads the map without locking; callers hold the lock.
type memoryView struct {
	items map[string]annotation.Annotation
}

func (v memoryView) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, annotation.StoreError("fetch page", err)
	}
	matched := v.matching(q.Scope, q.Replies, q.Deleted)
	sort.Slice(matched, func(i, j int) bool {
		return annotation.Compare(q.Sort, q.Order, matched[i], matched[j]) < 0
	})

	items := make([]annotation.Annotation, 0, q.Limit)
	if q.Offset >= len(matched) {
		return items, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, item := range matched[q.Offset:end] {
		items = append(items, cloneAnnotation(item))
	}
	return items, nil
}

func (v memoryView) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, annotation.StoreError("count visible", err)
	}
	total := 0
	for _, item := range v.matching(q.Scope, q.Replies, q.Deleted) {
		if item.Shared || item.Owner == q.Requester {
			total++
		}
	}
	return total, nil
}

func (v memoryView) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, annotation.StoreError("fetch replies", err)
	}
	roots := make(map[string]struct{}, len(rootIDs))
	for _, id := range rootIDs {
		roots[id] = struct{}{}
	}

	items := make([]annotation.Annotation, 0)
	for _, item := range v.matching(scope, annotation.RepliesOnly, deleted) {
		for _, ref := range item.References {
			if _, ok := roots[ref]; ok {
				items = append(items, cloneAnnotation(item))
				break
			}
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return annotation.Compare(annotation.SortCreated, annotation.OrderAsc, items[i], items[j]) < 0
	})
	return items, nil
}

func (v memoryView) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, annotation.StoreError("fetch by ids", err)
	}
	items := make([]annotation.Annotation, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		item, ok := v.items[id]
		if !ok || item.Scope != scope {
			continue
		}
		if deleted == annotation.ExcludeDeleted && item.Deleted {
			continue
		}
		items = append(items, cloneAnnotation(item))
	}
	return items, nil
}

func (v memoryView) matching(scope annotation.Scope, replies annotation.ReplyFilter, deleted annotation.DeletedFilter) []annotation.Annotation {
	matched := make([]annotation.Annotation, 0, len(v.items))
	for _, item := range v.items {
		if item.Scope != scope {
			continue
		}
		if deleted == annotation.ExcludeDeleted && item.Deleted {
			continue
		}
		switch replies {
		case annotation.TopLevelOnly:
			if item.IsReply() {
				continue
			}
		case annotation.RepliesOnly:
			if !item.IsReply() {
				continue
			}
		}
		matched = append(matched, item)
	}
	return matched
}

func cloneAnnotation(a annotation.Annotation) annotation.Annotation {
	if a.References != nil {
		a.References = append([]string(nil), a.References...)
	}
	if a.Tags != nil {
		a.Tags = append([]string(nil), a.Tags...)
	}
	return a
}
