package annotation

import (
	"context"
	"fmt"
	"sort"
)

// MaxReferenceDepth is the longest reference chain considered well formed.
const MaxReferenceDepth = 256

type replySet struct {
	replies   []Annotation
	malformed int
}

// resolveReplies returns the visible replies whose reference chain contains
// one of the page's ids, deduplicated and ordered by creation time.
func resolveReplies(ctx context.Context, st Store, scope Scope, page []Annotation, requester UserRef) (replySet, error) {
	if len(page) == 0 {
		return replySet{replies: []Annotation{}}, nil
	}

	roots := make(map[string]struct{}, len(page))
	rootIDs := make([]string, 0, len(page))
	for _, item := range page {
		if _, dup := roots[item.ID]; dup {
			continue
		}
		roots[item.ID] = struct{}{}
		rootIDs = append(rootIDs, item.ID)
	}

	if err := ctx.Err(); err != nil {
		return replySet{}, fmt.Errorf("fetch replies: %w", err)
	}
	candidates, err := st.FetchRepliesByRootIDs(ctx, scope, rootIDs, ExcludeDeleted)
	if err != nil {
		return replySet{}, fmt.Errorf("fetch replies: %w", err)
	}

	set := replySet{replies: make([]Annotation, 0, len(candidates))}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if !candidate.IsReply() || !IsVisible(candidate, requester) {
			continue
		}
		if _, ok := seen[candidate.ID]; ok {
			continue
		}
		if !referencesAny(candidate.References, roots) {
			continue
		}
		if len(candidate.References) > MaxReferenceDepth {
			set.malformed++
		}
		seen[candidate.ID] = struct{}{}
		set.replies = append(set.replies, candidate)
	}

	sort.SliceStable(set.replies, func(i, j int) bool {
		return Compare(SortCreated, OrderAsc, set.replies[i], set.replies[j]) < 0
	})
	return set, nil
}

func referencesAny(references []string, roots map[string]struct{}) bool {
	for _, ref := range references {
		if _, ok := roots[ref]; ok {
			return true
		}
	}
	return false
}
