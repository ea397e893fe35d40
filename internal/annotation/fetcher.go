package annotation

import (
	"context"
	"fmt"
)

// window describes one run of the fetch-filter-accumulate loop.
type window struct {
	scope     Scope
	requester UserRef
	sort      SortColumn
	order     SortOrder
	offset    int
	limit     int
	batchSize int
}

// fetchWindow pulls batches of top-level annotations until limit visible
// rows past offset have been collected or the store runs dry. Each batch
// depends on how many rows of the previous one survived the visibility
// filter, so the loop is strictly sequential.
func fetchWindow(ctx context.Context, st Store, w window) ([]Annotation, Metadata, error) {
	var meta Metadata
	collected := make([]Annotation, 0, w.limit)
	if w.limit == 0 {
		return collected, meta, nil
	}

	skipRemaining := w.offset
	storeCursor := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, meta, fmt.Errorf("fetch batch %d: %w", meta.Batches+1, err)
		}

		batch, err := st.FetchPage(ctx, PageQuery{
			Scope:   w.scope,
			Sort:    w.sort,
			Order:   w.order,
			Offset:  storeCursor,
			Limit:   w.batchSize,
			Replies: TopLevelOnly,
			Deleted: ExcludeDeleted,
		})
		if err != nil {
			return nil, meta, fmt.Errorf("fetch batch %d: %w", meta.Batches+1, err)
		}
		meta.Batches++
		meta.RowsExamined += len(batch)
		storeCursor += len(batch)

		for _, item := range batch {
			if item.IsReply() || !IsVisible(item, w.requester) {
				continue
			}
			if skipRemaining > 0 {
				skipRemaining--
				continue
			}
			collected = append(collected, item)
			if len(collected) == w.limit {
				return collected, meta, nil
			}
		}

		if len(batch) < w.batchSize {
			return collected, meta, nil
		}
	}
}

func batchSizeFor(limit, minBatchSize int) int {
	if limit > minBatchSize {
		return limit
	}
	return minBatchSize
}
