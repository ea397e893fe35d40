package annotation

import "sort"

// Response is the assembled result of a search. When Separate is false,
// Rows holds top-level items and replies merged in sort order and Replies
// is nil.
type Response struct {
	Total    int
	Rows     []Annotation
	Replies  []Annotation
	Separate bool
	Metadata Metadata
}

// Assemble combines a page and its replies into the shape requested by
// opts. Total always counts top-level annotations only.
func Assemble(result SearchResult, replies []Annotation, opts SearchOptions) Response {
	opts = opts.withDefaults()
	if replies == nil {
		replies = []Annotation{}
	}
	if opts.SeparateReplies {
		return Response{
			Total:    result.Total,
			Rows:     result.Rows,
			Replies:  replies,
			Separate: true,
			Metadata: result.Metadata,
		}
	}

	combined := make([]Annotation, 0, len(result.Rows)+len(replies))
	combined = append(combined, result.Rows...)
	combined = append(combined, replies...)
	sort.SliceStable(combined, func(i, j int) bool {
		return Compare(opts.SortColumn, opts.SortOrder, combined[i], combined[j]) < 0
	})
	return Response{
		Total:    result.Total,
		Rows:     combined,
		Metadata: result.Metadata,
	}
}
