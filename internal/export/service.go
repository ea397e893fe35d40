package export

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"annotate/api/internal/annotation"
)

// Searcher runs one annotation query. *annotation.Engine satisfies it.
type Searcher interface {
	Query(ctx context.Context, opts annotation.SearchOptions, requester annotation.UserRef) (annotation.Response, error)
}

// Service provides annotation report export
type Service struct {
	searcher Searcher
	pageSize int
	now      func() time.Time
}

// NewService creates a new export service. pageSize must not exceed the
// engine's maximum limit.
func NewService(searcher Searcher, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = annotation.DefaultMaxLimit
	}
	return &Service{searcher: searcher, pageSize: pageSize, now: time.Now}
}

// BuildReport pages through the document until every visible thread has
// been read.
func (s *Service) BuildReport(ctx context.Context, req Request) (Report, error) {
	report := Report{
		DocumentURI: req.DocumentURI,
		Group:       req.Group,
		GeneratedAt: s.now().UTC(),
		Threads:     []Thread{},
	}

	for offset := 0; ; offset += s.pageSize {
		resp, err := s.searcher.Query(ctx, annotation.SearchOptions{
			DocumentURI:     req.DocumentURI,
			Group:           req.Group,
			SeparateReplies: true,
			Limit:           s.pageSize,
			Offset:          offset,
			SortColumn:      annotation.SortCreated,
			SortOrder:       annotation.OrderAsc,
		}, req.Requester)
		if err != nil {
			return Report{}, fmt.Errorf("query page at offset %d: %w", offset, err)
		}
		report.Threads = append(report.Threads, buildThreads(resp.Rows, resp.Replies)...)
		report.Inconsistent = report.Inconsistent || resp.Metadata.Inconsistent

		if len(resp.Rows) < s.pageSize || offset+len(resp.Rows) >= resp.Total {
			return report, nil
		}
	}
}

// buildThreads attaches each reply to the first page root it references.
func buildThreads(rows, replies []annotation.Annotation) []Thread {
	threads := make([]Thread, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		index[row.ID] = len(threads)
		threads = append(threads, Thread{
			ID:      row.ID,
			Author:  row.Owner.String(),
			Text:    row.Text,
			Tags:    row.Tags,
			Shared:  row.Shared,
			Created: row.Created,
			Updated: row.Updated,
			Replies: []Reply{},
		})
	}

	for _, reply := range replies {
		for _, ref := range reply.References {
			i, ok := index[ref]
			if !ok {
				continue
			}
			threads[i].Replies = append(threads[i].Replies, Reply{
				ID:      reply.ID,
				Author:  reply.Owner.String(),
				Text:    reply.Text,
				Created: reply.Created,
			})
			break
		}
	}

	for i := range threads {
		sort.SliceStable(threads[i].Replies, func(a, b int) bool {
			ra, rb := threads[i].Replies[a], threads[i].Replies[b]
			if !ra.Created.Equal(rb.Created) {
				return ra.Created.Before(rb.Created)
			}
			return ra.ID < rb.ID
		})
	}
	return threads
}

// Export generates a report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.BuildReport(ctx, req)
	if err != nil {
		return nil, err
	}

	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := "annotations-" + documentName(req.DocumentURI)
	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, html, title)
	case FormatDOCX:
		return exportDOCX(ctx, report, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func documentName(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	return path.Base(trimmed)
}
