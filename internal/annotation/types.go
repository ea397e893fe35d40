// Package annotation implements permission-aware search and pagination over
// annotations stored in a backend that can only return ordered, unfiltered
// batches.
package annotation

import (
	"context"
	"time"
)

// UserRef identifies a user within an authority.
type UserRef struct {
	Login     string `json:"login"`
	Authority string `json:"authority"`
}

// String renders the reference the way it is stored in the index.
func (u UserRef) String() string {
	return u.Login + "@" + u.Authority
}

// Scope bounds a search to one document in one group.
type Scope struct {
	DocumentURI string
	Group       string
	Authority   string
}

// Annotation is a single note on a document. A non-empty References marks a
// reply; its ids run root-first and may point at deleted annotations.
type Annotation struct {
	ID         string
	Created    time.Time
	Updated    time.Time
	Scope      Scope
	Owner      UserRef
	Shared     bool
	References []string
	Deleted    bool
	Text       string
	Tags       []string
}

// IsReply reports whether the annotation belongs to a thread.
func (a Annotation) IsReply() bool {
	return len(a.References) > 0
}

type SortColumn string

const (
	SortCreated SortColumn = "created"
	SortUpdated SortColumn = "updated"
	SortID      SortColumn = "id"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ReplyFilter selects top-level annotations, replies, or both.
type ReplyFilter int

const (
	TopLevelOnly ReplyFilter = iota
	RepliesOnly
	AnyReplyState
)

// DeletedFilter selects whether logically deleted rows are returned.
type DeletedFilter int

const (
	ExcludeDeleted DeletedFilter = iota
	IncludeDeleted
)

// SearchOptions are supplied by the caller once per search.
type SearchOptions struct {
	DocumentURI     string
	Group           string
	SeparateReplies bool
	Limit           int
	Offset          int
	SortColumn      SortColumn
	SortOrder       SortOrder
}

// Scope returns the search scope for the given requester.
func (o SearchOptions) Scope(requester UserRef) Scope {
	return Scope{DocumentURI: o.DocumentURI, Group: o.Group, Authority: requester.Authority}
}

// Metadata describes the work done by one search.
type Metadata struct {
	Batches      int
	RowsExamined int
	// Inconsistent is set when the store returned fewer visible rows than
	// the count promised.
	Inconsistent bool
}

// SearchResult is a page of top-level annotations plus the total number of
// visible top-level annotations in scope.
type SearchResult struct {
	Rows     []Annotation
	Total    int
	Metadata Metadata
}

// PageQuery is one bounded, ordered fetch from a Store.
type PageQuery struct {
	Scope   Scope
	Sort    SortColumn
	Order   SortOrder
	Offset  int
	Limit   int
	Replies ReplyFilter
	Deleted DeletedFilter
}

// CountQuery counts rows visible to Requester.
type CountQuery struct {
	Scope     Scope
	Requester UserRef
	Replies   ReplyFilter
	Deleted   DeletedFilter
}

// Store is the read capability the engine needs from a backend. FetchPage
// must order by the sort column and then by id in the same direction.
type Store interface {
	FetchPage(ctx context.Context, q PageQuery) ([]Annotation, error)
	CountVisible(ctx context.Context, q CountQuery) (int, error)
	FetchRepliesByRootIDs(ctx context.Context, scope Scope, rootIDs []string, deleted DeletedFilter) ([]Annotation, error)
	// FetchByIDs returns the annotations in scope with the given ids, in no
	// particular order. Unknown ids are skipped.
	FetchByIDs(ctx context.Context, scope Scope, ids []string, deleted DeletedFilter) ([]Annotation, error)
}

// SnapshotStore runs fn against a view of the store that stays stable for
// the duration of fn.
type SnapshotStore interface {
	Store
	WithSnapshot(ctx context.Context, fn func(Store) error) error
}

// Sequential is implemented by stores that cannot serve two queries at once,
// such as a store bound to a single transaction.
type Sequential interface {
	Sequential() bool
}
