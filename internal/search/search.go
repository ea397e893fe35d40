package search

import (
	"context"
	"time"

	"annotate/api/internal/annotation"
)

// Document is the shape of an annotation in the Meilisearch index.
// Timestamps are duplicated as microseconds so they can be sorted on.
type Document struct {
	ID             string   `json:"id"`
	URI            string   `json:"uri"`
	Group          string   `json:"group"`
	Authority      string   `json:"authority"`
	Owner          string   `json:"owner"`
	OwnerLogin     string   `json:"ownerLogin"`
	OwnerAuthority string   `json:"ownerAuthority"`
	Shared         bool     `json:"shared"`
	Refs           []string `json:"refs"`
	IsReply        bool     `json:"isReply"`
	Deleted        bool     `json:"deleted"`
	Created        string   `json:"created"`
	Updated        string   `json:"updated"`
	CreatedTs      int64    `json:"createdTs"`
	UpdatedTs      int64    `json:"updatedTs"`
	Text           string   `json:"text"`
	Tags           []string `json:"tags"`
}

// Lister pages through the system of record for reindexing.
type Lister interface {
	ListAnnotations(ctx context.Context, afterID string, limit int) ([]annotation.Annotation, error)
}

func toDocument(a annotation.Annotation) Document {
	refs := a.References
	if refs == nil {
		refs = []string{}
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:             a.ID,
		URI:            a.Scope.DocumentURI,
		Group:          a.Scope.Group,
		Authority:      a.Scope.Authority,
		Owner:          a.Owner.String(),
		OwnerLogin:     a.Owner.Login,
		OwnerAuthority: a.Owner.Authority,
		Shared:         a.Shared,
		Refs:           refs,
		IsReply:        len(a.References) > 0,
		Deleted:        a.Deleted,
		Created:        a.Created.UTC().Format(time.RFC3339Nano),
		Updated:        a.Updated.UTC().Format(time.RFC3339Nano),
		CreatedTs:      a.Created.UnixMicro(),
		UpdatedTs:      a.Updated.UnixMicro(),
		Text:           a.Text,
		Tags:           tags,
	}
}

func (d Document) toAnnotation() annotation.Annotation {
	a := annotation.Annotation{
		ID:      d.ID,
		Created: time.UnixMicro(d.CreatedTs).UTC(),
		Updated: time.UnixMicro(d.UpdatedTs).UTC(),
		Scope: annotation.Scope{
			DocumentURI: d.URI,
			Group:       d.Group,
			Authority:   d.Authority,
		},
		Owner:   annotation.UserRef{Login: d.OwnerLogin, Authority: d.OwnerAuthority},
		Shared:  d.Shared,
		Deleted: d.Deleted,
		Text:    d.Text,
	}
	if len(d.Refs) > 0 {
		a.References = d.Refs
	}
	if len(d.Tags) > 0 {
		a.Tags = d.Tags
	}
	return a
}
