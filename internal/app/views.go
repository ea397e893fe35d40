package app

import (
	"time"

	"annotate/api/internal/annotation"
)

// annotationView is the wire shape of an annotation.
type annotationView struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
	URI        string    `json:"uri"`
	Group      string    `json:"group"`
	User       string    `json:"user"`
	Shared     bool      `json:"shared"`
	References []string  `json:"references,omitempty"`
	Text       string    `json:"text"`
	Tags       []string  `json:"tags"`
}

func userAccount(user annotation.UserRef) string {
	return "acct:" + user.String()
}

func toView(a annotation.Annotation) annotationView {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return annotationView{
		ID:         a.ID,
		Created:    a.Created.UTC(),
		Updated:    a.Updated.UTC(),
		URI:        a.Scope.DocumentURI,
		Group:      a.Scope.Group,
		User:       userAccount(a.Owner),
		Shared:     a.Shared,
		References: a.References,
		Text:       a.Text,
		Tags:       tags,
	}
}

func toViews(items []annotation.Annotation) []annotationView {
	views := make([]annotationView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	return views
}

// combinedView carries top-level annotations and replies merged in sort
// order.
type combinedView struct {
	Total int              `json:"total"`
	Rows  []annotationView `json:"rows"`
}

type separateView struct {
	Total   int              `json:"total"`
	Rows    []annotationView `json:"rows"`
	Replies []annotationView `json:"replies"`
}

func toSearchView(resp annotation.Response) any {
	if resp.Separate {
		return separateView{Total: resp.Total, Rows: toViews(resp.Rows), Replies: toViews(resp.Replies)}
	}
	return combinedView{Total: resp.Total, Rows: toViews(resp.Rows)}
}
