package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotate/api/internal/annotation"
	"annotate/api/internal/annotation/annotationtest"
)

func idsOf(items []annotation.Annotation) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestMemoryStoreFetchPageSkipsRepliesAndDeleted(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)

	items, err := m.FetchPage(context.Background(), annotation.PageQuery{
		Scope:   annotationtest.Scope(),
		Sort:    annotation.SortCreated,
		Order:   annotation.OrderAsc,
		Offset:  15,
		Limit:   6,
		Replies: annotation.TopLevelOnly,
		Deleted: annotation.ExcludeDeleted,
	})
	require.NoError(t, err)

	// 19 is a reply and the deleted parent sits between 18 and 19
	assert.Equal(t, annotationtest.ExtendedIndexes(16, 17, 18, 20, 24, 25), idsOf(items))
}

func TestMemoryStoreFetchPageDescendingTieBreaksOnID(t *testing.T) {
	base := annotationtest.SeveralPages()
	same := base[0].Created
	for i := range base {
		base[i].Created = same
	}
	m := NewMemoryStore(base...)

	items, err := m.FetchPage(context.Background(), annotation.PageQuery{
		Scope: annotationtest.Scope(),
		Sort:  annotation.SortCreated,
		Order: annotation.OrderDesc,
		Limit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id9", "id8", "id7"}, idsOf(items))
}

func TestMemoryStoreFetchPagePastEnd(t *testing.T) {
	m := NewMemoryStore(annotationtest.SeveralPages()...)

	items, err := m.FetchPage(context.Background(), annotation.PageQuery{
		Scope:  annotationtest.Scope(),
		Sort:   annotation.SortCreated,
		Order:  annotation.OrderAsc,
		Offset: 50,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestMemoryStoreCountVisible(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)
	ctx := context.Background()

	tests := []struct {
		name      string
		requester annotation.UserRef
		want      int
	}{
		{name: "owner of private notes", requester: annotationtest.User1, want: 29},
		{name: "owner of private highlight", requester: annotationtest.User2, want: 21},
		{name: "no private notes", requester: annotationtest.User3, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.CountVisible(ctx, annotation.CountQuery{
				Scope:     annotationtest.Scope(),
				Requester: tt.requester,
				Replies:   annotation.TopLevelOnly,
				Deleted:   annotation.ExcludeDeleted,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStoreFetchRepliesByRootIDs(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)

	items, err := m.FetchRepliesByRootIDs(context.Background(), annotationtest.Scope(),
		annotationtest.ExtendedIndexes(18, 20), annotation.ExcludeDeleted)
	require.NoError(t, err)
	assert.Equal(t, annotationtest.ExtendedIndexes(19, 21, 22, 23), idsOf(items))
	assert.Equal(t, []string{annotationtest.ExtendedIDs[18], annotationtest.DeletedParentID}, items[0].References)
}

func TestMemoryStoreOtherScopeIsInvisible(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)
	scope := annotationtest.Scope()
	scope.Group = "other"

	total, err := m.CountVisible(context.Background(), annotation.CountQuery{Scope: scope, Requester: annotationtest.User1})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)
	ctx := context.Background()

	items, err := m.FetchRepliesByRootIDs(ctx, annotationtest.Scope(), annotationtest.ExtendedIndexes(18), annotation.ExcludeDeleted)
	require.NoError(t, err)
	require.Len(t, items, 1)
	items[0].References[0] = "mutated"

	again, err := m.FetchRepliesByRootIDs(ctx, annotationtest.Scope(), annotationtest.ExtendedIndexes(18), annotation.ExcludeDeleted)
	require.NoError(t, err)
	assert.Equal(t, annotationtest.ExtendedIDs[18], again[0].References[0])
}

func TestMemoryStoreMarkDeleted(t *testing.T) {
	m := NewMemoryStore(annotationtest.SeveralPages()...)
	ctx := context.Background()
	q := annotation.CountQuery{Scope: annotationtest.Scope(), Requester: annotationtest.PagesRequester}

	before, err := m.CountVisible(ctx, q)
	require.NoError(t, err)
	require.True(t, m.MarkDeleted("id2"))
	assert.False(t, m.MarkDeleted("missing"))

	after, err := m.CountVisible(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	m := NewMemoryStore(annotationtest.SeveralPages()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FetchPage(ctx, annotation.PageQuery{Scope: annotationtest.Scope(), Limit: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreFetchByIDs(t *testing.T) {
	m := NewMemoryStore(annotationtest.Extended()...)
	ctx := context.Background()
	requested := []string{annotationtest.ExtendedIDs[27], annotationtest.DeletedParentID, "missing", annotationtest.ExtendedIDs[27], annotationtest.ExtendedIDs[28]}

	items, err := m.FetchByIDs(ctx, annotationtest.Scope(), requested, annotation.ExcludeDeleted)
	require.NoError(t, err)
	assert.Equal(t, annotationtest.ExtendedIndexes(27, 28), idsOf(items))

	items, err = m.FetchByIDs(ctx, annotationtest.Scope(), requested, annotation.IncludeDeleted)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	other := annotationtest.Scope()
	other.DocumentURI = "uri://LEOS/doc2"
	items, err = m.FetchByIDs(ctx, other, requested, annotation.IncludeDeleted)
	require.NoError(t, err)
	assert.Empty(t, items)
}
