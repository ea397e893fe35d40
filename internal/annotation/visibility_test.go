package annotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVisible(t *testing.T) {
	owner := UserRef{Login: "alice", Authority: "EdiT"}
	other := UserRef{Login: "bob", Authority: "EdiT"}
	sameLoginOtherAuthority := UserRef{Login: "alice", Authority: "ISC"}

	tests := []struct {
		name      string
		shared    bool
		deleted   bool
		requester UserRef
		want      bool
	}{
		{"shared seen by anyone", true, false, other, true},
		{"private seen by owner", false, false, owner, true},
		{"private hidden from others", false, false, other, false},
		{"private hidden from same login in other authority", false, false, sameLoginOtherAuthority, false},
		{"deleted shared hidden", true, true, other, false},
		{"deleted private hidden from owner", false, true, owner, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Annotation{ID: "a", Owner: owner, Shared: tt.shared, Deleted: tt.deleted}
			assert.Equal(t, tt.want, IsVisible(a, tt.requester))
		})
	}
}

// scriptedStore serves FetchPage from a fixed slice and records offsets.
type scriptedStore struct {
	rows    []Annotation
	offsets []int
	cancel  context.CancelFunc
}

func (s *scriptedStore) FetchPage(_ context.Context, q PageQuery) ([]Annotation, error) {
	s.offsets = append(s.offsets, q.Offset)
	if s.cancel != nil {
		s.cancel()
	}
	if q.Offset >= len(s.rows) {
		return []Annotation{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[q.Offset:end], nil
}

func (s *scriptedStore) CountVisible(context.Context, CountQuery) (int, error) {
	return 0, nil
}

func (s *scriptedStore) FetchRepliesByRootIDs(context.Context, Scope, []string, DeletedFilter) ([]Annotation, error) {
	return nil, nil
}

func (s *scriptedStore) FetchByIDs(context.Context, Scope, []string, DeletedFilter) ([]Annotation, error) {
	return nil, nil
}

func scriptedRows(n int, shared func(i int) bool) []Annotation {
	owner := UserRef{Login: "owner", Authority: "EdiT"}
	base := time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]Annotation, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Annotation{
			ID:      string(rune('a' + i)),
			Created: base.Add(time.Duration(i) * time.Minute),
			Owner:   owner,
			Shared:  shared(i),
		})
	}
	return rows
}

func TestFetchWindowStopsOnShortBatch(t *testing.T) {
	st := &scriptedStore{rows: scriptedRows(7, func(int) bool { return true })}
	w := window{limit: 10, batchSize: 4, requester: UserRef{Login: "x"}}

	rows, meta, err := fetchWindow(context.Background(), st, w)
	require.NoError(t, err)
	assert.Len(t, rows, 7)
	assert.Equal(t, []int{0, 4}, st.offsets)
	assert.Equal(t, 2, meta.Batches)
	assert.Equal(t, 7, meta.RowsExamined)
}

func TestFetchWindowStopsWhenPageIsFull(t *testing.T) {
	st := &scriptedStore{rows: scriptedRows(20, func(i int) bool { return i%2 == 0 })}
	w := window{limit: 3, offset: 2, batchSize: 4, requester: UserRef{Login: "x"}}

	rows, meta, err := fetchWindow(context.Background(), st, w)
	require.NoError(t, err)
	// visible: a c e g i ...; skip a c
	assert.Equal(t, []string{"e", "g", "i"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, []int{0, 4, 8}, st.offsets)
	assert.Equal(t, 3, meta.Batches)
}

func TestFetchWindowChecksContextBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := &scriptedStore{rows: scriptedRows(20, func(int) bool { return false }), cancel: cancel}
	w := window{limit: 5, batchSize: 4, requester: UserRef{Login: "x"}}

	_, meta, err := fetchWindow(ctx, st, w)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{0}, st.offsets)
	assert.Equal(t, 1, meta.Batches)
}

func TestBatchSizeFor(t *testing.T) {
	assert.Equal(t, 50, batchSizeFor(10, 50))
	assert.Equal(t, 120, batchSizeFor(120, 50))
}
