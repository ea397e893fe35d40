package annotation

import (
	"context"
	"fmt"
)

// countTotal counts visible top-level annotations in scope. Visibility is
// pushed into the store here since no ordering is involved.
func countTotal(ctx context.Context, st Store, scope Scope, requester UserRef) (int, error) {
	total, err := st.CountVisible(ctx, CountQuery{
		Scope:     scope,
		Requester: requester,
		Replies:   TopLevelOnly,
		Deleted:   ExcludeDeleted,
	})
	if err != nil {
		return 0, fmt.Errorf("count visible: %w", err)
	}
	return total, nil
}
