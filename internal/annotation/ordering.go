package annotation

import "strings"

// Compare orders a and b by column in the given direction, falling back to
// the id in the same direction so that equal sort keys page stably.
func Compare(column SortColumn, order SortOrder, a, b Annotation) int {
	var c int
	switch column {
	case SortCreated:
		c = a.Created.Compare(b.Created)
	case SortUpdated:
		c = a.Updated.Compare(b.Updated)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if order == OrderDesc {
		return -c
	}
	return c
}

func validSortColumn(column SortColumn) bool {
	switch column {
	case SortCreated, SortUpdated, SortID:
		return true
	default:
		return false
	}
}

func validSortOrder(order SortOrder) bool {
	return order == OrderAsc || order == OrderDesc
}
