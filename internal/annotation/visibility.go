package annotation

// IsVisible reports whether requester may see a. Deleted annotations are
// never visible; shared ones are visible to everyone in scope and private
// ones only to their owner.
func IsVisible(a Annotation, requester UserRef) bool {
	if a.Deleted {
		return false
	}
	return a.Shared || a.Owner == requester
}

func filterVisible(items []Annotation, requester UserRef) []Annotation {
	visible := make([]Annotation, 0, len(items))
	for _, item := range items {
		if IsVisible(item, requester) {
			visible = append(visible, item)
		}
	}
	return visible
}
