// Package rbac decides who may read the annotations of a group.
package rbac

type Policy string

const (
	// PolicyOpen groups are readable by any authenticated user.
	PolicyOpen Policy = "open"
	// PolicyMembers groups are readable by their members only.
	PolicyMembers Policy = "members"
)

func CanRead(policy Policy, isMember bool) bool {
	switch policy {
	case PolicyOpen:
		return true
	case PolicyMembers:
		return isMember
	default:
		return false
	}
}

// Normalize maps unknown policies to the restrictive one.
func Normalize(policy string) Policy {
	switch Policy(policy) {
	case PolicyOpen, PolicyMembers:
		return Policy(policy)
	default:
		return PolicyMembers
	}
}
