package rbac

import "testing"

func TestCanRead(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		isMember bool
		allow    bool
	}{
		{name: "open outsider", policy: PolicyOpen, isMember: false, allow: true},
		{name: "open member", policy: PolicyOpen, isMember: true, allow: true},
		{name: "members outsider", policy: PolicyMembers, isMember: false, allow: false},
		{name: "members member", policy: PolicyMembers, isMember: true, allow: true},
		{name: "unknown member", policy: Policy("secret"), isMember: true, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.policy, tc.isMember); got != tc.allow {
				t.Fatalf("CanRead(%q, %v) = %v, want %v", tc.policy, tc.isMember, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("open"); got != PolicyOpen {
		t.Fatalf("Normalize(open) = %q", got)
	}
	if got := Normalize(""); got != PolicyMembers {
		t.Fatalf("Normalize(\"\") = %q", got)
	}
	if got := Normalize("OPEN"); got != PolicyMembers {
		t.Fatalf("Normalize(OPEN) = %q", got)
	}
}
