// Package annotationtest provides annotation datasets shared by the engine,
// store and HTTP tests.
package annotationtest

import (
	"fmt"
	"time"

	"annotate/api/internal/annotation"
)

const (
	DocumentURI = "uri://LEOS/doc1"
	WorldGroup  = "__world__"
	Authority   = "EdiT"
)

var (
	User1 = annotation.UserRef{Login: "user1", Authority: Authority}
	User2 = annotation.UserRef{Login: "user2", Authority: Authority}
	User3 = annotation.UserRef{Login: "user3", Authority: Authority}
)

// Scope is the scope every dataset annotation is filed under.
func Scope() annotation.Scope {
	return annotation.Scope{DocumentURI: DocumentURI, Group: WorldGroup, Authority: Authority}
}

// ExtendedIDs holds the ids of the extended dataset, indexed from 1.
var ExtendedIDs = [...]string{
	"",
	"dDx4SEAjR-C4TR0J8s9IaQ", "E4-LjixbS0CwNEPu9EDfjA", "cUkva_1MSVaLXGIHOEVBHA", "imMyuSbeSoetO2-_cMfnrQ",
	"gD8BHOs9R--PHDygxS4prg", "SMEMXl4gSbW0j1Gj3SLQ3w", "8Z16HBetT26H6NybYaI7Yg", "IaozutxkRUq8Nthrz1EmvQ",
	"AeAJ6jX1RjOv4OpOfFEZdw", "jVtHuWFsQiOGD8Vg0GMnVQ", "x8USFnmzTwaxBFFI02uKWA", "cB_aTYVCTfKkwKknBndUeQ",
	"CToFE33XQiOT0KdemkBeLA", "kQi4OwhBSFKUe9zu9NvTAA", "6LUUKoRoQWqcFTTwEAcRaQ", "yVhIPm4sT7S8udmfyEvLTg",
	"RB0WNYljQ2meOre2WFrzpw", "4rzazIXwQUK2kYkYGwonAw", "XVz5ED6cTNOyLDZNLc-eOg", "VX12QSnGQuiHCTiLGfbikA",
	"WFCffWcLQYuUYojZuBkWrg", "6SzIQC-CS5GV9NkCCvnPUQ", "_N6ZA5v0SC2vHz5BGIxWKA", "FnAOJPctQzS7AdarWxmVqQ",
	"cpXc7X_JSnC7WXAU_ZMPsQ", "Zi6d7Q1fQd2-RZFUlmsdWg", "rOLKWGlRQrmWgFPXA18_Ww", "fpvfFb83RNewptNHxXgYiw",
	"qxwnazYgQ3-oYLzRaOCz0w", "SdAx2AeHQE2NBMjcIcV5DA", "2NTBWRxhTM2EkhzId_r1aA", "toDnbyCSRaSiW5aY6O9Jgw",
	"H8yF15JFSxWcjhMCljMqOg", "1NMs9Xc9Tmiui9rHDi7c6A", "OtWIOBKyRMeBm9oOrMzatA", "TL_s-VviQeecIgEdStr3qg",
}

// DeletedParentID is a deleted annotation that reply 19 still references.
const DeletedParentID = "DFUah4X2SHahcu6bjgQ8Aw"

var extendedBase = time.Date(2017, time.December, 22, 11, 40, 57, 0, time.UTC)

// Extended returns 36 live annotations and one deleted one. Items 19, 21,
// 22, 23, 28 and 35 are replies. User1 keeps 5-9, 24, 25, 27 and 33 private
// and User2 keeps 29 private, so User1 sees 29 top-level annotations, User2
// 21 and User3 20. Reply 28 is shared but hangs under User1's private 27.
func Extended() []annotation.Annotation {
	type entry struct {
		owner  annotation.UserRef
		shared bool
		refs   []int
	}
	entries := map[int]entry{
		19: {User1, true, []int{18}},
		21: {User1, true, []int{20}},
		22: {User1, true, []int{20}},
		23: {User1, true, []int{20, 21}},
		24: {User1, false, nil},
		25: {User1, false, nil},
		26: {User2, true, nil},
		27: {User1, false, nil},
		28: {User1, true, []int{27}},
		29: {User2, false, nil},
		30: {User2, true, nil},
		31: {User2, true, nil},
		32: {User2, true, nil},
		33: {User1, false, nil},
		34: {User3, true, nil},
		35: {User3, true, []int{26}},
		36: {User3, true, nil},
	}
	for i := 5; i <= 9; i++ {
		entries[i] = entry{User1, false, nil}
	}

	items := make([]annotation.Annotation, 0, len(ExtendedIDs))
	for i := 1; i < len(ExtendedIDs); i++ {
		s, ok := entries[i]
		if !ok {
			s = entry{User1, true, nil}
		}
		created := extendedBase.Add(time.Duration(i-1) * 24 * time.Hour)
		a := annotation.Annotation{
			ID:      ExtendedIDs[i],
			Created: created,
			Updated: created.Add(time.Hour),
			Scope:   Scope(),
			Owner:   s.owner,
			Shared:  s.shared,
			Text:    fmt.Sprintf("annotation %d", i),
		}
		for _, ref := range s.refs {
			a.References = append(a.References, ExtendedIDs[ref])
		}
		if i == 19 {
			a.References = append(a.References, DeletedParentID)
		}
		items = append(items, a)
	}

	deletedAt := extendedBase.Add(17*24*time.Hour + time.Hour)
	items = append(items, annotation.Annotation{
		ID:      DeletedParentID,
		Created: deletedAt,
		Updated: deletedAt,
		Scope:   Scope(),
		Owner:   User1,
		Shared:  true,
		Deleted: true,
		Text:    "removed",
	})
	return items
}

// ExtendedIndexes maps 1-based positions in ExtendedIDs to ids.
func ExtendedIndexes(positions ...int) []string {
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		ids = append(ids, ExtendedIDs[p])
	}
	return ids
}

var (
	PagesOwner     = annotation.UserRef{Login: "userLogin1", Authority: Authority}
	PagesRequester = annotation.UserRef{Login: "userLogin2", Authority: Authority}
)

// SeveralPages returns twelve top-level annotations of PagesOwner of which
// only id1, id2, id7, id11 and id12 are shared.
func SeveralPages() []annotation.Annotation {
	public := map[int]bool{1: true, 2: true, 7: true, 11: true, 12: true}
	base := time.Date(2017, time.December, 22, 10, 0, 0, 0, time.UTC)

	items := make([]annotation.Annotation, 0, 12)
	for i := 1; i <= 12; i++ {
		created := base.Add(time.Duration(i-1) * 24 * time.Hour)
		if i > 10 {
			created = time.Date(2087, time.January, i-10, 10, 0, 0, 0, time.UTC)
		}
		items = append(items, annotation.Annotation{
			ID:      fmt.Sprintf("id%d", i),
			Created: created,
			Updated: created,
			Scope:   Scope(),
			Owner:   PagesOwner,
			Shared:  public[i],
			Text:    fmt.Sprintf("note %d", i),
		})
	}
	return items
}
