package matching

import (
	"sort"

	"github.com/oggyb/event-network/internal/db"
)

// candidateIndex finds, for each profile, the others it could score above 0
// with: a shared interest, the same company or a complementary role.
// Pairs outside that set always score 0, so skipping them never changes
// which pairs survive a positive threshold.
type candidateIndex struct {
	byInterest map[string][]int
	byCompany  map[string][]int
	byRole     map[RoleCategory][]int
}

func newCandidateIndex(profiles []db.Profile) *candidateIndex {
	idx := &candidateIndex{
		byInterest: make(map[string][]int),
		byCompany:  make(map[string][]int),
		byRole:     make(map[RoleCategory][]int),
	}
	for i, p := range profiles {
		seen := make(map[string]struct{}, len(p.Interests))
		for _, in := range p.Interests {
			n := normalize(in)
			if _, dup := seen[n]; dup || n == "" {
				continue
			}
			seen[n] = struct{}{}
			idx.byInterest[n] = append(idx.byInterest[n], i)
		}
		if c := normalize(p.Company); c != "" {
			idx.byCompany[c] = append(idx.byCompany[c], i)
		}
		if r := ClassifyRole(p.Role); r != RoleUnknown {
			idx.byRole[r] = append(idx.byRole[r], i)
		}
	}
	return idx
}

// candidates returns the sorted indexes that may pair with profiles[i], excluding i.
func (idx *candidateIndex) candidates(i int, p db.Profile) []int {
	set := make(map[int]struct{})
	add := func(list []int) {
		for _, j := range list {
			if j != i {
				set[j] = struct{}{}
			}
		}
	}

	for _, in := range p.Interests {
		add(idx.byInterest[normalize(in)])
	}
	if c := normalize(p.Company); c != "" {
		add(idx.byCompany[c])
	}
	for _, comp := range complementsOf(ClassifyRole(p.Role)) {
		add(idx.byRole[comp])
	}

	out := make([]int, 0, len(set))
	for j := range set {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}
