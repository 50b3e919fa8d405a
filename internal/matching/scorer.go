package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oggyb/event-network/internal/db"
	svcErr "github.com/oggyb/event-network/internal/errors"
)

const (
	interestPoints = 15
	interestCap    = 60
	companyPoints  = 20
	rolePoints     = 25
	maxScore       = 100

	// DefaultThreshold is the minimum score a pair needs to be persisted.
	DefaultThreshold = 40
)

// ScoreResult is the outcome of scoring a viewer against another attendee.
type ScoreResult struct {
	Score   int
	Reasons []string
}

// Score rates how worthwhile an introduction between viewer and other is.
//
// Scoring:
//   - 15 points per shared interest, capped at 60.
//   - 20 points when both work at the same (non-empty) company.
//   - 25 points when the roles are complementary.
//   - Total capped at 100.
//
// The score does not depend on argument order; reasons are phrased from the
// viewer's side and appear in the order interests, company, role.
// Malformed profiles (zero id, same id, blank interest) return an Invalid error.
func Score(viewer, other db.Profile) (ScoreResult, error) {
	if err := validate(viewer, other); err != nil {
		return ScoreResult{}, err
	}

	var res ScoreResult

	shared := sharedInterests(viewer.Interests, other.Interests)
	if len(shared) > 0 {
		res.Score += min(len(shared)*interestPoints, interestCap)
		res.Reasons = append(res.Reasons, "You both like "+joinList(shared))
	}

	if sameCompany(viewer.Company, other.Company) {
		res.Score += companyPoints
		res.Reasons = append(res.Reasons, fmt.Sprintf("They also work at %s", strings.TrimSpace(other.Company)))
	}

	vr, or := ClassifyRole(viewer.Role), ClassifyRole(other.Role)
	if Complementary(vr, or) {
		res.Score += rolePoints
		res.Reasons = append(res.Reasons, fmt.Sprintf("Their %s background complements your %s role", or, vr))
	}

	res.Score = min(res.Score, maxScore)
	return res, nil
}

func validate(a, b db.Profile) error {
	const op = "matching.score"
	if a.ID == 0 || b.ID == 0 {
		return svcErr.Invalid(op, "profile id must be set")
	}
	if a.ID == b.ID {
		return svcErr.Invalid(op, fmt.Sprintf("cannot score profile %d against itself", a.ID))
	}
	for _, p := range []db.Profile{a, b} {
		for _, in := range p.Interests {
			if normalize(in) == "" {
				return svcErr.Invalid(op, fmt.Sprintf("profile %d has a blank interest", p.ID))
			}
		}
	}
	return nil
}

// sharedInterests returns the intersection of a and b, normalized and sorted.
func sharedInterests(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, in := range a {
		set[normalize(in)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(b))
	var out []string
	for _, in := range b {
		n := normalize(in)
		if _, ok := set[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sameCompany(a, b string) bool {
	a, b = normalize(a), normalize(b)
	return a != "" && a == b
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// joinList renders "a", "a and b", "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
