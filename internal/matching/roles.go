package matching

import (
	"strings"
	"unicode"
)

// RoleCategory is the coarse bucket a free-text role falls into.
type RoleCategory string

const (
	RoleUnknown  RoleCategory = ""
	RoleBuilder  RoleCategory = "builder"
	RoleDesign   RoleCategory = "design"
	RoleProduct  RoleCategory = "product"
	RoleFounder  RoleCategory = "founder"
	RoleInvestor RoleCategory = "investor"
)

// roleKeywords is checked in order against each word of the role; a keyword
// matches a word it prefixes. The first category that matches wins, so
// "product designer" is design rather than product.
var roleKeywords = []struct {
	category RoleCategory
	keywords []string
}{
	{RoleDesign, []string{"design", "ux", "ui", "illustrat"}},
	{RoleInvestor, []string{"investor", "vc", "venture", "angel"}},
	{RoleFounder, []string{"founder", "ceo", "owner"}},
	{RoleProduct, []string{"product", "pm"}},
	{RoleBuilder, []string{"builder", "engineer", "dev", "programmer", "cto", "architect", "hacker"}},
}

var complementary = map[RoleCategory][]RoleCategory{
	RoleBuilder:  {RoleDesign, RoleProduct},
	RoleDesign:   {RoleBuilder, RoleProduct},
	RoleProduct:  {RoleBuilder, RoleDesign},
	RoleFounder:  {RoleInvestor},
	RoleInvestor: {RoleFounder},
}

// ClassifyRole maps a free-text role to a category.
func ClassifyRole(role string) RoleCategory {
	words := strings.FieldsFunc(strings.ToLower(role), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, rk := range roleKeywords {
		for _, kw := range rk.keywords {
			for _, w := range words {
				if strings.HasPrefix(w, kw) {
					return rk.category
				}
			}
		}
	}
	return RoleUnknown
}

// Complementary reports whether two categories pair up. The relation is symmetric.
func Complementary(a, b RoleCategory) bool {
	for _, c := range complementary[a] {
		if c == b {
			return true
		}
	}
	return false
}

// complementsOf lists the categories that pair with c.
func complementsOf(c RoleCategory) []RoleCategory { return complementary[c] }
