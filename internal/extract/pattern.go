package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/placepin/importer/internal/model"
)

// inlineAddrRe catches one-line "123 Main St, Springfield, IL 62704" forms
// embedded in running text.
var inlineAddrRe = regexp.MustCompile(`(?i)\b(\d+[\w-]*\s+[\w .'-]{0,40}?(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|way|court|ct|circle|cir|place|pl|parkway|pkwy|highway|hwy|terrace|ter|trail|trl|plaza|square|sq|broadway)\b\.?)\s*,\s*([A-Za-z][A-Za-z .'-]*?)\s*,\s*([A-Za-z]{2})\b\s*(\d{5}(?:-\d{4})?)?`)

// patternStrategy is the rule-based last resort: a permissive inline address
// regex over the whole input, catching anything the earlier strategies missed.
type patternStrategy struct{}

func (s *patternStrategy) Name() string { return "pattern" }

func (s *patternStrategy) Extract(_ context.Context, input string) []model.CandidateAddress {
	var out []model.CandidateAddress
	for _, m := range inlineAddrRe.FindAllStringSubmatch(input, -1) {
		street, city, state, postal := m[1], m[2], m[3], m[4]
		if !IsStateToken(state) {
			continue
		}

		normalized := buildNormalized([]string{street}, city, state, postal, "")
		c := model.NewCandidate("", cleanLine(m[0]), normalized)
		c.Parts = model.AddressParts{
			City:       cleanLine(city),
			State:      strings.ToUpper(cleanLine(state)),
			PostalCode: cleanLine(postal),
		}
		out = append(out, c)
	}
	return out
}
