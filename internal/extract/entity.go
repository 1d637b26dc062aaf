package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/placepin/importer/internal/model"
)

// orgSuffixRe tags lines ending in an organization/place designator.
var orgSuffixRe = regexp.MustCompile(`(?i)\b(inc|llc|llp|ltd|corp|co|company|group|associates|partners|office|offices|center|centre|clinic|hospital|bank|museum|library|university|college|school|hotel|tower|plaza|campus|headquarters|hq)\.?$`)

// entityStrategy tags lines that read like place or organization names and
// scans a fixed window of surrounding lines for address-shaped sequences,
// binding the entity as the candidate's display name.
type entityStrategy struct {
	window int
}

func (s *entityStrategy) Name() string { return "entity" }

func (s *entityStrategy) Extract(_ context.Context, input string) []model.CandidateAddress {
	window := s.window
	if window <= 0 {
		window = 5
	}

	lines := stripNoise(splitLines(input))

	var out []model.CandidateAddress
	for i, line := range lines {
		if !looksLikeEntity(line) {
			continue
		}

		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window
		if hi >= len(lines) {
			hi = len(lines) - 1
		}

		for j := lo; j <= hi; j++ {
			if j == i || !streetLineRe.MatchString(lines[j]) {
				continue
			}
			if c, _, ok := assembleBlock(lines, j, line); ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// looksLikeEntity reports whether a line reads like a named place or
// organization: an org-suffixed name, or a short title-cased phrase.
func looksLikeEntity(line string) bool {
	if len(line) > 60 || !looksLikeHeader(line) {
		return false
	}
	if orgSuffixRe.MatchString(line) {
		return true
	}

	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 6 {
		return false
	}
	titled := 0
	for _, w := range words {
		r := w[0]
		if r >= 'A' && r <= 'Z' {
			titled++
		}
	}
	return titled >= len(words)-1 // allow one lowercase connective
}
