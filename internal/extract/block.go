package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/placepin/importer/internal/model"
)

// noiseLineRe matches lines that office-directory pages wrap around their
// addresses: phone/fax labels, mail labels, navigation, and boilerplate.
var noiseLineRe = regexp.MustCompile(`(?i)^(` +
	`(phone|tel|telephone|fax|toll[- ]free|email|e-mail|hours|map|directions)\b.*` +
	`|(home|about( us)?|contact( us)?|services|locations|careers|news|search|menu|login|sign in|privacy policy|terms of (use|service))` +
	`|(copyright|©|all rights reserved).*` +
	`|https?://\S+` +
	`|\(?\+?1?[-. )]*\d{3}[-. )]*\d{3}[-. ]*\d{4}` +
	`)$`)

// blockStrategy scans line-by-line for "header line, street line, optional
// suite line, city/state/zip line" blocks typical of office-directory pages.
type blockStrategy struct{}

func (s *blockStrategy) Name() string { return "block" }

func (s *blockStrategy) Extract(_ context.Context, input string) []model.CandidateAddress {
	lines := stripNoise(splitLines(input))

	var out []model.CandidateAddress
	for i := 0; i < len(lines); i++ {
		if !streetLineRe.MatchString(lines[i]) {
			continue
		}

		displayName := ""
		if i > 0 && looksLikeHeader(lines[i-1]) {
			displayName = lines[i-1]
		}

		c, consumed, ok := assembleBlock(lines, i, displayName)
		if !ok {
			continue
		}
		out = append(out, c)
		i += consumed - 1
	}
	return out
}

// assembleBlock builds a candidate from a street line at index i plus the
// suite/city/zip/country lines that follow it. Returns the number of lines
// consumed starting at i.
func assembleBlock(lines []string, i int, displayName string) (model.CandidateAddress, int, bool) {
	streetLines := []string{lines[i]}
	j := i + 1

	// Optional secondary-unit lines.
	for j < len(lines) && suiteLineRe.MatchString(lines[j]) {
		streetLines = append(streetLines, lines[j])
		j++
	}

	var city, state, postal, country string

	if j < len(lines) {
		if m := cityStateLineRe.FindStringSubmatch(lines[j]); m != nil && IsStateToken(m[2]) {
			city, state, postal = m[1], m[2], m[3]
			j++
		}
	}

	// ZIP may sit on its own line below the city/state line.
	if postal == "" && city != "" && j < len(lines) && zipOnlyLineRe.MatchString(lines[j]) {
		postal = lines[j]
		j++
	}

	if j < len(lines) && countryLineRe.MatchString(lines[j]) {
		country = lines[j]
		j++
	}

	// A street line with no locality context is too weak on its own.
	if city == "" && postal == "" {
		return model.CandidateAddress{}, 0, false
	}

	var rawLines []string
	if displayName != "" {
		rawLines = append(rawLines, displayName)
	}
	rawLines = append(rawLines, lines[i:j]...)

	normalized := buildNormalized(streetLines, city, state, postal, country)
	c := model.NewCandidate(displayName, strings.Join(rawLines, "\n"), normalized)
	c.Parts = model.AddressParts{
		City:       cleanLine(city),
		State:      strings.ToUpper(cleanLine(state)),
		PostalCode: cleanLine(postal),
	}
	return c, j - i, true
}

// looksLikeHeader reports whether a line reads like an office/location name
// rather than part of an address.
func looksLikeHeader(line string) bool {
	if len(line) > 80 || line == "" {
		return false
	}
	if streetLineRe.MatchString(line) || suiteLineRe.MatchString(line) ||
		zipOnlyLineRe.MatchString(line) || countryLineRe.MatchString(line) {
		return false
	}
	if m := cityStateLineRe.FindStringSubmatch(line); m != nil && IsStateToken(m[2]) {
		return false
	}
	first := line[0]
	if first >= '0' && first <= '9' {
		return false
	}
	// Needs at least one letter.
	return strings.IndexFunc(line, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
	}) >= 0
}

// stripNoise drops known boilerplate lines so they cannot interrupt a block.
func stripNoise(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		if noiseLineRe.MatchString(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}
