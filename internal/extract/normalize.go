// Package extract turns raw text and markup into deduplicated address
// candidates via an ordered chain of strategies.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// abbrToState maps lowercase state abbreviations to lowercase full names.
var abbrToState = map[string]string{
	"al": "alabama", "ak": "alaska", "az": "arizona", "ar": "arkansas",
	"ca": "california", "co": "colorado", "ct": "connecticut", "de": "delaware",
	"fl": "florida", "ga": "georgia", "hi": "hawaii", "id": "idaho",
	"il": "illinois", "in": "indiana", "ia": "iowa", "ks": "kansas",
	"ky": "kentucky", "la": "louisiana", "me": "maine", "md": "maryland",
	"ma": "massachusetts", "mi": "michigan", "mn": "minnesota", "ms": "mississippi",
	"mo": "missouri", "mt": "montana", "ne": "nebraska", "nv": "nevada",
	"nh": "new hampshire", "nj": "new jersey", "nm": "new mexico", "ny": "new york",
	"nc": "north carolina", "nd": "north dakota", "oh": "ohio", "ok": "oklahoma",
	"or": "oregon", "pa": "pennsylvania", "ri": "rhode island", "sc": "south carolina",
	"sd": "south dakota", "tn": "tennessee", "tx": "texas", "ut": "utah",
	"vt": "vermont", "va": "virginia", "wa": "washington", "wv": "west virginia",
	"wi": "wisconsin", "wy": "wyoming", "dc": "district of columbia",
}

// stateToAbbr maps lowercase full names to lowercase abbreviations.
var stateToAbbr = func() map[string]string {
	m := make(map[string]string, len(abbrToState))
	for abbr, full := range abbrToState {
		m[full] = abbr
	}
	return m
}()

// IsStateToken reports whether s is a US state abbreviation or full name.
func IsStateToken(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if _, ok := abbrToState[lower]; ok {
		return true
	}
	_, ok := stateToAbbr[lower]
	return ok
}

var (
	// cityStateLineRe matches "City, ST" / "City, ST 12345" / "City, ST, 12345-6789".
	cityStateLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z .'-]*?),\s*([A-Za-z]{2})(?:[, ]\s*(\d{5}(?:-\d{4})?))?\.?$`)

	// zipOnlyLineRe matches a bare ZIP or ZIP+4 line.
	zipOnlyLineRe = regexp.MustCompile(`^(\d{5})(?:-\d{4})?$`)

	// zipTokenRe matches a 5-digit postal token anywhere.
	zipTokenRe = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)

	// streetLineRe matches "420 North 20th Street" style lines: a leading
	// street number followed by a street-type token.
	streetLineRe = regexp.MustCompile(`(?i)^\d+[\w-]*\s+[\w .'-]*\b(street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|way|court|ct|circle|cir|place|pl|parkway|pkwy|highway|hwy|terrace|ter|trail|trl|plaza|square|sq|broadway)\b\.?,?\s*$`)

	// suiteLineRe matches secondary-unit lines.
	suiteLineRe = regexp.MustCompile(`(?i)^(suite|ste|floor|fl|unit|apt|apartment|room|rm|bldg|building|#)\.?\s*[\w-]+\.?$`)

	// countryLineRe matches trailing country lines we fold into the canonical form.
	countryLineRe = regexp.MustCompile(`(?i)^(united states( of america)?|u\.?s\.?a?\.?|canada|mexico)\.?$`)
)

// collapseSpaces squashes runs of whitespace into single spaces and trims.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanLine NFC-normalizes a line, collapses whitespace, and strips trailing
// commas and semicolons.
func cleanLine(s string) string {
	s = norm.NFC.String(s)
	s = collapseSpaces(s)
	return strings.TrimRight(s, ",;")
}

// buildNormalized assembles the canonical multi-line address form used as
// the dedup key: street lines, then "city, state postal", then country.
// The same shape model.GeneratedPlaceRecord.AddressText produces, so
// template-sourced and extracted candidates dedup against each other.
func buildNormalized(streetLines []string, city, state, postal, country string) string {
	var lines []string
	for _, s := range streetLines {
		if s = cleanLine(s); s != "" {
			lines = append(lines, s)
		}
	}

	cityLine := cleanLine(city)
	tail := collapseSpaces(cleanLine(state) + " " + cleanLine(postal))
	if tail != "" {
		if cityLine != "" {
			cityLine += ", " + tail
		} else {
			cityLine = tail
		}
	}
	if cityLine != "" {
		lines = append(lines, cityLine)
	}

	if c := cleanLine(country); c != "" {
		lines = append(lines, c)
	}

	return strings.Join(lines, "\n")
}

// splitLines splits raw input into cleaned, non-empty lines.
func splitLines(input string) []string {
	raw := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = cleanLine(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
