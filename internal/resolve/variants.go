package resolve

import (
	"regexp"
	"strings"

	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/pkg/geocode"
)

var (
	// cityStateZipRe finds a "City, ST" or "City, ST 12345" line inside a
	// normalized address block.
	cityStateZipRe = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z .'-]*?),\s*([A-Za-z]{2})(?:[, ]\s*(\d{5}(?:-\d{4})?))?$`)

	// unitTokenRe matches secondary-unit designators that confuse geocoders.
	unitTokenRe = regexp.MustCompile(`(?i)[, ]*\b(suite|ste|floor|fl|unit|apt|apartment|room|rm|bldg|building|#)\.?\s*[\w-]+`)

	// phoneLabelRe matches phone/fax fragments.
	phoneLabelRe = regexp.MustCompile(`(?i)\b(phone|tel|telephone|fax)\b:?.*`)

	// zipPlus4Re collapses ZIP+4 to the 5-digit form.
	zipPlus4Re = regexp.MustCompile(`\b(\d{5})-\d{4}\b`)

	// trailingCountryRe drops a trailing country name.
	trailingCountryRe = regexp.MustCompile(`(?i)[, ]*\b(united states( of america)?|u\.?s\.?a?\.?)\s*$`)
)

// queryPlan holds the geocoding attempts for one candidate, most specific
// first.
type queryPlan struct {
	structured *geocode.AddressInput
	queries    []string
}

// buildPlan derives the query plan from a candidate: a structured address
// when street, city, state, and postal are all known, then derived
// "street, city, state postal" strings, then cleaned free-text variants.
func buildPlan(c model.CandidateAddress) queryPlan {
	var plan queryPlan

	city, state, postal := c.Parts.City, c.Parts.State, c.Parts.PostalCode
	if city == "" || state == "" {
		// Best-effort recovery from the normalized text.
		if m := cityStateZipRe.FindStringSubmatch(c.NormalizedText); m != nil {
			city, state = m[1], m[2]
			if postal == "" {
				postal = m[3]
			}
		}
	}

	street, country := streetAndCountry(c.NormalizedText, city)

	if street != "" && city != "" && state != "" && postal != "" {
		plan.structured = &geocode.AddressInput{
			Street:  street,
			City:    city,
			State:   state,
			ZipCode: postal,
			Country: country,
		}
	}

	if street != "" && city != "" && state != "" {
		if postal != "" {
			plan.add(street + ", " + city + ", " + state + " " + postal)
		}
		plan.add(street + ", " + city + ", " + state)
	}

	plan.add(cleanFreeText(c.NormalizedText))
	plan.add(cleanFreeText(c.RawText))

	return plan
}

// add appends a query variant, skipping blanks and case-insensitive
// duplicates while preserving order.
func (p *queryPlan) add(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	for _, existing := range p.queries {
		if strings.EqualFold(existing, q) {
			return
		}
	}
	p.queries = append(p.queries, q)
}

// streetAndCountry picks the leading street line and any trailing country
// line out of the normalized multi-line form.
func streetAndCountry(normalized, city string) (street, country string) {
	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if lower == "united states" || lower == "united states of america" ||
			lower == "usa" || lower == "u.s.a." || lower == "u.s." {
			country = line
			continue
		}
		if cityStateZipRe.MatchString(line) {
			continue
		}
		if city != "" && strings.HasPrefix(lower, strings.ToLower(city)) {
			continue
		}
		if street == "" {
			street = line
		}
	}
	return street, country
}

// cleanFreeText flattens an address block into a single query string with
// geocoder-hostile noise removed: phone labels, unit designators, ZIP+4
// suffixes, and trailing country names.
func cleanFreeText(text string) string {
	text = phoneLabelRe.ReplaceAllString(text, "")
	text = unitTokenRe.ReplaceAllString(text, "")
	text = zipPlus4Re.ReplaceAllString(text, "$1")

	var parts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), ",;")
		if line != "" {
			parts = append(parts, line)
		}
	}
	flat := strings.Join(parts, ", ")
	flat = trailingCountryRe.ReplaceAllString(flat, "")
	return strings.TrimSpace(flat)
}
