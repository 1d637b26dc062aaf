// Package validate screens AI- and template-generated place records for
// completeness before they enter the import pipeline.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/placepin/importer/internal/model"
)

// placeholderTokens are values generators emit when they have no real data.
var placeholderTokens = map[string]struct{}{
	"n/a": {}, "na": {}, "unknown": {}, "tbd": {}, "none": {}, "null": {},
}

var (
	usPostalRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	alnumRe    = regexp.MustCompile(`[0-9A-Za-z]`)
	digitRe    = regexp.MustCompile(`\d`)
)

func isPlaceholder(s string) bool {
	_, ok := placeholderTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Record checks a generated place record, returning a non-empty rejection
// reason when it fails. Rules are fail-closed: anything suspicious rejects.
func Record(r model.GeneratedPlaceRecord) string {
	street := strings.TrimSpace(r.Street1)
	switch {
	case street == "":
		return "street1 is empty"
	case isPlaceholder(street):
		return "street1 is a placeholder"
	case !digitRe.MatchString(street):
		return "street1 has no street number"
	}

	city := strings.TrimSpace(r.City)
	switch {
	case city == "":
		return "city is empty"
	case isPlaceholder(city):
		return "city is a placeholder"
	}

	if state := strings.TrimSpace(r.State); state != "" {
		if isPlaceholder(state) {
			return "state is a placeholder"
		}
		if len(state) < 2 {
			return "state is too short"
		}
	}

	if postal := strings.TrimSpace(r.PostalCode); postal != "" {
		if isPlaceholder(postal) {
			return "postal code is a placeholder"
		}
		// Non-US postal codes pass as long as they carry real content.
		if !usPostalRe.MatchString(postal) && !alnumRe.MatchString(postal) {
			return "postal code is malformed"
		}
	}

	if country := strings.TrimSpace(r.Country); country != "" && isPlaceholder(country) {
		return "country is a placeholder"
	}

	return ""
}

// Batch validates records in order, converting the valid ones into pending
// candidates. Each rejection is logged with the record name and reason; a
// summary line reports the batch outcome. Never fails the whole batch.
func Batch(records []model.GeneratedPlaceRecord) []model.CandidateAddress {
	log := zap.L().With(zap.String("component", "validate"))

	candidates := make([]model.CandidateAddress, 0, len(records))
	rejected := 0
	for _, r := range records {
		if reason := Record(r); reason != "" {
			rejected++
			log.Info("rejected generated record",
				zap.String("name", r.Name),
				zap.String("reason", reason),
			)
			continue
		}
		candidates = append(candidates, r.Candidate())
	}

	log.Info(fmt.Sprintf("validated %d of %d generated records", len(candidates), len(records)),
		zap.Int("accepted", len(candidates)),
		zap.Int("rejected", rejected),
	)
	return candidates
}
