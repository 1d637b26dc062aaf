package model

import "strings"

// GeneratedPlaceRecord is a structured place produced by an AI or template
// collaborator, awaiting validation. Transient: converted 1:1 into a
// CandidateAddress on success or dropped with a logged reason.
type GeneratedPlaceRecord struct {
	Name       string `yaml:"name" json:"name"`
	Street1    string `yaml:"street1" json:"street1"`
	Street2    string `yaml:"street2,omitempty" json:"street2,omitempty"`
	City       string `yaml:"city" json:"city"`
	State      string `yaml:"state,omitempty" json:"state,omitempty"`
	PostalCode string `yaml:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country    string `yaml:"country,omitempty" json:"country,omitempty"`
}

// AddressText renders the record as the canonical multi-line address form:
// street lines, then "city, state postal", then country.
func (r GeneratedPlaceRecord) AddressText() string {
	var lines []string
	if s := strings.TrimSpace(r.Street1); s != "" {
		lines = append(lines, s)
	}
	if s := strings.TrimSpace(r.Street2); s != "" {
		lines = append(lines, s)
	}

	cityLine := strings.TrimSpace(r.City)
	tail := strings.TrimSpace(strings.TrimSpace(r.State) + " " + strings.TrimSpace(r.PostalCode))
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

	if c := strings.TrimSpace(r.Country); c != "" {
		lines = append(lines, c)
	}

	return strings.Join(lines, "\n")
}

// Candidate converts a validated record into a pending CandidateAddress,
// preserving the record name as the display name.
func (r GeneratedPlaceRecord) Candidate() CandidateAddress {
	text := r.AddressText()
	c := NewCandidate(strings.TrimSpace(r.Name), text, text)
	c.Parts = AddressParts{
		City:       strings.TrimSpace(r.City),
		State:      strings.TrimSpace(r.State),
		PostalCode: strings.TrimSpace(r.PostalCode),
	}
	return c
}
