// Package model holds the shared data types for the address import pipeline.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// ResolutionStatus tracks a candidate's progress through geocoding.
type ResolutionStatus string

const (
	StatusPending   ResolutionStatus = "pending"
	StatusResolving ResolutionStatus = "resolving"
	StatusResolved  ResolutionStatus = "resolved"
	StatusFailed    ResolutionStatus = "failed"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressParts holds optional parsed components of a candidate address.
type AddressParts struct {
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// CandidateAddress is an extracted, not-yet-confirmed postal address awaiting
// geocoding and user review. NormalizedText is the canonical multi-line form
// and the sole dedup key (case-insensitive, trimmed).
type CandidateAddress struct {
	ID             string           `json:"id"`
	DisplayName    string           `json:"display_name,omitempty"`
	RawText        string           `json:"raw_text"`
	NormalizedText string           `json:"normalized_text"`
	Parts          AddressParts     `json:"parts"`
	Coordinate     *Coordinate      `json:"coordinate,omitempty"`
	Status         ResolutionStatus `json:"status"`
}

// NewCandidate creates a pending candidate with a fresh stable ID.
func NewCandidate(displayName, rawText, normalizedText string) CandidateAddress {
	return CandidateAddress{
		ID:             uuid.NewString(),
		DisplayName:    displayName,
		RawText:        rawText,
		NormalizedText: normalizedText,
		Status:         StatusPending,
	}
}

// DedupKey returns the case-insensitive, trimmed form of NormalizedText used
// for duplicate detection.
func (c CandidateAddress) DedupKey() string {
	return strings.ToLower(strings.TrimSpace(c.NormalizedText))
}

// DebugLog accumulates per-candidate diagnostic lines, keyed by candidate ID.
type DebugLog map[string][]string

// Append adds one diagnostic line for a candidate.
func (d DebugLog) Append(candidateID, line string) {
	d[candidateID] = append(d[candidateID], line)
}

// Lines returns the accumulated diagnostics for a candidate.
func (d DebugLog) Lines(candidateID string) []string {
	return d[candidateID]
}
