package model

import "fmt"

// StageKind identifies which pipeline stage is active.
type StageKind string

const (
	StageIdle       StageKind = "idle"
	StageFetching   StageKind = "fetching"
	StageExtracting StageKind = "extracting"
	StageGeocoding  StageKind = "geocoding"
	StageReviewing  StageKind = "reviewing"
	StageCompleted  StageKind = "completed"
	StageFailed     StageKind = "failed"
)

// PipelineStage is the discriminated pipeline state. Exactly one stage is
// active at a time; the payload fields are meaningful only for the kinds
// that carry them.
type PipelineStage struct {
	Kind StageKind `json:"kind"`

	// UsedFallbackCompute is set for StageExtracting onward when the
	// high-cost extraction strategy actually ran.
	UsedFallbackCompute bool `json:"used_fallback_compute,omitempty"`

	// Done/Total report geocoding progress for StageGeocoding.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`

	// Message carries the failure reason for StageFailed.
	Message string `json:"message,omitempty"`
}

// Idle returns the initial pipeline stage.
func Idle() PipelineStage { return PipelineStage{Kind: StageIdle} }

// Fetching returns the fetching stage.
func Fetching() PipelineStage { return PipelineStage{Kind: StageFetching} }

// Extracting returns the extracting stage with the fallback-compute flag.
func Extracting(usedFallbackCompute bool) PipelineStage {
	return PipelineStage{Kind: StageExtracting, UsedFallbackCompute: usedFallbackCompute}
}

// Geocoding returns the geocoding stage with progress counters.
func Geocoding(done, total int) PipelineStage {
	return PipelineStage{Kind: StageGeocoding, Done: done, Total: total}
}

// Reviewing returns the reviewing hold state.
func Reviewing() PipelineStage { return PipelineStage{Kind: StageReviewing} }

// Completed returns the absorbing completed state.
func Completed() PipelineStage { return PipelineStage{Kind: StageCompleted} }

// Failed returns the absorbing failed state with a message.
func Failed(message string) PipelineStage {
	return PipelineStage{Kind: StageFailed, Message: message}
}

func (s PipelineStage) String() string {
	switch s.Kind {
	case StageGeocoding:
		return fmt.Sprintf("geocoding %d/%d", s.Done, s.Total)
	case StageFailed:
		return fmt.Sprintf("failed: %s", s.Message)
	default:
		return string(s.Kind)
	}
}
