package domain

import "time"

type Stage string

const (
	StageStarting    Stage = "starting"
	StageDownloading Stage = "downloading"
	StageParsing     Stage = "parsing"
	StageAnalyzing   Stage = "analyzing"
	StageStructuring Stage = "structuring"
	StageUploading   Stage = "uploading"
	StageFinalizing  Stage = "finalizing"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
	StageCancelled   Stage = "cancelled"
)

// Terminal reports whether no further non-terminal transitions are expected.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageError, StageCancelled:
		return true
	default:
		return false
	}
}

func (s Stage) Known() bool {
	switch s {
	case StageStarting, StageDownloading, StageParsing, StageAnalyzing,
		StageStructuring, StageUploading, StageFinalizing,
		StageCompleted, StageError, StageCancelled:
		return true
	default:
		return false
	}
}

// ProcessingProgress is the tracked state of one resource. The Timestamp is
// server-sourced (event emission time), not the local apply time.
type ProcessingProgress struct {
	ResourceID  string         `json:"resource_id"`
	Stage       Stage          `json:"stage"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
	Results     map[string]any `json:"results,omitempty"`
	Error       string         `json:"error,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
}

// Snapshot is a point-in-time copy of the full progress map, keyed by
// resource id. Listeners receive it by value and may retain it.
type Snapshot map[string]ProcessingProgress

func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, entry := range s {
		out[id] = entry
	}
	return out
}

// ResourceRef identifies one resource on the processing backend.
type ResourceRef struct {
	OwnerID     string
	ResourceID  string
	DisplayName string
	Token       string
}
