// Package scraping defines the job, status and record types shared by the worker subsystems.
package scraping

import (
	"fmt"
	"strings"
)

// ExtractionType selects the strategy used to turn a rendered page into records.
type ExtractionType string

// Supported extraction strategies.
const (
	ExtractionTable   ExtractionType = "table"
	ExtractionArticle ExtractionType = "article"
	ExtractionProduct ExtractionType = "product"
	ExtractionCustom  ExtractionType = "custom"
)

// ParseExtractionType validates a raw extraction type string.
func ParseExtractionType(raw string) (ExtractionType, error) {
	switch t := ExtractionType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ExtractionTable, ExtractionArticle, ExtractionProduct, ExtractionCustom:
		return t, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unsupported extraction type: %q", raw))
	}
}

// JobState represents the lifecycle state of a scraping job.
type JobState string

// Job states persisted in status snapshots.
const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// CanTransition reports whether the forward-only state machine allows from -> to.
// queued -> running -> {succeeded | failed}; nothing is skipped or revisited.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStateQueued:
		return to == JobStateRunning
	case JobStateRunning:
		return to.Terminal()
	default:
		return false
	}
}

// DefaultExportFormat is used when a job does not request any format.
const DefaultExportFormat = "json"

// Job describes one target page plus how to extract and export it.
// Jobs are created upstream and treated as immutable by the worker.
type Job struct {
	ID                string
	URL               string
	ExtractionType    ExtractionType
	Selectors         map[string]string
	CustomScripts     []string
	ExportFormats     []string
	WaitForSelector   string
	StoragePathPrefix string
	Metadata          map[string]any
}

// StoragePrefix returns the configured path prefix, falling back to the job ID.
func (j Job) StoragePrefix() string {
	prefix := strings.Trim(j.StoragePathPrefix, "/")
	if prefix == "" {
		return j.ID
	}
	return prefix
}

// Selector returns the first non-empty selector among keys.
func (j Job) Selector(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(j.Selectors[key]); v != "" {
			return v
		}
	}
	return ""
}

// Record is one flat row of extracted data. Shapes vary between records.
type Record map[string]any

// Records is an ordered dataset.
type Records []Record

// Artifact is a serialized export of a record set in one format.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Artifacts maps a normalized export format to its artifact.
type Artifacts map[string]Artifact

// JobStatus is the latest known lifecycle snapshot of a job.
// Each write overwrites the previous snapshot; no history is kept.
type JobStatus struct {
	JobID       string
	State       JobState
	Detail      string
	StoredFiles map[string]string
	Metadata    map[string]any
}

// NewStatus builds a snapshot for job in the given state.
func NewStatus(job Job, state JobState) JobStatus {
	return JobStatus{
		JobID:       job.ID,
		State:       state,
		StoredFiles: map[string]string{},
		Metadata:    job.Metadata,
	}
}

// DatasetPath is the deterministic object path of a dataset artifact.
func DatasetPath(job Job, format string) string {
	return fmt.Sprintf("%s/%s.%s", job.StoragePrefix(), job.ID, format)
}

// StatusPath is the deterministic object path of a job's status snapshot.
func StatusPath(jobID string) string {
	return fmt.Sprintf("%s/status.json", jobID)
}
