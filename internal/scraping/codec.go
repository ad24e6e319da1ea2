package scraping

import (
	"encoding/json"
	"fmt"
	"strings"
)

// jobWire is the queue representation of a Job.
type jobWire struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	ExtractionType     string            `json:"extraction_type"`
	Selectors          map[string]string `json:"selectors"`
	CustomScripts      []string          `json:"custom_scripts"`
	ExportFormats      []string          `json:"export_formats"`
	WaitForSelector    *string           `json:"wait_for_selector"`
	StoragePathPrefix  *string           `json:"storage_path_prefix"`
	SupabasePathPrefix *string           `json:"supabase_path_prefix,omitempty"`
	Metadata           map[string]any    `json:"metadata"`
}

// MarshalJSON encodes the job in its queue wire shape.
func (j Job) MarshalJSON() ([]byte, error) {
	wire := jobWire{
		ID:                j.ID,
		URL:               j.URL,
		ExtractionType:    string(j.ExtractionType),
		Selectors:         j.Selectors,
		CustomScripts:     j.CustomScripts,
		ExportFormats:     j.ExportFormats,
		WaitForSelector:   optional(j.WaitForSelector),
		StoragePathPrefix: optional(j.StoragePathPrefix),
		Metadata:          j.Metadata,
	}
	if wire.Selectors == nil {
		wire.Selectors = map[string]string{}
	}
	if wire.CustomScripts == nil {
		wire.CustomScripts = []string{}
	}
	if len(wire.ExportFormats) == 0 {
		wire.ExportFormats = []string{DefaultExportFormat}
	}
	if wire.Metadata == nil {
		wire.Metadata = map[string]any{}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a job and applies wire defaults. It does not require an ID so
// that submitters can assign one afterwards; use Validate before enqueueing.
func (j *Job) UnmarshalJSON(data []byte) error {
	var wire jobWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	extraction, err := ParseExtractionType(wire.ExtractionType)
	if err != nil {
		return err
	}
	prefix := deref(wire.StoragePathPrefix)
	if prefix == "" {
		prefix = deref(wire.SupabasePathPrefix)
	}
	*j = Job{
		ID:                wire.ID,
		URL:               wire.URL,
		ExtractionType:    extraction,
		Selectors:         wire.Selectors,
		CustomScripts:     wire.CustomScripts,
		ExportFormats:     wire.ExportFormats,
		WaitForSelector:   deref(wire.WaitForSelector),
		StoragePathPrefix: prefix,
		Metadata:          wire.Metadata,
	}
	j.applyDefaults()
	return nil
}

// WithDefaults returns a copy of j with the wire defaults filled in: json as the
// sole export format when none is requested, and empty maps and lists elsewhere.
func (j Job) WithDefaults() Job {
	j.applyDefaults()
	return j
}

func (j *Job) applyDefaults() {
	if j.Selectors == nil {
		j.Selectors = map[string]string{}
	}
	if j.CustomScripts == nil {
		j.CustomScripts = []string{}
	}
	if len(j.ExportFormats) == 0 {
		j.ExportFormats = []string{DefaultExportFormat}
	}
	if j.Metadata == nil {
		j.Metadata = map[string]any{}
	}
}

// DecodeJob parses and validates a queued job payload.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, err
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Validate checks the fields every queued job must carry.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return NewValidationError("job id is required")
	}
	if strings.TrimSpace(j.URL) == "" {
		return NewValidationError("job url is required")
	}
	if _, err := ParseExtractionType(string(j.ExtractionType)); err != nil {
		return err
	}
	return nil
}

// statusWire is the persisted representation of a JobStatus.
type statusWire struct {
	JobID       string            `json:"job_id"`
	State       JobState          `json:"state"`
	Detail      *string           `json:"detail"`
	StoredFiles map[string]string `json:"stored_files"`
	Metadata    map[string]any    `json:"metadata"`
}

// MarshalJSON encodes the status snapshot in its persisted shape.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	wire := statusWire{
		JobID:       s.JobID,
		State:       s.State,
		Detail:      optional(s.Detail),
		StoredFiles: s.StoredFiles,
		Metadata:    s.Metadata,
	}
	if wire.StoredFiles == nil {
		wire.StoredFiles = map[string]string{}
	}
	if wire.Metadata == nil {
		wire.Metadata = map[string]any{}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a persisted status snapshot.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var wire statusWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	*s = JobStatus{
		JobID:       wire.JobID,
		State:       wire.State,
		Detail:      deref(wire.Detail),
		StoredFiles: wire.StoredFiles,
		Metadata:    wire.Metadata,
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
