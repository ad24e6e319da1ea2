// Package memory keeps artifacts and status snapshots in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/scrapeworker/internal/scraping"
)

// ErrExists is returned by Upload when upsert is false and the object is present.
var ErrExists = errors.New("object already exists")

// ErrInvalidTransition is returned by UpdateStatus for a snapshot the job state
// machine does not allow after the latest one.
var ErrInvalidTransition = errors.New("invalid status transition")

// Object is one stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Option configures a Store.
type Option func(*Store)

// WithUploadFailure injects an error for matching dataset uploads. Return nil to allow.
func WithUploadFailure(fn func(path string) error) Option {
	return func(s *Store) { s.failUpload = fn }
}

// WithStatusFailure injects an error for matching status writes. Return nil to allow.
func WithStatusFailure(fn func(status scraping.JobStatus) error) Option {
	return func(s *Store) { s.failStatus = fn }
}

// Store implements scraping.StorageClient and storage.Uploader in memory.
// Every status write is kept so tests can inspect the transition history.
type Store struct {
	mu         sync.RWMutex
	objects    map[string]Object
	history    map[string][]scraping.JobStatus
	failUpload func(path string) error
	failStatus func(status scraping.JobStatus) error
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		objects: make(map[string]Object),
		history: make(map[string][]scraping.JobStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores a copy of data at path.
func (s *Store) Upload(_ context.Context, path string, data []byte, contentType string, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; ok && !upsert {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	s.objects[path] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// PersistDataset stores each artifact under its deterministic path.
func (s *Store) PersistDataset(ctx context.Context, job scraping.Job, artifacts scraping.Artifacts) (map[string]string, error) {
	stored := make(map[string]string, len(artifacts))
	for format, artifact := range artifacts {
		path := scraping.DatasetPath(job, format)
		if s.failUpload != nil {
			if err := s.failUpload(path); err != nil {
				return nil, &scraping.StorageError{Path: path, Err: err}
			}
		}
		if err := s.Upload(ctx, path, artifact.Data, artifact.ContentType, true); err != nil {
			return nil, &scraping.StorageError{Path: path, Err: err}
		}
		stored[format] = path
	}
	return stored, nil
}

// UpdateStatus records the snapshot as the job's latest status. A running
// snapshot always starts a new run; any other state must follow the latest one.
func (s *Store) UpdateStatus(_ context.Context, status scraping.JobStatus) error {
	path := scraping.StatusPath(status.JobID)
	if s.failStatus != nil {
		if err := s.failStatus(status); err != nil {
			return &scraping.StorageError{Path: path, Err: err}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[status.JobID]
	if status.State != scraping.JobStateRunning {
		from := scraping.JobStateQueued
		if len(h) > 0 {
			from = h[len(h)-1].State
		}
		if !scraping.CanTransition(from, status.State) {
			return &scraping.StorageError{
				Path: path,
				Err:  fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status.State),
			}
		}
	}
	s.history[status.JobID] = append(h, cloneStatus(status))
	return nil
}

// Object returns a copy of the object stored at path.
func (s *Store) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Object{}, false
	}
	return Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}, true
}

// Uploads lists every stored path.
func (s *Store) Uploads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.objects))
	for path := range s.objects {
		paths = append(paths, path)
	}
	return paths
}

// Status returns the latest snapshot for jobID.
func (s *Store) Status(jobID string) (scraping.JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[jobID]
	if len(h) == 0 {
		return scraping.JobStatus{}, false
	}
	return cloneStatus(h[len(h)-1]), true
}

// StatusHistory returns every snapshot written for jobID, oldest first.
func (s *Store) StatusHistory(jobID string) []scraping.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[jobID]
	out := make([]scraping.JobStatus, len(h))
	for i, st := range h {
		out[i] = cloneStatus(st)
	}
	return out
}

func cloneStatus(st scraping.JobStatus) scraping.JobStatus {
	files := make(map[string]string, len(st.StoredFiles))
	for k, v := range st.StoredFiles {
		files[k] = v
	}
	st.StoredFiles = files
	return st
}
