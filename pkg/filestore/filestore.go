package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// manifestName is the per-job metadata sidecar. The leading dot keeps
// it out of reach of stored filenames, which reject hidden names.
const manifestName = ".reportd-files.json"

// FileInfo is the stored metadata for one file in a job's namespace.
type FileInfo struct {
	JobID         string    `json:"-"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	ContentType   string    `json:"content_type"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccess    time.Time `json:"last_access,omitzero"`
	Downloads     int64     `json:"downloads"`
	RetentionDays int       `json:"retention_days"`
}

// StoreOptions carries optional per-file overrides for Store.
type StoreOptions struct {
	// ContentType overrides detection when non-empty.
	ContentType string

	// RetentionDays overrides the store default when positive.
	RetentionDays int
}

// Usage is a snapshot of the quota counters.
type Usage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
	UsedFiles int   `json:"used_files"`
	MaxFiles  int   `json:"max_files"`
	JobCount  int   `json:"job_count"`
}

// Store is the file storage subsystem. One mutex serializes all
// metadata and quota mutation; payload bytes stream outside the lock
// once a handle is safely open.
type Store struct {
	cfg    Config
	mu     sync.Mutex
	jobs   map[string]map[string]*FileInfo
	bytes  int64
	files  int
	logger zerolog.Logger
}

// New creates a store rooted at cfg.Root, creating the directory if
// needed and rebuilding the index and quota counters from the per-job
// metadata sidecars already on disk.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		jobs:   make(map[string]map[string]*FileInfo),
		logger: log.With().Str("component", "filestore").Logger(),
	}
	if err := s.rebuild(); err != nil {
		return nil, fmt.Errorf("rebuild storage index: %w", err)
	}
	return s, nil
}

// rebuild restores the in-memory index from disk. Files present on
// disk but missing from a sidecar get their metadata recomputed, so a
// lost sidecar costs metadata freshness, never bytes.
func (s *Store) rebuild() error {
	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		return fmt.Errorf("read storage root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		infos, err := s.loadJobDir(jobID)
		if err != nil {
			s.logger.Warn().Str("job_id", jobID).Err(err).Msg("skipping unreadable job namespace")
			continue
		}
		if len(infos) == 0 {
			continue
		}
		s.jobs[jobID] = infos
		for _, fi := range infos {
			s.bytes += fi.Size
			s.files++
		}
	}

	if len(s.jobs) > 0 {
		s.logger.Info().Int("jobs", len(s.jobs)).Int("files", s.files).
			Int64("bytes", s.bytes).Msg("rebuilt storage index from disk")
	}
	return nil
}

func (s *Store) loadJobDir(jobID string) (map[string]*FileInfo, error) {
	dir := s.jobDir(jobID)

	manifest := map[string]*FileInfo{}
	manifestPath := filepath.Join(dir, manifestName)
	if data, err := s.readManifest(manifestPath); err == nil {
		for _, fi := range data {
			manifest[fi.Filename] = fi
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	infos := make(map[string]*FileInfo)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}

		fi, ok := manifest[name]
		if !ok || fi.Size != stat.Size() {
			// Sidecar missing or stale: recompute from the bytes.
			raw, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			sum := sha256.Sum256(raw)
			fi = &FileInfo{
				Filename:      name,
				Size:          int64(len(raw)),
				ContentType:   DetectContentType(name, raw),
				Checksum:      hex.EncodeToString(sum[:]),
				CreatedAt:     stat.ModTime().UTC(),
				RetentionDays: s.cfg.DefaultRetentionDays,
			}
		}
		fi.JobID = jobID
		infos[name] = fi
	}
	return infos, nil
}

// Store validates the filename, enforces quotas, writes the bytes,
// computes the SHA-256 checksum, detects the content type and records
// metadata. Counters update atomically with the write under the store
// lock.
func (s *Store) Store(jobID, filename string, data []byte, opts StoreOptions) (*FileInfo, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	if err := ValidateFilename(filename, s.cfg.DeniedExtensions, s.cfg.AllowHidden); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID][filename]; exists {
		return nil, &AlreadyExistsError{JobID: jobID, Filename: filename}
	}
	if s.bytes+int64(len(data)) > s.cfg.MaxBytes {
		return nil, &QuotaExceededError{
			Resource:  "bytes",
			Used:      s.bytes,
			Limit:     s.cfg.MaxBytes,
			Requested: int64(len(data)),
		}
	}
	if s.files+1 > s.cfg.MaxFiles {
		return nil, &QuotaExceededError{
			Resource:  "files",
			Used:      int64(s.files),
			Limit:     int64(s.cfg.MaxFiles),
			Requested: 1,
		}
	}

	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job namespace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	sum := sha256.Sum256(data)
	retention := s.cfg.DefaultRetentionDays
	if opts.RetentionDays > 0 {
		retention = opts.RetentionDays
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = DetectContentType(filename, data)
	}

	fi := &FileInfo{
		JobID:         jobID,
		Filename:      filename,
		Size:          int64(len(data)),
		ContentType:   contentType,
		Checksum:      hex.EncodeToString(sum[:]),
		CreatedAt:     time.Now().UTC(),
		RetentionDays: retention,
	}

	if s.jobs[jobID] == nil {
		s.jobs[jobID] = make(map[string]*FileInfo)
	}
	s.jobs[jobID][filename] = fi
	s.bytes += fi.Size
	s.files++

	s.persistManifest(jobID)

	s.logger.Debug().Str("job_id", jobID).Str("filename", filename).
		Int64("size", fi.Size).Str("content_type", fi.ContentType).Msg("stored file")

	cp := *fi
	return &cp, nil
}

// Read returns the file's bytes, incrementing its download counter and
// last-access time as a side effect.
func (s *Store) Read(jobID, filename string) ([]byte, error) {
	if err := ValidateFilename(filename, s.cfg.DeniedExtensions, s.cfg.AllowHidden); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := s.lookup(jobID, filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.filePath(jobID, filename))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	fi.Downloads++
	fi.LastAccess = time.Now().UTC()
	s.persistManifest(jobID)

	return data, nil
}

// Stat returns a copy of the file's metadata without touching access
// counters.
func (s *Store) Stat(jobID, filename string) (*FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := s.lookup(jobID, filename)
	if err != nil {
		return nil, err
	}
	cp := *fi
	return &cp, nil
}

// List returns metadata for all files in a job's namespace, sorted by
// filename. An unknown job yields an empty slice, not an error.
func (s *Store) List(jobID string) []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.jobs[jobID]
	out := make([]FileInfo, 0, len(files))
	for _, fi := range files {
		out = append(out, *fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// Delete removes one file and releases its quota. Deleting an absent
// file is not an error. The job's directory is removed once it has no
// remaining files.
func (s *Store) Delete(jobID, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(jobID, filename)
}

func (s *Store) deleteLocked(jobID, filename string) error {
	fi, ok := s.jobs[jobID][filename]
	if !ok {
		return nil
	}

	if err := os.Remove(s.filePath(jobID, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}

	delete(s.jobs[jobID], filename)
	s.bytes -= fi.Size
	s.files--

	if len(s.jobs[jobID]) == 0 {
		delete(s.jobs, jobID)
		s.removeJobDir(jobID)
	} else {
		s.persistManifest(jobID)
	}
	return nil
}

// DeleteAll removes every file in a job's namespace and returns how
// many were deleted.
func (s *Store) DeleteAll(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.jobs[jobID]
	count := 0
	for name := range files {
		if err := s.deleteLocked(jobID, name); err != nil {
			s.logger.Warn().Str("job_id", jobID).Str("filename", name).Err(err).
				Msg("best-effort delete failed")
			continue
		}
		count++
	}
	return count
}

// Usage returns a snapshot of the quota counters.
func (s *Store) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Usage{
		UsedBytes: s.bytes,
		MaxBytes:  s.cfg.MaxBytes,
		UsedFiles: s.files,
		MaxFiles:  s.cfg.MaxFiles,
		JobCount:  len(s.jobs),
	}
}

// lookup must be called with the store lock held.
func (s *Store) lookup(jobID, filename string) (*FileInfo, error) {
	files, ok := s.jobs[jobID]
	if !ok {
		return nil, &NotFoundError{JobID: jobID}
	}
	fi, ok := files[filename]
	if !ok {
		return nil, &NotFoundError{JobID: jobID, Filename: filename}
	}
	return fi, nil
}

func (s *Store) jobDir(jobID string) string {
	return filepath.Join(s.cfg.Root, jobID)
}

func (s *Store) filePath(jobID, filename string) string {
	return filepath.Join(s.jobDir(jobID), filename)
}

func (s *Store) removeJobDir(jobID string) {
	dir := s.jobDir(jobID)
	_ = os.Remove(filepath.Join(dir, manifestName))
	_ = os.Remove(filepath.Join(dir, manifestName+".lock"))
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("could not remove empty job namespace")
	}
}

// persistManifest writes the job's metadata sidecar. Failures are
// logged, not fatal: the sidecar is an optimization for restart
// recovery, and the index can always be recomputed from the bytes.
func (s *Store) persistManifest(jobID string) {
	files := s.jobs[jobID]
	if len(files) == 0 {
		return
	}

	out := make([]*FileInfo, 0, len(files))
	for _, fi := range files {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })

	path := filepath.Join(s.jobDir(jobID), manifestName)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("could not lock metadata sidecar")
		return
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("could not marshal metadata sidecar")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("could not write metadata sidecar")
	}
}

func (s *Store) readManifest(path string) ([]*FileInfo, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock metadata sidecar: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []*FileInfo
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse metadata sidecar: %w", err)
	}
	return out, nil
}

func validateJobID(jobID string) error {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return &InvalidFilenameError{Filename: jobID, Reason: "invalid job namespace"}
	}
	return nil
}
