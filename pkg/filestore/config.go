// Package filestore persists job output files under a per-job
// namespace with quota enforcement, checksum integrity, content-type
// detection, retention-based expiry and streamed reads.
//
// Storage layout:
//
//	{root}/
//	  {job-id}/
//	    .reportd-files.json   (metadata sidecar, flock-guarded)
//	    summary.csv
//	    statement.html
//
// The in-memory index and quota counters are rebuilt from the sidecars
// on construction, so both bytes and metadata survive a restart.
package filestore

import (
	"fmt"
)

// Default quota and retention settings.
const (
	DefaultMaxBytes      = int64(1) << 30 // 1 GiB
	DefaultMaxFiles      = 1000
	DefaultRetentionDays = 7
	DefaultChunkSize     = 64 * 1024

	// MaxFilenameLength bounds stored filenames.
	MaxFilenameLength = 255
)

// DefaultDeniedExtensions lists file extensions never accepted for
// storage regardless of content.
var DefaultDeniedExtensions = []string{
	".exe", ".dll", ".so", ".bat", ".cmd", ".com",
	".sh", ".ps1", ".scr", ".msi", ".jar", ".vbs",
}

// Config holds the file store settings.
type Config struct {
	// Root is the directory under which per-job namespaces live.
	Root string

	// MaxBytes caps aggregate stored bytes. Zero selects the default.
	MaxBytes int64

	// MaxFiles caps the aggregate stored file count. Zero selects the
	// default.
	MaxFiles int

	// DefaultRetentionDays applies to files stored without an explicit
	// retention window. Zero selects the default.
	DefaultRetentionDays int

	// DeniedExtensions overrides DefaultDeniedExtensions when non-nil.
	DeniedExtensions []string

	// AllowHidden permits leading-dot filenames. Off by default; the
	// metadata sidecar relies on hidden names being unreachable.
	AllowHidden bool
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("storage root is required")
	}
	if c.MaxBytes < 0 || c.MaxFiles < 0 || c.DefaultRetentionDays < 0 {
		return fmt.Errorf("storage limits must not be negative")
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxFiles == 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.DefaultRetentionDays == 0 {
		c.DefaultRetentionDays = DefaultRetentionDays
	}
	if c.DeniedExtensions == nil {
		c.DeniedExtensions = DefaultDeniedExtensions
	}
	return nil
}
