package types

import "errors"

// Config holds medium selection and parameters for RecordStore.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// QuotaBytes caps the bytes the medium may hold. Zero means no cap.
	QuotaBytes int64 `json:"quota_bytes,omitempty" yaml:"quota_bytes,omitempty"`
}

// Supported backend names.
const (
	BackendJSON   = "json"   // one JSON file per collection key
	BackendSQLite = "sqlite" // one key-value table in a SQLite database
	BackendMemory = "memory" // process memory only, nothing persists
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrQuotaNegative  = errors.New("quota_bytes must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendJSON:   true,
	BackendSQLite: true,
	BackendMemory: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.QuotaBytes < 0 {
		return ErrQuotaNegative
	}
	return nil
}

// Persistent reports whether the configured backend writes to disk.
func (c Config) Persistent() bool {
	return c.Backend == BackendJSON || c.Backend == BackendSQLite
}
