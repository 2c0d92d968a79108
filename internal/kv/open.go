package kv

import (
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// probeKey is written and removed by Probe.
const probeKey = "__medtrack_probe__"

// Open returns the medium selected by cfg. The config must already be valid.
// A positive cfg.QuotaBytes wraps the medium in a QuotaMedium.
func Open(cfg types.Config) (Medium, error) {
	m, err := openBackend(cfg)
	if err != nil || cfg.QuotaBytes <= 0 {
		return m, err
	}
	q, err := NewQuotaMedium(m, cfg.QuotaBytes)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("sizing %s medium: %w", cfg.Backend, err)
	}
	return q, nil
}

func openBackend(cfg types.Config) (Medium, error) {
	switch cfg.Backend {
	case types.BackendJSON:
		return NewFileMedium(cfg.DataDir)
	case types.BackendSQLite:
		dir := cfg.DataDir
		if dir == "" {
			dir = "."
		}
		return OpenSQLite(filepath.Join(dir, SQLiteFile))
	case types.BackendMemory:
		return NewMemoryMedium(), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend)
	}
}

// Probe checks that m accepts a write and a delete. Any failure is wrapped
// with types.ErrStorageUnavailable.
func Probe(m Medium) error {
	if err := m.Set(probeKey, []byte("1")); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}
	if err := m.Remove(probeKey); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}
	return nil
}
