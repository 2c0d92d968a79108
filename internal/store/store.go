// Package store implements the local record store: medicines, dose logs,
// glucose readings, stock audit records, and settings persisted as JSON
// collections in a kv.Medium.
//
// Every stock change is written as a StockRecord first; the owning
// medicine's currentStock is then overwritten with the record's newStock.
// A dose log is written before its stock record, so a failed record write
// leaves an orphan log and an unchanged count. The medicines collection is
// written last; if that write fails the record stays and currentStock lags
// behind it until VerifyStock reports the drift.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/internal/kv"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// Storage keys, one logical namespace each.
const (
	KeyMedicines        = "med_tracker_medicines"
	KeyMedicineLogs     = "med_tracker_administration_logs"
	KeyGlucoseReadings  = "med_tracker_glucose_readings"
	KeyStockRecords     = "med_tracker_stock_records"
	KeyUserSettings     = "med_tracker_user_settings"
	KeyLowStockNotified = "med_tracker_low_stock_notified_ids"
)

// ID prefixes per entity.
const (
	prefixMedicine = "med"
	prefixLog      = "admin"
	prefixGlucose  = "glucose"
	prefixStock    = "stock"
)

// Store implements types.RecordStore over a kv.Medium.
type Store struct {
	mu       sync.Mutex
	attached bool
	config   types.Config
	medium   kv.Medium
	injected kv.Medium
	warning  error

	logger *zap.Logger
	now    func() time.Time
}

var _ types.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMedium makes Attach use m instead of opening the configured backend.
// The store takes ownership of m and closes it on Detach.
func WithMedium(m kv.Medium) Option {
	return func(s *Store) { s.injected = m }
}

// New returns a detached store.
func New(opts ...Option) *Store {
	s := &Store{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open is New followed by Attach.
func Open(cfg types.Config, opts ...Option) (*Store, error) {
	s := New(opts...)
	if err := s.Attach(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Attach validates cfg, opens the medium, and probes it once. A medium that
// cannot be opened or written is replaced by an in-memory one and the
// failure is kept for StorageWarning.
func (s *Store) Attach(cfg types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	medium := s.injected
	s.injected = nil
	if medium == nil {
		var err error
		medium, err = kv.Open(cfg)
		if err != nil {
			medium = nil
			s.warning = fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
		}
	}
	if medium != nil {
		if err := kv.Probe(medium); err != nil {
			medium.Close()
			medium = nil
			s.warning = err
		}
	}
	if medium == nil {
		s.logger.Warn("storage unavailable, continuing without persistence",
			zap.String("backend", cfg.Backend),
			zap.String("data_dir", cfg.DataDir),
			zap.Error(s.warning))
		medium = kv.NewMemoryMedium()
	}

	s.medium = medium
	s.config = cfg
	s.attached = true
	s.logger.Debug("record store attached", zap.String("backend", cfg.Backend))
	return nil
}

// Detach closes the medium. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return nil
	}
	err := s.medium.Close()
	s.medium = nil
	s.attached = false
	s.warning = nil
	return err
}

// StorageWarning returns the error recorded when the medium was found
// unusable at Attach, or nil.
func (s *Store) StorageWarning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// Clear removes every persisted key.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrStoreDetached
	}
	keys, err := s.medium.Keys()
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	var errs []error
	for _, k := range keys {
		if err := s.medium.Remove(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newID returns <prefix>_<uuid v7>. V7 ids sort by creation time.
func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return prefix + "_" + uuid.New().String()
	}
	return prefix + "_" + id.String()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// writable returns ErrStoreDetached when the store has no medium.
// Callers hold s.mu.
func (s *Store) writable() error {
	if !s.attached {
		return types.ErrStoreDetached
	}
	return nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, types.ErrNotFound)
}
