package kv

import (
	"fmt"
	"sync"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// QuotaMedium caps the total bytes stored in the wrapped medium. A Set that
// would exceed the limit fails with types.ErrQuotaExceeded and leaves the
// previous value in place.
type QuotaMedium struct {
	mu    sync.Mutex
	inner Medium
	limit int64
	sizes map[string]int64
	used  int64
}

// NewQuotaMedium wraps inner with a byte limit. Existing values count
// against the limit.
func NewQuotaMedium(inner Medium, limit int64) (*QuotaMedium, error) {
	q := &QuotaMedium{inner: inner, limit: limit, sizes: make(map[string]int64)}
	keys, err := inner.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		v, ok, err := inner.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			q.sizes[k] = int64(len(v))
			q.used += int64(len(v))
		}
	}
	return q, nil
}

// Used returns the bytes currently stored.
func (q *QuotaMedium) Used() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

func (q *QuotaMedium) Get(key string) ([]byte, bool, error) {
	return q.inner.Get(key)
}

func (q *QuotaMedium) Set(key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := q.used - q.sizes[key] + int64(len(value))
	if next > q.limit {
		return fmt.Errorf("writing %s (%d bytes): %w", key, len(value), types.ErrQuotaExceeded)
	}
	if err := q.inner.Set(key, value); err != nil {
		return err
	}
	q.used = next
	q.sizes[key] = int64(len(value))
	return nil
}

func (q *QuotaMedium) Remove(key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.inner.Remove(key); err != nil {
		return err
	}
	q.used -= q.sizes[key]
	delete(q.sizes, key)
	return nil
}

func (q *QuotaMedium) Keys() ([]string, error) { return q.inner.Keys() }

func (q *QuotaMedium) Close() error { return q.inner.Close() }
