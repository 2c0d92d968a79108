package assetcache

import (
	"bytes"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Entry is a stored response.
type Entry struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Response builds a fresh *http.Response for req from the entry.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Storage holds named cache containers, each mapping a request key to an
// Entry. Implementations are safe for concurrent use.
type Storage interface {
	// Open creates the container if it does not exist.
	Open(name string) error
	Has(name string) (bool, error)
	Names() ([]string, error)
	// Delete removes a container and its entries. It reports whether the
	// container existed.
	Delete(name string) (bool, error)

	Match(name, key string) (*Entry, bool, error)
	// Put stores one entry, creating the container if needed.
	Put(name, key string, e *Entry) error
	// PutAll stores every entry or none of them.
	PutAll(name string, entries map[string]*Entry) error
	Keys(name string) ([]string, error)

	Close() error
}

// MemoryStorage keeps containers in process memory.
type MemoryStorage struct {
	mu         sync.RWMutex
	containers map[string]map[string]*Entry
}

// NewMemoryStorage returns empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{containers: make(map[string]map[string]*Entry)}
}

func (m *MemoryStorage) Open(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[name]; !ok {
		m.containers[name] = make(map[string]*Entry)
	}
	return nil
}

func (m *MemoryStorage) Has(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.containers[name]
	return ok, nil
}

func (m *MemoryStorage) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.containers)), nil
}

func (m *MemoryStorage) Delete(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.containers[name]
	delete(m.containers, name)
	return ok, nil
}

func (m *MemoryStorage) Match(name, key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.containers[name][key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	cp.Header = e.Header.Clone()
	cp.Body = slices.Clone(e.Body)
	return &cp, true, nil
}

func (m *MemoryStorage) Put(name, key string, e *Entry) error {
	return m.PutAll(name, map[string]*Entry{key: e})
}

func (m *MemoryStorage) PutAll(name string, entries map[string]*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[name]
	if !ok {
		c = make(map[string]*Entry)
		m.containers[name] = c
	}
	for k, e := range entries {
		cp := *e
		cp.Header = e.Header.Clone()
		cp.Body = slices.Clone(e.Body)
		c[k] = &cp
	}
	return nil
}

func (m *MemoryStorage) Keys(name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.containers[name])), nil
}

func (m *MemoryStorage) Close() error { return nil }
