package assetcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is a worker lifecycle state.
type State int

// Worker states.
const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// maxAssetBytes bounds a single cached body.
const maxAssetBytes = 32 << 20

// Worker owns one cache generation.
type Worker struct {
	cfg     Config
	name    string
	storage Storage
	network http.RoundTripper
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithNetwork sets the transport used for network fetches. The default is
// http.DefaultTransport.
func WithNetwork(rt http.RoundTripper) WorkerOption {
	return func(w *Worker) {
		if rt != nil {
			w.network = rt
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker returns a worker in StateParsed.
func NewWorker(cfg Config, storage Storage, opts ...WorkerOption) (*Worker, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	w := &Worker{
		cfg:     cfg,
		name:    cfg.CacheName(),
		storage: storage,
		network: http.DefaultTransport,
		logger:  zap.NewNop(),
		now:     time.Now,
		state:   StateParsed,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("cache", w.name))
	return w, nil
}

// CacheName returns the container this worker owns.
func (w *Worker) CacheName() string { return w.name }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// transition moves from one state to another, failing if the worker is
// elsewhere.
func (w *Worker) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return fmt.Errorf("worker %s: cannot move from %s to %s", w.name, w.state, to)
	}
	w.state = to
	return nil
}

// Install fetches every core asset concurrently and stores them in one
// batch. If any fetch fails nothing is stored and the worker becomes
// redundant.
func (w *Worker) Install(ctx context.Context) error {
	if err := w.transition(StateParsed, StateInstalling); err != nil {
		return err
	}
	w.logger.Info("installing", zap.Strings("assets", w.cfg.CoreAssets))

	entries := make([]*Entry, len(w.cfg.CoreAssets))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range w.cfg.CoreAssets {
		g.Go(func() error {
			e, err := w.fetchAsset(gctx, path)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", path, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.setState(StateRedundant)
		w.logger.Warn("install failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	batch := make(map[string]*Entry, len(entries))
	for i, path := range w.cfg.CoreAssets {
		batch[requestKey(w.cfg.resolve(path))] = entries[i]
	}
	if err := w.storage.PutAll(w.name, batch); err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: storing core assets: %w", ErrInstallFailed, err)
	}
	for range batch {
		record(ctx, w.name, MeasureStores)
	}
	w.setState(StateInstalled)
	w.logger.Info("installed", zap.Int("assets", len(batch)))
	return nil
}

// ErrNotInstalled is returned by Resume when the container is missing a
// core asset.
var ErrNotInstalled = errors.New("cache generation is not installed")

// Resume marks the worker installed without fetching when its container
// already holds every core asset from an earlier install.
func (w *Worker) Resume() error {
	if err := w.transition(StateParsed, StateInstalling); err != nil {
		return err
	}
	keys, err := w.storage.Keys(w.name)
	if err != nil {
		w.setState(StateParsed)
		return fmt.Errorf("listing %s: %w", w.name, err)
	}
	stored := make(map[string]bool, len(keys))
	for _, k := range keys {
		stored[k] = true
	}
	for _, path := range w.cfg.CoreAssets {
		if !stored[requestKey(w.cfg.resolve(path))] {
			w.setState(StateParsed)
			return fmt.Errorf("%w: %s missing", ErrNotInstalled, path)
		}
	}
	w.setState(StateInstalled)
	w.logger.Info("resumed", zap.Int("assets", len(keys)))
	return nil
}

// fetchAsset performs a network GET and requires a 200 response.
func (w *Worker) fetchAsset(ctx context.Context, path string) (*Entry, error) {
	u := w.cfg.resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := readAssetBody(resp.Body)
	if err != nil {
		return nil, err
	}
	return w.entryFrom(u.String(), resp, body), nil
}

// readAssetBody reads at most one byte past maxAssetBytes. A longer body
// fails with ErrAssetTooLarge and returns the bytes already consumed.
func readAssetBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxAssetBytes {
		return body, fmt.Errorf("%w: over %d bytes", ErrAssetTooLarge, maxAssetBytes)
	}
	return body, nil
}

func (w *Worker) entryFrom(url string, resp *http.Response, body []byte) *Entry {
	header := resp.Header.Clone()
	header.Del("Content-Length")
	return &Entry{
		URL:      url,
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: w.now().UTC(),
	}
}

// Activate deletes every container other than this worker's. The worker
// must be installed.
func (w *Worker) Activate(ctx context.Context) error {
	if err := w.transition(StateInstalled, StateActivating); err != nil {
		return err
	}
	names, err := w.storage.Names()
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("listing containers: %w", err)
	}
	var purged []string
	for _, name := range names {
		if name == w.name {
			continue
		}
		if _, err := w.storage.Delete(name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("deleting container %s: %w", name, err)
		}
		purged = append(purged, name)
		record(ctx, w.name, MeasurePurged)
	}
	w.setState(StateActivated)
	w.logger.Info("activated", zap.Strings("purged", purged))
	return nil
}

// markRedundant retires the worker. A redundant worker passes every
// request straight to the network.
func (w *Worker) markRedundant() {
	w.setState(StateRedundant)
}
