package assetcache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Policy controls how a new worker takes over.
type Policy struct {
	// SkipWaiting activates an installed worker immediately instead of
	// waiting for every open session to close.
	SkipWaiting bool
	// ClientsClaim makes sessions opened before any worker was active
	// switch to the newly activated worker.
	ClientsClaim bool
}

// Registration tracks the active and waiting workers for one origin.
// It is itself an http.RoundTripper that routes through the active worker.
type Registration struct {
	policy  Policy
	network http.RoundTripper
	logger  *zap.Logger

	mu       sync.Mutex
	active   *Worker
	waiting  *Worker
	sessions map[*Session]struct{}
}

// NewRegistration returns an empty registration. network serves requests
// while no worker is active; nil means http.DefaultTransport.
func NewRegistration(policy Policy, network http.RoundTripper, logger *zap.Logger) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registration{
		policy:   policy,
		network:  network,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

// Active returns the active worker or nil.
func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting returns the installed worker waiting to activate, or nil.
func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Register installs w. It activates at once when nothing is active, when
// no session is open, or when SkipWaiting is set; otherwise it waits until
// the last session closes. A worker that fails to install is redundant and
// the previous worker stays in control.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && !r.policy.SkipWaiting && len(r.sessions) > 0 {
		if r.waiting != nil {
			r.waiting.markRedundant()
		}
		r.waiting = w
		r.logger.Info("worker waiting", zap.String("cache", w.CacheName()), zap.Int("sessions", len(r.sessions)))
		return nil
	}
	return r.activateLocked(ctx, w)
}

// Restore activates w from a previous install without touching the
// network. It is a no-op when a worker is already active.
func (r *Registration) Restore(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil
	}
	if err := w.Resume(); err != nil {
		return err
	}
	return r.activateLocked(ctx, w)
}

// activateLocked makes w the active worker. Callers hold r.mu.
func (r *Registration) activateLocked(ctx context.Context, w *Worker) error {
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activating %s: %w", w.CacheName(), err)
	}
	if r.active != nil && r.active != w {
		r.active.markRedundant()
	}
	if r.waiting == w {
		r.waiting = nil
	}
	r.active = w
	for s := range r.sessions {
		if s.controlled || r.policy.ClientsClaim {
			s.controlled = true
		}
	}
	return nil
}

// RoundTrip routes req through the active worker, or the network when no
// worker is active.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	if w := r.Active(); w != nil {
		return w.RoundTrip(req)
	}
	return r.network.RoundTrip(req)
}

// OpenSession starts a client session. The session is controlled when a
// worker is active at open time.
func (r *Registration) OpenSession() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Session{reg: r, controlled: r.active != nil}
	r.sessions[s] = struct{}{}
	return s
}

// Sessions returns the number of open sessions.
func (r *Registration) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Session is one client of the registration, such as an open page.
type Session struct {
	reg        *Registration
	controlled bool
	closed     bool
}

// Controller returns the worker handling this session's requests, or nil
// when the session is uncontrolled.
func (s *Session) Controller() *Worker {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.closed || !s.controlled {
		return nil
	}
	return s.reg.active
}

// RoundTrip sends req through the controller or, when uncontrolled, the
// network.
func (s *Session) RoundTrip(req *http.Request) (*http.Response, error) {
	if w := s.Controller(); w != nil {
		return w.RoundTrip(req)
	}
	return s.reg.network.RoundTrip(req)
}

// Close ends the session. Closing the last session activates a waiting
// worker.
func (s *Session) Close(ctx context.Context) error {
	r := s.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(r.sessions, s)
	if len(r.sessions) == 0 && r.waiting != nil {
		return r.activateLocked(ctx, r.waiting)
	}
	return nil
}
