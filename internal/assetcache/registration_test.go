package assetcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegisterFirstWorkerActivatesImmediately(t *testing.T) {
	net := newFakeNetwork()
	reg := NewRegistration(Policy{}, net, zaptest.NewLogger(t))

	// Before any worker the registration is a plain transport.
	net.setOffline(true)
	_, err := reg.RoundTrip(get(t, "/index.html"))
	assert.ErrorIs(t, err, errOffline)
	net.setOffline(false)

	w := newTestWorker(t, NewMemoryStorage(), net, "first", 1)
	require.NoError(t, reg.Register(context.Background(), w))
	assert.Same(t, w, reg.Active())
	assert.Equal(t, StateActivated, w.State())

	net.setOffline(true)
	resp, err := reg.RoundTrip(get(t, "/index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>shell</html>", readBody(t, resp))
}

func TestUpdateWaitsForSessions(t *testing.T) {
	st := NewMemoryStorage()
	net := newFakeNetwork()
	reg := NewRegistration(Policy{}, net, nil)
	v1 := newTestWorker(t, st, net, "waiting", 1)
	require.NoError(t, reg.Register(context.Background(), v1))

	session := reg.OpenSession()
	assert.Same(t, v1, session.Controller())

	v2 := newTestWorker(t, st, net, "waiting", 2)
	require.NoError(t, reg.Register(context.Background(), v2))
	assert.Equal(t, StateInstalled, v2.State())
	assert.Same(t, v2, reg.Waiting())
	assert.Same(t, v1, reg.Active())
	assert.Same(t, v1, session.Controller())

	// The old generation survives while it is still in control.
	ok, err := st.Has(v1.CacheName())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, session.Close(context.Background()))
	require.NoError(t, session.Close(context.Background()))
	assert.Same(t, v2, reg.Active())
	assert.Nil(t, reg.Waiting())
	assert.Equal(t, StateRedundant, v1.State())
	names, err := st.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{v2.CacheName()}, names)
	assert.Equal(t, 0, reg.Sessions())
}

func TestSkipWaiting(t *testing.T) {
	st := NewMemoryStorage()
	net := newFakeNetwork()
	reg := NewRegistration(Policy{SkipWaiting: true}, net, nil)
	v1 := newTestWorker(t, st, net, "skip", 1)
	require.NoError(t, reg.Register(context.Background(), v1))
	session := reg.OpenSession()
	defer session.Close(context.Background())

	v2 := newTestWorker(t, st, net, "skip", 2)
	require.NoError(t, reg.Register(context.Background(), v2))
	assert.Same(t, v2, reg.Active())
	assert.Same(t, v2, session.Controller())
	assert.Equal(t, StateRedundant, v1.State())

	// The retired worker no longer answers from its cache.
	net.set("/app.js", "console.log('v2')")
	resp, err := v1.RoundTrip(get(t, "/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log('v2')", readBody(t, resp))
	net.setOffline(true)
	_, err = v1.RoundTrip(get(t, "/index.html"))
	assert.ErrorIs(t, err, errOffline)
}

func TestClientsClaim(t *testing.T) {
	for _, claim := range []bool{false, true} {
		net := newFakeNetwork()
		reg := NewRegistration(Policy{ClientsClaim: claim}, net, nil)
		session := reg.OpenSession()
		assert.Nil(t, session.Controller())

		w := newTestWorker(t, NewMemoryStorage(), net, "claim", 1)
		require.NoError(t, reg.Register(context.Background(), w))
		if claim {
			assert.Same(t, w, session.Controller())
		} else {
			assert.Nil(t, session.Controller())
		}

		net.setOffline(true)
		resp, err := session.RoundTrip(get(t, "/index.html"))
		if claim {
			require.NoError(t, err)
			resp.Body.Close()
		} else {
			assert.ErrorIs(t, err, errOffline)
		}
		require.NoError(t, session.Close(context.Background()))
	}
}

func TestFailedUpdateKeepsPreviousWorker(t *testing.T) {
	st := NewMemoryStorage()
	net := newFakeNetwork()
	reg := NewRegistration(Policy{SkipWaiting: true}, net, nil)
	v1 := newTestWorker(t, st, net, "failed", 1)
	require.NoError(t, reg.Register(context.Background(), v1))

	net.setOffline(true)
	v2 := newTestWorker(t, st, net, "failed", 2)
	err := reg.Register(context.Background(), v2)
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.Same(t, v1, reg.Active())
	assert.Equal(t, StateActivated, v1.State())
	assert.Equal(t, StateRedundant, v2.State())
}

func TestShellProxyServesOffline(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>live shell</html>"))
		case "/manifest.json", "/FullLogo.png":
			w.Write([]byte("asset"))
		default:
			http.NotFound(w, r)
		}
	}))
	originURL, err := url.Parse(origin.URL)
	require.NoError(t, err)

	st := NewMemoryStorage()
	w, err := NewWorker(Config{AppName: "proxy", Version: 1, Origin: originURL}, st,
		WithNetwork(origin.Client().Transport))
	require.NoError(t, err)
	reg := NewRegistration(Policy{}, origin.Client().Transport, nil)
	require.NoError(t, reg.Register(context.Background(), w))

	proxy := NewShellProxy(reg, originURL, zaptest.NewLogger(t))
	origin.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Accept", "text/html")
	proxy.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>live shell</html>", rec.Body.String())

	rec = httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/never-fetched.js", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRestoreActivatesOffline(t *testing.T) {
	st := NewMemoryStorage()
	net := newFakeNetwork()
	first := NewRegistration(Policy{}, net, nil)
	require.NoError(t, first.Register(context.Background(), newTestWorker(t, st, net, "restore", 1)))

	// A new process starts while the origin is down.
	net.setOffline(true)
	reg := NewRegistration(Policy{}, net, zaptest.NewLogger(t))
	failed := newTestWorker(t, st, net, "restore", 1)
	require.ErrorIs(t, reg.Register(context.Background(), failed), ErrInstallFailed)

	w := newTestWorker(t, st, net, "restore", 1)
	require.NoError(t, reg.Restore(context.Background(), w))
	assert.Same(t, w, reg.Active())
	resp, err := reg.RoundTrip(get(t, "/manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"tracker"}`, readBody(t, resp))

	// Already active: nothing to do.
	require.NoError(t, reg.Restore(context.Background(), newTestWorker(t, st, net, "restore", 1)))
	assert.Same(t, w, reg.Active())
}

func TestRestoreRequiresCompleteInstall(t *testing.T) {
	reg := NewRegistration(Policy{}, newFakeNetwork(), nil)
	w := newTestWorker(t, NewMemoryStorage(), newFakeNetwork(), "empty", 1)
	assert.ErrorIs(t, reg.Restore(context.Background(), w), ErrNotInstalled)
	assert.Equal(t, StateParsed, w.State())
	assert.Nil(t, reg.Active())
}
