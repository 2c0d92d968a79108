package assetcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// requestKey identifies a cached request by path and query.
func requestKey(u *url.URL) string {
	return u.RequestURI()
}

// IsNavigation reports whether req loads a full page.
func IsNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// RoundTrip is the fetch interceptor. Only same-origin GET requests are
// handled; everything else goes to the network unchanged. A redundant worker
// sends every request to the network. Other states before activation fail
// with ErrNotActive.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	switch w.State() {
	case StateActivated:
	case StateRedundant:
		return w.network.RoundTrip(req)
	default:
		return nil, fmt.Errorf("%s: %w", w.name, ErrNotActive)
	}
	if req.Method != http.MethodGet || !w.cfg.sameOrigin(req.URL) {
		return w.network.RoundTrip(req)
	}
	if IsNavigation(req) {
		return w.navigate(req)
	}
	if target, ok := w.cfg.Aliases[req.URL.Path]; ok {
		return w.alias(req, target)
	}
	return w.cacheFirst(req)
}

// navigate is network-first with the cached shell as the offline answer.
func (w *Worker) navigate(req *http.Request) (*http.Response, error) {
	resp, err := w.network.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	record(req.Context(), w.name, MeasureNetworkFailures)

	for _, key := range []string{requestKey(w.cfg.resolve(w.cfg.ShellPath)), requestKey(req.URL)} {
		if e, ok := w.match(key); ok {
			record(req.Context(), w.name, MeasureNavigationFallback)
			w.logger.Debug("offline navigation served from cache", zap.String("path", req.URL.Path), zap.String("key", key))
			return e.Response(req), nil
		}
	}
	return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, ErrNetworkFailure, err)
}

// cacheFirst returns a cached match or fetches and stores the response.
func (w *Worker) cacheFirst(req *http.Request) (*http.Response, error) {
	key := requestKey(req.URL)
	if e, ok := w.match(key); ok {
		record(req.Context(), w.name, MeasureHits)
		return e.Response(req), nil
	}
	record(req.Context(), w.name, MeasureMisses)

	resp, err := w.network.RoundTrip(req)
	if err != nil {
		record(req.Context(), w.name, MeasureNetworkFailures)
		w.logger.Debug("network failure", zap.String("path", req.URL.Path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, ErrNetworkFailure, err)
	}
	return w.store(req, key, resp)
}

// alias serves target under the identity of the legacy request.
func (w *Worker) alias(req *http.Request, target string) (*http.Response, error) {
	key := requestKey(req.URL)
	if e, ok := w.match(key); ok {
		record(req.Context(), w.name, MeasureHits)
		return e.Response(req), nil
	}
	record(req.Context(), w.name, MeasureMisses)

	canonical := req.Clone(req.Context())
	canonical.URL = w.cfg.resolve(target)
	canonical.Host = canonical.URL.Host
	resp, err := w.network.RoundTrip(canonical)
	if err != nil {
		record(req.Context(), w.name, MeasureNetworkFailures)
		if e, ok := w.match(requestKey(canonical.URL)); ok {
			record(req.Context(), w.name, MeasureHits)
			return e.Response(req), nil
		}
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, ErrNetworkFailure, err)
	}
	return w.store(req, key, resp)
}

// store caches a cacheable response under key and returns a response with
// an unread body. Anything but a same-origin 200 is returned untouched. A
// body over the size limit is not cached; the caller still gets all of it.
func (w *Worker) store(req *http.Request, key string, resp *http.Response) (*http.Response, error) {
	if !w.cacheable(resp) {
		return resp, nil
	}
	body, err := readAssetBody(resp.Body)
	if errors.Is(err, ErrAssetTooLarge) {
		w.logger.Debug("response not cached", zap.String("key", key), zap.Error(err))
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return resp, nil
	}
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	e := w.entryFrom(req.URL.String(), resp, body)
	if err := w.storage.Put(w.name, key, e); err != nil {
		w.logger.Warn("caching response", zap.String("key", key), zap.Error(err))
	} else {
		record(req.Context(), w.name, MeasureStores)
	}
	return e.Response(req), nil
}

// cacheable accepts 200 responses whose final URL is still on the origin.
func (w *Worker) cacheable(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if resp.Request != nil && resp.Request.URL != nil && !w.cfg.sameOrigin(resp.Request.URL) {
		return false
	}
	return true
}

func (w *Worker) match(key string) (*Entry, bool) {
	e, ok, err := w.storage.Match(w.name, key)
	if err != nil {
		w.logger.Warn("reading cache", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return e, ok
}
