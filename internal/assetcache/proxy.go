package assetcache

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
)

// NewShellProxy returns a reverse proxy to origin whose transport is the
// registration, so the application stays reachable while origin is down.
func NewShellProxy(reg *Registration, origin *url.URL, logger *zap.Logger) *httputil.ReverseProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
		},
		Transport: reg,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Debug("proxy request failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "offline and not cached", http.StatusBadGateway)
		},
	}
}
