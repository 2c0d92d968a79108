// Package assetcache implements the offline asset cache: a versioned cache
// of the application shell and visited resources, a worker that installs
// and activates cache generations, and an http.RoundTripper that serves
// requests from the cache when the network is unavailable.
//
// A cache generation is one storage container named "<app>-v<N>". Bumping
// the version is the only invalidation mechanism: activation deletes every
// container with a different name.
package assetcache

import (
	"errors"
	"fmt"
	"net/url"
)

// Defaults for the application shell.
const (
	DefaultAppName   = "medicine-health-tracker"
	DefaultShellPath = "/index.html"
	DefaultLogoPath  = "/FullLogo.png"
)

// DefaultCoreAssets is the install manifest: root document, shell, web
// manifest, and logo.
var DefaultCoreAssets = []string{"/", DefaultShellPath, "/manifest.json", DefaultLogoPath}

// DefaultAliases maps legacy icon paths onto the logo.
var DefaultAliases = map[string]string{
	"/icon-192.png": DefaultLogoPath,
	"/icon-512.png": DefaultLogoPath,
}

// Errors.
var (
	ErrNetworkFailure = errors.New("network failure and no cached response")
	ErrNotActive      = errors.New("worker is not active")
	ErrInstallFailed  = errors.New("install failed")
	ErrInvalidConfig  = errors.New("invalid asset cache config")
	ErrAssetTooLarge  = errors.New("asset too large to cache")
)

// Config describes one cache generation.
type Config struct {
	AppName string
	Version int
	// Origin is the scheme and host whose GET requests are intercepted.
	Origin *url.URL
	// CoreAssets are fetched on install. Defaults to DefaultCoreAssets.
	CoreAssets []string
	// ShellPath is served for offline navigations. Defaults to DefaultShellPath.
	ShellPath string
	// Aliases maps request paths to the path actually fetched. Defaults to
	// DefaultAliases.
	Aliases map[string]string
}

// CacheName returns the container name for this generation.
func (c Config) CacheName() string {
	return fmt.Sprintf("%s-v%d", c.AppName, c.Version)
}

// withDefaults fills unset fields and validates the result.
func (c Config) withDefaults() (Config, error) {
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	if c.Version < 1 {
		return c, fmt.Errorf("%w: version must be >= 1, got %d", ErrInvalidConfig, c.Version)
	}
	if c.Origin == nil || c.Origin.Scheme == "" || c.Origin.Host == "" {
		return c, fmt.Errorf("%w: origin must be an absolute URL", ErrInvalidConfig)
	}
	if c.CoreAssets == nil {
		c.CoreAssets = DefaultCoreAssets
	}
	if c.ShellPath == "" {
		c.ShellPath = DefaultShellPath
	}
	if c.Aliases == nil {
		c.Aliases = DefaultAliases
	}
	return c, nil
}

// sameOrigin reports whether u has the configured scheme and host.
func (c Config) sameOrigin(u *url.URL) bool {
	return u.Scheme == c.Origin.Scheme && u.Host == c.Origin.Host
}

// resolve returns the absolute URL of a path on the origin.
func (c Config) resolve(path string) *url.URL {
	return c.Origin.ResolveReference(&url.URL{Path: path})
}
