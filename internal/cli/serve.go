package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/medtrack/internal/assetcache"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen, origin string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web app through the offline asset cache",
		Long: `Serve runs a local proxy to the web app origin. The core assets are
cached on start; afterwards navigations fall back to the cached shell and
static assets are served from the cache when the origin is unreachable.

If the origin cannot be reached on start, a complete earlier install of
the same cache version is reused.

Example:
  medtrack serve --origin https://tracker.example.com --listen 127.0.0.1:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.cacheConfig(origin)
			if err != nil {
				return err
			}
			st, err := a.openCacheStorage()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := assetcache.RegisterViews(); err != nil {
				return sysError(fmt.Errorf("register views: %w", err))
			}
			defer view.Unregister(assetcache.Views...)

			reg, err := a.startWorker(cmd.Context(), cfg, st)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			srv := &http.Server{
				Addr:              listen,
				Handler:           assetcache.NewShellProxy(reg, cfg.Origin, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", cfg.Origin, listen)

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return sysError(fmt.Errorf("serve: %w", err))
				}
			case <-ctx.Done():
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					return sysError(fmt.Errorf("shutdown: %w", err))
				}
			}
			a.logCacheStats()
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&origin, "origin", "", "web app origin (default: cache.origin)")
	return cmd
}

// startWorker installs the configured cache generation, falling back to an
// earlier complete install when the origin is unreachable.
func (a *app) startWorker(ctx context.Context, cfg assetcache.Config, st assetcache.Storage) (*assetcache.Registration, error) {
	reg := assetcache.NewRegistration(assetcache.Policy{
		SkipWaiting:  a.v.GetBool(cfgKeyCacheSkipWaiting),
		ClientsClaim: a.v.GetBool(cfgKeyCacheClaim),
	}, nil, a.logger)
	w, err := assetcache.NewWorker(cfg, st, assetcache.WithLogger(a.logger))
	if err != nil {
		return nil, userError(err)
	}

	ictx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	installErr := reg.Register(ictx, w)
	if installErr == nil {
		return reg, nil
	}
	a.logger.Warn("install failed, trying previous install", zap.Error(installErr))

	w, err = assetcache.NewWorker(cfg, st, assetcache.WithLogger(a.logger))
	if err != nil {
		return nil, userError(err)
	}
	if err := reg.Restore(ctx, w); err != nil {
		return nil, sysError(fmt.Errorf("%w (restore: %w)", installErr, err))
	}
	return reg, nil
}

func (a *app) logCacheStats() {
	for _, v := range assetcache.Views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		for _, row := range rows {
			count, ok := row.Data.(*view.CountData)
			if !ok {
				continue
			}
			fields := []zap.Field{zap.String("view", v.Name), zap.Int64("count", count.Value)}
			for _, t := range row.Tags {
				fields = append(fields, zap.String(t.Key.Name(), t.Value))
			}
			a.logger.Info("cache stats", fields...)
		}
	}
}
