package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/internal/assetcache"
	"github.com/mesh-intelligence/medtrack/internal/paths"
)

// openCacheStorage opens the configured asset cache storage.
func (a *app) openCacheStorage() (assetcache.Storage, error) {
	switch kind := a.v.GetString(cfgKeyCacheStorage); kind {
	case cacheStorageMemory:
		return assetcache.NewMemoryStorage(), nil
	case cacheStorageBadger:
		dir, err := paths.ResolveCacheDir(a.v.GetString(cfgKeyCacheDir))
		if err != nil {
			return nil, sysError(fmt.Errorf("resolve cache dir: %w", err))
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sysError(fmt.Errorf("create cache dir: %w", err))
		}
		st, err := assetcache.OpenBadger(dir, a.logger)
		if err != nil {
			return nil, sysError(err)
		}
		return st, nil
	default:
		return nil, userError(fmt.Errorf("cache storage %q: use badger or memory", kind))
	}
}

// cacheConfig builds the worker config from config.yaml, with origin
// overriding cache.origin when set.
func (a *app) cacheConfig(origin string) (assetcache.Config, error) {
	raw := cmpString(origin, a.v.GetString(cfgKeyCacheOrigin))
	if raw == "" {
		return assetcache.Config{}, userError(fmt.Errorf("no origin: set --origin or %s", cfgKeyCacheOrigin))
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return assetcache.Config{}, userError(fmt.Errorf("invalid origin %q", raw))
	}
	return assetcache.Config{
		AppName: a.v.GetString(cfgKeyCacheAppName),
		Version: a.v.GetInt(cfgKeyCacheVersion),
		Origin:  u,
	}, nil
}

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline asset cache",
	}
	cmd.AddCommand(newCacheListCmd(a), newCachePurgeCmd(a))
	return cmd
}

// containerInfo is one row of cache list.
type containerInfo struct {
	Name    string   `json:"name"`
	Entries int      `json:"entries"`
	Keys    []string `json:"keys,omitempty"`
}

func newCacheListCmd(a *app) *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cache containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openCacheStorage()
			if err != nil {
				return err
			}
			defer st.Close()
			names, err := st.Names()
			if err != nil {
				return sysError(err)
			}
			slices.Sort(names)
			infos := make([]containerInfo, 0, len(names))
			for _, name := range names {
				keys, err := st.Keys(name)
				if err != nil {
					return sysError(err)
				}
				slices.Sort(keys)
				info := containerInfo{Name: name, Entries: len(keys)}
				if showKeys {
					info.Keys = keys
				}
				infos = append(infos, info)
			}
			return a.emit(cmd, infos, func(w io.Writer) {
				if len(infos) == 0 {
					fmt.Fprintln(w, "No cache containers.")
					return
				}
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					rows = append(rows, []string{info.Name, strconv.Itoa(info.Entries)})
				}
				printTable(w, []string{"CONTAINER", "ENTRIES"}, rows)
				for _, info := range infos {
					for _, k := range info.Keys {
						fmt.Fprintf(w, "%s  %s\n", info.Name, k)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&showKeys, "keys", false, "also list cached request keys")
	return cmd
}

func newCachePurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [container...]",
		Short: "Delete cache containers",
		Long:  "Purge deletes the named containers, or every container when none is named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openCacheStorage()
			if err != nil {
				return err
			}
			defer st.Close()
			names := args
			if len(names) == 0 {
				if names, err = st.Names(); err != nil {
					return sysError(err)
				}
			}
			deleted := []string{}
			for _, name := range names {
				ok, err := st.Delete(name)
				if err != nil {
					return sysError(fmt.Errorf("delete %s: %w", name, err))
				}
				if ok {
					deleted = append(deleted, name)
				}
			}
			return a.emit(cmd, map[string][]string{"deleted": deleted}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d container(s)\n", len(deleted))
			})
		},
	}
}
