package paths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirs_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name string
		env  string
		val  string
		fn   func() (string, error)
		want string
	}{
		{"config uses XDG_CONFIG_HOME", "XDG_CONFIG_HOME", "/tmp/xdg-config", DefaultConfigDir, "/tmp/xdg-config/medtrack"},
		{"config falls back to ~/.config", "XDG_CONFIG_HOME", "", DefaultConfigDir, filepath.Join(home, ".config", "medtrack")},
		{"data uses XDG_DATA_HOME", "XDG_DATA_HOME", "/tmp/xdg-data", DefaultDataDir, "/tmp/xdg-data/medtrack"},
		{"data falls back to ~/.local/share", "XDG_DATA_HOME", "", DefaultDataDir, filepath.Join(home, ".local", "share", "medtrack")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultDirs_Darwin(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("darwin-only test")
	}
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	want := filepath.Join(home, "Library", "Application Support", "medtrack")

	got, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	got, err = DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDefaultCacheDir(t *testing.T) {
	orig := platformDir.userCacheDir
	t.Cleanup(func() { platformDir.userCacheDir = orig })

	platformDir.userCacheDir = func() (string, error) { return "/tmp/cache", nil }
	got, err := DefaultCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cache/medtrack/assets", got)

	platformDir.userCacheDir = func() (string, error) { return "", errors.New("no cache dir") }
	_, err = DefaultCacheDir()
	assert.Error(t, err)
}

func TestHomeDirError_Linux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux-only test")
	}
	orig := platformDir.homeDir
	t.Cleanup(func() { platformDir.homeDir = orig })
	platformDir.homeDir = func() (string, error) { return "", errors.New("no home") }

	t.Setenv("XDG_CONFIG_HOME", "")
	_, err := DefaultConfigDir()
	assert.Error(t, err)
}

func TestResolveConfigDir(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		envVal  string
		wantSub string // substring the result must contain
	}{
		{name: "flag wins over env", flag: "/explicit/config", envVal: "/env/config", wantSub: "/explicit/config"},
		{name: "env wins when flag empty", envVal: "/env/config", wantSub: "/env/config"},
		{name: "platform default when both empty", wantSub: "medtrack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigDir, tt.envVal)
			got, err := ResolveConfigDir(tt.flag)
			require.NoError(t, err)
			assert.Contains(t, got, tt.wantSub)
		})
	}
}

func TestResolveDataDir(t *testing.T) {
	def, err := DefaultDataDir()
	require.NoError(t, err)

	tests := []struct {
		name          string
		flag          string
		configYAMLVal string
		envVal        string
		want          string
	}{
		{name: "flag wins over all", flag: "/flag/data", configYAMLVal: "/config/data", envVal: "/env/data", want: "/flag/data"},
		{name: "config.yaml wins over env", configYAMLVal: "/config/data", envVal: "/env/data", want: "/config/data"},
		{name: "env wins when flag and config empty", envVal: "/env/data", want: "/env/data"},
		{name: "platform default when all empty", want: def},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.envVal)
			got, err := ResolveDataDir(tt.flag, tt.configYAMLVal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCacheDir(t *testing.T) {
	t.Setenv(EnvCacheDir, "/env/cache")
	got, err := ResolveCacheDir("/config/cache")
	require.NoError(t, err)
	assert.Equal(t, "/config/cache", got)

	got, err = ResolveCacheDir("")
	require.NoError(t, err)
	assert.Equal(t, "/env/cache", got)
}

func TestResolve_AbsolutePath(t *testing.T) {
	t.Run("relative config flag becomes absolute", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		got, err := ResolveConfigDir("relative/path")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
	})

	t.Run("relative data env becomes absolute", func(t *testing.T) {
		t.Setenv(EnvDataDir, "relative/env")
		got, err := ResolveDataDir("", "")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got), "expected absolute path, got %s", got)
	})
}
