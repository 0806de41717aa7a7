package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Empty path",
			input:    "",
			expected: "",
		},
		{
			name:     "Absolute path",
			input:    "/absolute/path",
			expected: "/absolute/path",
		},
		{
			name:     "Relative path",
			input:    "relative/path",
			expected: "relative/path",
		},
		{
			name:     "Home directory only",
			input:    "~",
			expected: home,
		},
		{
			name:     "Home directory with forward slash",
			input:    "~/Downloads",
			expected: filepath.Join(home, "Downloads"),
		},
		{
			name:     "Home directory with backslash",
			input:    `~\Downloads`,
			expected: filepath.Join(home, "Downloads"),
		},
		{
			name:     "Tilde in the middle",
			input:    "/path/~/test",
			expected: "/path/~/test",
		},
		{
			name:     "Tilde without separator",
			input:    "~user",
			expected: "~user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2048, cfg.MaxUploadMB)
	assert.Equal(t, int64(2048)*1024*1024, cfg.MaxUploadBytes())
	assert.Equal(t, 180*time.Second, cfg.Resolve.Deadline)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoadFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_upload_mb: 50
resolve:
  deadline: 1m
backends:
  tiktok: https://tt.example/
sites:
  - match: terasharelink
    platform: terabox
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxUploadMB)
	assert.Equal(t, time.Minute, cfg.Resolve.Deadline)
	assert.Equal(t, 30*time.Second, cfg.Resolve.CallTimeout)
	assert.Equal(t, "https://tt.example/", cfg.Backends.TikTok)
	assert.Equal(t, 8080, cfg.Server.Port)

	site := cfg.MatchSite("https://www.TeraShareLink.com/s/1abc")
	require.NotNil(t, site)
	assert.Equal(t, "terabox", site.Platform)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero upload limit", "max_upload_mb: 0\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"unknown site platform", "sites:\n  - match: x\n    platform: vimeo\n"},
		{"bad backend url", "backends:\n  generic: not a url\n"},
		{"malformed yaml", "max_upload_mb: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := DefaultConfig()
	cfg.MaxUploadMB = 100
	cfg.AddSite("mirror.example", "generic")

	require.NoError(t, SaveFile(cfg, path))
	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100, got.MaxUploadMB)
	assert.Equal(t, cfg.Resolve, got.Resolve)
	assert.Equal(t, cfg.Sites, got.Sites)
}

func TestApplyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvMaxUploadMB, "64")
	t.Setenv(EnvYtDLPPath, "/opt/yt-dlp")
	t.Setenv(EnvAPIKey, "secret")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 64, cfg.MaxUploadMB)
	assert.Equal(t, "/opt/yt-dlp", cfg.YtDLPPath)
	assert.Equal(t, "secret", cfg.Server.APIKey)
}

func TestApplyEnvDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(EnvMaxUploadMB, "")
	os.Unsetenv(EnvMaxUploadMB)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MAX_UPLOAD_MB=12\n"), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 12, cfg.MaxUploadMB)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvMaxUploadMB, "lots")
	assert.Error(t, DefaultConfig().ApplyEnv())

	t.Setenv(EnvMaxUploadMB, "0")
	assert.Error(t, DefaultConfig().ApplyEnv())
}

func TestSites(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddSite("a.example", "generic")
	cfg.AddSite("a.example", "terabox")
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "terabox", cfg.MatchSite("https://a.example/x").Platform)
	assert.Nil(t, cfg.MatchSite("https://b.example/"))

	assert.True(t, cfg.RemoveSite("a.example"))
	assert.False(t, cfg.RemoveSite("a.example"))
	assert.Nil(t, (*Config)(nil).MatchSite("x"))
}
