package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "vresolve"

	// DefaultMaxUploadMB is the largest file, in MiB, the host can deliver
	// as an upload rather than a link
	DefaultMaxUploadMB = 2048
)

// Environment variables that override the config file
const (
	EnvMaxUploadMB = "MAX_UPLOAD_MB"
	EnvYtDLPPath   = "VRESOLVE_YTDLP_PATH"
	EnvFFmpegPath  = "VRESOLVE_FFMPEG_PATH"
	EnvAPIKey      = "VRESOLVE_API_KEY"
)

// ConfigDir returns the standard config directory for vresolve.
// Windows: %APPDATA%\vresolve\
// macOS/Linux: ~/.config/vresolve/
func ConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, AppDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
// e.g., ~/.config/vresolve/config.yml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

type Config struct {
	// MaxUploadMB is the delivery size limit in MiB. Larger or unknown-size
	// media is handed out as a link, and transfers stop at this size.
	MaxUploadMB int `yaml:"max_upload_mb" validate:"gte=1"`

	// Default output directory for `vresolve fetch`
	OutputDir string `yaml:"output_dir,omitempty"`

	// YtDLPPath is the extraction tool executable (default: yt-dlp on PATH)
	YtDLPPath string `yaml:"ytdlp_path,omitempty"`

	// FFmpegPath is the muxer executable. When it cannot be found the
	// embedded WASM build is used.
	FFmpegPath string `yaml:"ffmpeg_path,omitempty"`

	Resolve ResolveConfig `yaml:"resolve"`

	Session SessionConfig `yaml:"session"`

	// Backends overrides individual backend endpoints
	Backends BackendsConfig `yaml:"backends,omitempty"`

	// Sites routes extra URL fragments to a platform chain
	// Example YAML:
	//   sites:
	//     - match: "terasharelink"
	//       platform: "terabox"
	Sites []Site `yaml:"sites,omitempty" validate:"dive"`

	// Server configuration for `vresolve serve`
	Server ServerConfig `yaml:"server"`
}

// ResolveConfig holds chain timing
type ResolveConfig struct {
	Deadline        time.Duration `yaml:"deadline" validate:"gte=0"`
	CallTimeout     time.Duration `yaml:"call_timeout" validate:"gte=0"`
	ScrapeTimeout   time.Duration `yaml:"scrape_timeout" validate:"gte=0"`
	CaptionTimeout  time.Duration `yaml:"caption_timeout" validate:"gte=0"`
	BackendAttempts int           `yaml:"backend_attempts" validate:"gte=0,lte=10"`
	ToolAttempts    int           `yaml:"tool_attempts" validate:"gte=0,lte=10"`
	RetryDelay      time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// SessionConfig bounds the quality-choice session cache
type SessionConfig struct {
	TTL        time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxEntries int           `yaml:"max_entries" validate:"gte=0"`
}

// BackendsConfig holds endpoint overrides. Empty fields keep the built-in
// endpoint.
type BackendsConfig struct {
	YouTubeHQ        string   `yaml:"youtube_hq,omitempty" validate:"omitempty,url"`
	YouTubeLegacy    string   `yaml:"youtube_legacy,omitempty" validate:"omitempty,url"`
	YouTubeTask      string   `yaml:"youtube_task,omitempty" validate:"omitempty,url"`
	TikTok           string   `yaml:"tiktok,omitempty" validate:"omitempty,url"`
	Instagram        []string `yaml:"instagram,omitempty" validate:"omitempty,dive,url"`
	InstagramCaption string   `yaml:"instagram_caption,omitempty"`
	Terabox          []string `yaml:"terabox,omitempty" validate:"omitempty,dive,url"`
	Generic          string   `yaml:"generic,omitempty" validate:"omitempty,url"`
}

// ServerConfig holds HTTP server settings for `vresolve serve`
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `yaml:"port,omitempty" validate:"omitempty,gte=1,lte=65535"`

	// MaxConcurrent is the max number of concurrent fetch jobs (default: 4)
	MaxConcurrent int `yaml:"max_concurrent,omitempty" validate:"gte=0"`

	// APIKey for authentication (optional, if set all requests must include X-API-Key header)
	APIKey string `yaml:"api_key,omitempty"`
}

// MaxUploadBytes returns the delivery limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// DefaultDownloadDir returns the default download directory
// macOS/Windows: ~/Downloads/vresolve
// Linux: ~/downloads
func DefaultDownloadDir() string {
	// Docker: use the default container path (users mount their volume here)
	if IsRunningInDocker() {
		return "/home/vresolve/downloads"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./downloads"
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return filepath.Join(home, "Downloads", AppDirName)
	default:
		return filepath.Join(home, "downloads")
	}
}

// IsRunningInDocker detects if we're running inside a Docker container
func IsRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		if strings.Contains(content, "docker") || strings.Contains(content, "containerd") {
			return true
		}
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxUploadMB: DefaultMaxUploadMB,
		OutputDir:   DefaultDownloadDir(),
		Resolve: ResolveConfig{
			Deadline:        180 * time.Second,
			CallTimeout:     30 * time.Second,
			ScrapeTimeout:   15 * time.Second,
			CaptionTimeout:  10 * time.Second,
			BackendAttempts: 2,
			ToolAttempts:    2,
			RetryDelay:      time.Second,
		},
		Session: SessionConfig{
			TTL:        30 * time.Minute,
			MaxEntries: 1024,
		},
		Server: ServerConfig{
			Port:          8080,
			MaxConcurrent: 4,
		},
	}
}

// Exists checks if config file exists
func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load reads the config from ~/.config/vresolve/config.yml
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Fields missing from the file keep their
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.OutputDir = expandPath(cfg.OutputDir)
	cfg.YtDLPPath = expandPath(cfg.YtDLPPath)
	cfg.FFmpegPath = expandPath(cfg.FFmpegPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ApplyEnv loads a .env file from the working directory when present and
// then applies environment overrides on top of c.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv(EnvMaxUploadMB)); v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxUploadMB, err)
		}
		c.MaxUploadMB = mb
	}
	if v := os.Getenv(EnvYtDLPPath); v != "" {
		c.YtDLPPath = expandPath(v)
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		c.FFmpegPath = expandPath(v)
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Server.APIKey = v
	}
	return c.Validate()
}

// expandPath expands the tilde (~) in the path to the user's home directory.
// Both "~/" and "~\" prefixes are accepted on every platform.
func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		if len(path) == 1 || path[1] == '/' || path[1] == '\\' {
			home, err := os.UserHomeDir()
			if err == nil {
				subPath := path[1:]
				if len(subPath) > 0 && (subPath[0] == '/' || subPath[0] == '\\') {
					subPath = subPath[1:]
				}
				return filepath.Join(home, subPath)
			}
		}
	}

	return path
}

// Save writes the config to ~/.config/vresolve/config.yml
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return SaveFile(cfg, configPath)
}

// SaveFile writes cfg to path, creating parent directories
func SaveFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	header := "# vresolve configuration file\n# Run 'vresolve init' to regenerate with defaults\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// SavePath returns the path where config will be saved
func SavePath() string {
	if path, err := ConfigPath(); err == nil {
		return path
	}
	return ConfigFileName
}

// Init creates a new config.yml with default values
func Init() error {
	if Exists() {
		path, _ := ConfigPath()
		return fmt.Errorf("%s already exists", path)
	}
	return Save(DefaultConfig())
}

// LoadOrDefault loads config if it exists, otherwise returns defaults
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = DefaultConfig()
	}
	return cfg
}
