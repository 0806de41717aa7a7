package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage vresolve configuration",
	Long:  "View and modify vresolve settings, including site aliases",
}

// vresolve config show - show current config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		bold.Fprintln(w, "Current configuration:")
		for _, key := range configKeys {
			value, _ := getConfigValue(cfg, key)
			if key == "server.api_key" && value != "" {
				value = "********"
			}
			fmt.Fprintf(w, "  %s %s\n", cell(key, 24), value)
		}
		fmt.Fprintf(w, "  %s %s\n", cell("config", 24), config.SavePath())

		if len(cfg.Sites) > 0 {
			bold.Fprintln(w, "\nSites:")
			for _, s := range cfg.Sites {
				fmt.Fprintf(w, "  %s -> %s\n", s.Match, s.Platform)
			}
		}
		return nil
	},
}

// vresolve config path - show config file path
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.SavePath())
	},
}

// vresolve config set KEY [VALUE] - set a config value
var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value in config.yml.

Supported keys:
  max_upload_mb          Delivery size limit in MiB
  output_dir             Default directory for fetch and serve
  ytdlp_path             yt-dlp executable
  ffmpeg_path            ffmpeg executable
  resolve.deadline       Overall resolution deadline (e.g. 3m)
  session.ttl            How long quality choices are kept (e.g. 30m)
  session.max_entries    Max stored quality choices
  server.port            Server listen port
  server.max_concurrent  Max concurrent transfer jobs
  server.api_key         Server API key (prompted when omitted)

Examples:
  vresolve config set max_upload_mb 50
  vresolve config set output_dir ~/Videos
  vresolve config set server.api_key`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else if key == "server.api_key" && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			value = strings.TrimSpace(string(b))
		} else {
			return fmt.Errorf("missing value for %s", key)
		}

		cfg := config.LoadOrDefault()
		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if key == "server.api_key" {
			value = "********"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

// vresolve config get KEY - get a config value
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := getConfigValue(config.LoadOrDefault(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

// vresolve config unset KEY - reset a config value to its default
var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadOrDefault()
		if err := unsetConfigValue(cfg, args[0]); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
		return nil
	},
}

var configKeys = []string{
	"max_upload_mb",
	"output_dir",
	"ytdlp_path",
	"ffmpeg_path",
	"resolve.deadline",
	"session.ttl",
	"session.max_entries",
	"server.port",
	"server.max_concurrent",
	"server.api_key",
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s\nRun 'vresolve config set --help' to see supported keys", key)
}

// setConfigValue sets a config value by key
func setConfigValue(cfg *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	}
	duration := func() (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		return d, nil
	}

	var err error
	switch key {
	case "max_upload_mb":
		cfg.MaxUploadMB, err = atoi()
	case "output_dir":
		cfg.OutputDir = value
	case "ytdlp_path":
		cfg.YtDLPPath = value
	case "ffmpeg_path":
		cfg.FFmpegPath = value
	case "resolve.deadline":
		cfg.Resolve.Deadline, err = duration()
	case "session.ttl":
		cfg.Session.TTL, err = duration()
	case "session.max_entries":
		cfg.Session.MaxEntries, err = atoi()
	case "server.port":
		cfg.Server.Port, err = atoi()
	case "server.max_concurrent":
		cfg.Server.MaxConcurrent, err = atoi()
	case "server.api_key":
		cfg.Server.APIKey = value
	default:
		return unknownKey(key)
	}
	return err
}

// getConfigValue gets a config value by key
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "max_upload_mb":
		return strconv.Itoa(cfg.MaxUploadMB), nil
	case "output_dir":
		return cfg.OutputDir, nil
	case "ytdlp_path":
		return cfg.YtDLPPath, nil
	case "ffmpeg_path":
		return cfg.FFmpegPath, nil
	case "resolve.deadline":
		return cfg.Resolve.Deadline.String(), nil
	case "session.ttl":
		return cfg.Session.TTL.String(), nil
	case "session.max_entries":
		return strconv.Itoa(cfg.Session.MaxEntries), nil
	case "server.port":
		return strconv.Itoa(cfg.Server.Port), nil
	case "server.max_concurrent":
		return strconv.Itoa(cfg.Server.MaxConcurrent), nil
	case "server.api_key":
		return cfg.Server.APIKey, nil
	}
	return "", unknownKey(key)
}

// unsetConfigValue restores the default for key
func unsetConfigValue(cfg *config.Config, key string) error {
	value, err := getConfigValue(config.DefaultConfig(), key)
	if err != nil {
		return err
	}
	return setConfigValue(cfg, key, value)
}

// --- site aliases ---

var configSiteCmd = &cobra.Command{
	Use:     "site",
	Short:   "Route extra domains to a platform",
	Aliases: []string{"sites"},
}

var configSiteListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List site aliases",
	Aliases: []string{"ls"},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadOrDefault()
		if len(cfg.Sites) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No site aliases configured.")
			return
		}
		for _, s := range cfg.Sites {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cell(s.Match, 32), s.Platform)
		}
	},
}

var configSiteAddCmd = &cobra.Command{
	Use:   "add <match> <platform>",
	Short: "Route URLs containing match to platform",
	Long: fmt.Sprintf(`Route URLs containing match to a platform chain.

Platforms: %s

Example:
  vresolve config site add terasharelink terabox`, strings.Join(config.Platforms, ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadOrDefault()
		cfg.AddSite(args[0], args[1])
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s -> %s\n", args[0], args[1])
		return nil
	},
}

var configSiteRemoveCmd = &cobra.Command{
	Use:     "remove <match>",
	Short:   "Remove a site alias",
	Aliases: []string{"rm", "delete"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadOrDefault()
		if !cfg.RemoveSite(args[0]) {
			return fmt.Errorf("site alias %q not found", args[0])
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configUnsetCmd)

	configSiteCmd.AddCommand(configSiteListCmd)
	configSiteCmd.AddCommand(configSiteAddCmd)
	configSiteCmd.AddCommand(configSiteRemoveCmd)
	configCmd.AddCommand(configSiteCmd)

	rootCmd.AddCommand(configCmd)
}
