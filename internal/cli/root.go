package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/guiyumin/vresolve/internal/core/version"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "vresolve [url]",
	Short: "Resolve social media links into direct media URLs",
	Long: `vresolve turns a YouTube, TikTok, Instagram, Terabox or other page link
into the direct media behind it: one file, an album, or a ranked list of
qualities to pick from.

Examples:
  vresolve https://youtu.be/dQw4w9WgXcQ
  vresolve fetch https://www.instagram.com/p/XXXX/
  vresolve fetch --index 2 https://youtu.be/dQw4w9WgXcQ`,
	Version:       version.Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd.ErrOrStderr(), verbose)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		svc, err := resolver.New(cfg)
		if err != nil {
			return err
		}
		return runResolve(cmd, svc, args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log resolution steps")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
}

// Root returns the root command
func Root() *cobra.Command {
	return rootCmd
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the config file when present and applies environment
// overrides. A missing file only warns.
func loadConfig(warn io.Writer) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if config.Exists() {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		fmt.Fprintln(warn, color.YellowString("Config file not found, using defaults. Run 'vresolve init'."))
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultDownloadDir()
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runResolve(cmd *cobra.Command, svc *resolver.Service, input string) error {
	rawURL := extractor.ExtractURL(input)
	if rawURL == "" {
		return fmt.Errorf("no http(s) URL found in %q", input)
	}

	res := svc.Resolve(cmd.Context(), rawURL)
	out := cmd.OutOrStdout()

	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Kind   extractor.ResultKind `json:"kind"`
			Result extractor.Result     `json:"result"`
		}{res.Kind(), res}); err != nil {
			return err
		}
	} else {
		printResult(out, res, svc.MaxBytes())
	}

	if f, ok := res.(*extractor.Failure); ok {
		return f
	}
	return nil
}
