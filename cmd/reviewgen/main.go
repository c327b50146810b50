package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/reviewgen/internal/apperr"
	"github.com/TobiSchelling/reviewgen/internal/config"
	"github.com/TobiSchelling/reviewgen/internal/dashboard"
	"github.com/TobiSchelling/reviewgen/internal/database"
	"github.com/TobiSchelling/reviewgen/internal/extract"
	"github.com/TobiSchelling/reviewgen/internal/generate"
	"github.com/TobiSchelling/reviewgen/internal/imagegen"
	"github.com/TobiSchelling/reviewgen/internal/llm"
	"github.com/TobiSchelling/reviewgen/internal/spell"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", apperr.KindOf(err), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "reviewgen",
	Short:         "SEO product review generator",
	Long:          "reviewgen scrapes a product page, drafts a review article with a language model, audits its spelling and submits hero-image prompts.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			setupLogging(config.Logging{Level: "info", Format: "console"}, os.Stderr)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case errors.Is(err, config.ErrNoConfig):
			cfg = config.Default()
		case err != nil:
			return err
		default:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		}

		setupLogging(cfg.Logging, os.Stderr)
		if path != "" {
			log.Debug().Str("path", path).Msg("config loaded")
		} else {
			log.Debug().Msg("no config file found, using defaults")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(spellcheckCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

// setupLogging configures the global zerolog logger. Logs go to w so that
// stdout stays clean for command output.
func setupLogging(lc config.Logging, w io.Writer) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reviewgen", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/reviewgen/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the LLM provider and the env vars holding your API keys.")
		return nil
	},
}

// openDB opens the history store, or returns nil when history is disabled.
func openDB() (*database.DB, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(database.DefaultPath(dataDir))
}

func newExtractor() *extract.Extractor {
	return extract.New(extract.Config{
		Timeout:      cfg.Extraction.Timeout(),
		UserAgent:    cfg.Extraction.UserAgent,
		MaxBodyBytes: cfg.Extraction.MaxBodyBytes,
	}, nil)
}

// newController wires the workflow collaborators from config. db may be nil.
func newController(db *database.DB) *dashboard.Controller {
	provider := llm.CreateProvider(cfg.Generation)
	auditor := spell.FromConfig(cfg.Spellcheck)

	deps := dashboard.Deps{
		Extractor: newExtractor(),
		Generator: generate.NewOrchestrator(provider, auditor, generate.Settings{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
		}),
		Auditor: auditor,
		Images:  imagegen.FromConfig(cfg.Images),
	}
	if db != nil {
		deps.History = db
		deps.ImageLog = dashboard.NewDBLog(db)
	}
	return dashboard.New(deps)
}

func closeDB(db *database.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing history database")
	}
}
