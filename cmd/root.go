package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/docmask/internal/config"
	"github.com/andresmejia3/docmask/internal/store"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// DB is the global database connection shared by subcommands. It stays nil
	// when a command runs without an audit database.
	DB *store.Store
	// Cfg is the effective configuration, loaded before every command.
	Cfg config.Config

	dbURL      string
	configPath string
	logLevel   string
)

// Version is the application version.
const Version = "0.1.0"

// Database requirement of a command, stored under the "db" annotation.
const (
	dbRequired = "required" // history, reset: connect or fail
	dbOptional = "optional" // redact, serve: audit when a database is configured
)

// flagKeys maps CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"style":      "style",
	"format":     "format",
	"output":     "output_dir",
	"engines":    "engines",
	"rules":      "rules_file",
	"log-level":  "log_level",
	"lang":       "ocr.language",
	"tessdata":   "ocr.tessdata",
	"no-dense":   "scanner.disabled",
	"listen":     "server.listen",
	"pool":       "server.pool_size",
	"max-upload": "server.max_upload_mb",
}

var rootCmd = &cobra.Command{
	Use:     "docmask",
	Short:   "Redact personal and financial data from scanned documents",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				overrides[key] = f.Value.String()
			}
		}
		cfg, err := config.Load(config.LoadOptions{ConfigPath: configPath, FlagOverrides: overrides})
		if err != nil {
			utils.ShowError("Configuration Error", err)
			return err
		}
		Cfg = cfg
		utils.SetDefaultLogger(utils.InitLogger(utils.LoggerOptions{
			Level:           cfg.LogLevel,
			Output:          os.Stderr,
			ReportTimestamp: true,
		}))

		need := cmd.Annotations["db"]
		if need == "" {
			return nil
		}
		url, configured := resolveDBURL()
		if need == dbOptional && !configured {
			utils.Logger().Debug("no database configured, audit disabled")
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

// resolveDBURL picks the connection string from --db, the config file or the
// POSTGRES_* environment. The second result reports whether any of them was
// set; otherwise the local default is returned.
func resolveDBURL() (string, bool) {
	if dbURL != "" {
		return dbURL, true
	}
	if Cfg.Database != "" {
		return Cfg.Database, true
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name), true
	}
	return "postgres://localhost:5432/docmask", false
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/docmask)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./docmask.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}
