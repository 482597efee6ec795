package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/docmask/internal/server"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/andresmejia3/docmask/internal/worker"
	"github.com/spf13/cobra"
)

var serveTokens string

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the redaction HTTP service",
	Long:        "Serves POST /api/process (multipart field \"file\", optional \"mode\"), GET /api/health and GET /api/styles.",
	Annotations: map[string]string{"db": dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		r, err := buildRedactor(Cfg)
		if err != nil {
			utils.ShowError("Configuration Error", err)
			return err
		}
		factory, err := engineFactory(Cfg, serveTokens)
		if err != nil {
			utils.ShowError("Unable to load OCR tokens", err)
			return err
		}

		fmt.Fprintln(os.Stderr, "🚀 Warming up engines...")
		pool, err := worker.NewPool(Cfg.Server.PoolSize, factory, utils.WithPrefix("worker"))
		if err != nil {
			utils.ShowError("Worker startup failed", err)
			return err
		}
		defer pool.Close()

		opts := server.Options{
			MaxUploadBytes: Cfg.MaxUploadBytes(),
			RequestTimeout: Cfg.Server.RequestTimeout,
			DefaultStyle:   Cfg.MaskStyle(),
		}
		// A nil *store.Store inside the interface would not compare equal to nil.
		if DB != nil {
			opts.Audit = DB
		}

		utils.Logger().Info("listening", "addr", Cfg.Server.Listen, "engines", pool.Size(), "audit", DB != nil)
		return server.New(r, pool, opts).ListenAndServe(cmd.Context(), Cfg.Server.Listen)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (default: :8080)")
	serveCmd.Flags().Int("pool", 0, "Number of OCR engines shared by requests (default: 2)")
	serveCmd.Flags().Int("max-upload", 0, "Maximum upload size in MB (default: 10)")
	serveCmd.Flags().StringVar(&serveTokens, "tokens", "", "Answer every request with a fixed token file instead of Tesseract")

	serveCmd.Flags().String("style", "", "Default redaction style when a request sends no mode")
	serveCmd.Flags().String("rules", "", "YAML file overriding the classification keywords")
	serveCmd.Flags().String("lang", "", "Tesseract language (default: eng)")
	serveCmd.Flags().String("tessdata", "", "Tesseract tessdata directory")
	serveCmd.Flags().Bool("no-dense", false, "Skip the dense-region (barcode) pass")
	rootCmd.AddCommand(serveCmd)
}
