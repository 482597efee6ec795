package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/docmask/internal/store"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

var (
	resetTables bool
	resetFiles  bool
	resetYes    bool
	resetDir    string
)

// generatedPatterns match everything redact writes.
var generatedPatterns = []string{"**/*.redacted.*", "**/*.tokens.json"}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (audit tables, redacted outputs)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	// The database is opened below only when tables are being dropped.
	Annotations: map[string]string{"db": dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetTables && !resetFiles {
			resetTables = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)
		ok := func(prompt string) bool { return resetYes || confirm(reader, os.Stdout, prompt) }

		if resetTables && ok("⚠️  Are you sure you want to DROP all database tables?") {
			if DB == nil {
				url, _ := resolveDBURL()
				var err error
				if DB, err = store.New(cmd.Context(), url); err != nil {
					utils.ShowError("Failed to connect to database", err)
					return err
				}
			}
			fmt.Println("🗑️  Clearing Database...")
			if err := DB.Reset(cmd.Context()); err != nil {
				utils.ShowError("Failed to reset database", err)
				return err
			}
		}

		if resetFiles {
			dir := resetDir
			if dir == "" {
				dir = Cfg.OutputDir
			}
			if dir == "" {
				dir = "."
			}
			files, err := generatedFiles(dir)
			if err != nil {
				utils.ShowError("Unable to list generated files", err)
				return err
			}
			prompt := fmt.Sprintf("⚠️  Are you sure you want to delete %d generated files under %s?", len(files), dir)
			if len(files) > 0 && ok(prompt) {
				fmt.Println("🗑️  Clearing Output Files (redacted images, token dumps)...")
				for _, f := range files {
					removeFile(f)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetTables, "tables", false, "Drop the PostgreSQL audit tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Delete generated files (redacted images, token dumps)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	resetCmd.Flags().StringVar(&resetDir, "dir", "", "Directory to clean (default: configured output directory, else .)")
	rootCmd.AddCommand(resetCmd)
}

// generatedFiles lists outputs of earlier runs under dir, sorted.
func generatedFiles(dir string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pat := range generatedPatterns {
		matches, err := doublestar.Glob(os.DirFS(dir), pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			p := filepath.Join(dir, filepath.FromSlash(m))
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
