package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/docmask/internal/imageio"
	"github.com/andresmejia3/docmask/internal/mask"
	"github.com/andresmejia3/docmask/internal/ocr"
	"github.com/andresmejia3/docmask/internal/redactor"
	"github.com/andresmejia3/docmask/internal/store"
	"github.com/andresmejia3/docmask/internal/types"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/andresmejia3/docmask/internal/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// RedactOptions holds the redact command's inputs once flags and config are merged.
type RedactOptions struct {
	Inputs     []string // files or doublestar globs
	TokensFile string
	DumpTokens bool
}

var redactOpts RedactOptions

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Mask sensitive text and dense regions in document images",
	Example: `  docmask redact -i invoice.png
  docmask redact -i 'scans/**/*.jpg' -o redacted --style blur -e 4
  docmask redact -i invoice.png --tokens invoice.tokens.json`,
	Annotations: map[string]string{"db": dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		redactOpts.Inputs = append(redactOpts.Inputs, args...)
		return runRedact(cmd.Context(), redactOpts)
	},
}

func init() {
	redactCmd.Flags().StringSliceVarP(&redactOpts.Inputs, "input", "i", nil, "Input image files or globs (repeatable)")
	redactCmd.Flags().StringVar(&redactOpts.TokensFile, "tokens", "", "Pre-computed OCR tokens (JSON) instead of running Tesseract")
	redactCmd.Flags().BoolVar(&redactOpts.DumpTokens, "dump-tokens", false, "Write the recognized tokens next to each output")

	redactCmd.Flags().StringP("output", "o", "", "Output directory (default: next to each input)")
	redactCmd.Flags().String("style", "", "Redaction style: "+strings.Join(mask.StyleNames(), ", "))
	redactCmd.Flags().String("format", "", "Output format: png, jpeg")
	redactCmd.Flags().IntP("engines", "e", 1, "Number of parallel OCR engines")
	redactCmd.Flags().String("rules", "", "YAML file overriding the classification keywords")
	redactCmd.Flags().String("lang", "", "Tesseract language (default: eng)")
	redactCmd.Flags().String("tessdata", "", "Tesseract tessdata directory")
	redactCmd.Flags().Bool("no-dense", false, "Skip the dense-region (barcode) pass")

	rootCmd.AddCommand(redactCmd)
}

type redactResult struct {
	Path    string
	Output  string
	Report  *redactor.Report
	RunID   string
	Err     error
	Context string // ShowError heading when Err is set
}

func runRedact(ctx context.Context, opts RedactOptions) error {
	// Cancel in-flight OCR if this function returns early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths, err := validateRedactFlags(&opts)
	if err != nil {
		return err
	}

	style := Cfg.MaskStyle()
	if Cfg.OutputDir != "" {
		if err := os.MkdirAll(Cfg.OutputDir, 0o755); err != nil {
			utils.ShowError("Unable to create output directory", err)
			return err
		}
	}

	r, err := buildRedactor(Cfg)
	if err != nil {
		utils.ShowError("Configuration Error", err)
		return err
	}
	factory, err := engineFactory(Cfg, opts.TokensFile)
	if err != nil {
		utils.ShowError("Unable to load OCR tokens", err)
		return err
	}

	engines := min(Cfg.Engines, len(paths))
	fmt.Fprintln(os.Stderr, "🚀 Warming up engines...")
	pool, err := worker.NewPool(engines, factory, utils.WithPrefix("worker"))
	if err != nil {
		utils.ShowError("Worker startup failed", err)
		return err
	}
	defer pool.Close()

	tasks := make([]types.DocumentTask, len(paths))
	for i, p := range paths {
		tasks[i] = types.DocumentTask{Index: i, Path: p}
	}

	bar := progressbar.NewOptions(len(tasks),
		progressbar.OptionSetDescription("Redacting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	// Per-document failures are collected rather than aborting the batch; only
	// cancellation stops the run.
	results, err := worker.Run(ctx, pool, tasks, func(ctx context.Context, w *worker.Worker, task types.DocumentTask) (redactResult, error) {
		res := redactDocument(ctx, w, r, task.Path, style, opts)
		bar.Add(1)
		if res.Err != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, nil
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			utils.ShowError(fmt.Sprintf("%s: %s", res.Context, res.Path), res.Err)
		}
	}
	printRedactSummary(results)

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

// redactDocument runs the full pipeline for one file on worker w.
func redactDocument(ctx context.Context, w *worker.Worker, r *redactor.Redactor, path string, style mask.Style, opts RedactOptions) redactResult {
	res := redactResult{Path: path}
	fail := func(what string, err error) redactResult {
		res.Context, res.Err = what, err
		return res
	}

	img, _, err := imageio.DecodeFile(path)
	if err != nil {
		return fail("Unable to read image", err)
	}
	tokens, err := w.Recognize(ctx, img)
	if err != nil {
		return fail("OCR failed", err)
	}
	out, report, err := r.Redact(img, tokens, style)
	if err != nil {
		return fail("Redaction failed", err)
	}

	format := Cfg.OutputFormat()
	res.Output = imageio.OutputPath(path, Cfg.OutputDir, format)
	if err := imageio.WriteFile(res.Output, out, format); err != nil {
		return fail("Unable to write output", err)
	}
	res.Report = report

	if opts.DumpTokens {
		if err := writeTokenFile(tokenPath(res.Output), tokens); err != nil {
			return fail("Unable to write tokens", err)
		}
	}

	if DB != nil {
		runID, err := auditDocument(ctx, path, res.Output, img.Bounds().Dx(), img.Bounds().Dy(), report)
		if err != nil {
			// The redacted file is already on disk; a missing audit row is reported, not fatal.
			utils.Logger().Warn("audit failed", "file", path, "err", err)
		} else {
			res.RunID = runID
		}
	}
	return res
}

func auditDocument(ctx context.Context, path, output string, width, height int, report *redactor.Report) (string, error) {
	docID, err := utils.GenerateDocumentID(path)
	if err != nil {
		return "", err
	}
	if err := DB.EnsureDocument(ctx, docID, path, width, height); err != nil {
		return "", err
	}
	run := store.NewRun(docID, path, output, report)
	if err := DB.InsertRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID.String(), nil
}

// tokenPath maps "a.redacted.png" to "a.redacted.tokens.json".
func tokenPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".tokens.json"
}

func writeTokenFile(path string, tokens []types.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ocr.WriteTokens(f, tokens); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRedactSummary(results []redactResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tTOKENS\tFLAGGED\tDENSE\tOUTPUT")
	fmt.Fprintln(w, "----\t------\t-------\t-----\t------")
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\tFAILED\n", res.Path)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", res.Path, res.Report.Tokens,
			res.Report.Classification.Count(), res.Report.DenseRegions(), res.Output)
	}
	w.Flush()
}

// expandInputs resolves files and globs into a sorted, de-duplicated list of files.
func expandInputs(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil && !seen[abs] {
			seen[abs] = true
			out = append(out, p)
		}
	}
	for _, pat := range patterns {
		if !strings.ContainsAny(pat, "*?[{") {
			info, err := os.Stat(pat)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory, expected an image file or glob", pat)
			}
			add(pat)
			continue
		}
		matches, err := doublestar.FilepathGlob(pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", pat, err)
		}
		for _, m := range matches {
			// Globs never pick up the outputs of an earlier run.
			if !isGenerated(m) {
				add(m)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no files match %s", strings.Join(patterns, ", "))
	}
	sort.Strings(out)
	return out, nil
}

func isGenerated(path string) bool {
	return strings.Contains(filepath.Base(path), ".redacted.")
}

func validateRedactFlags(opts *RedactOptions) ([]string, error) {
	if len(opts.Inputs) == 0 {
		err := errors.New("no input files (use -i <file|glob>)")
		utils.ShowError("Configuration Error", err)
		return nil, err
	}
	paths, err := expandInputs(opts.Inputs)
	if err != nil {
		utils.ShowError("Unable to access input files", err)
		return nil, err
	}

	// Outputs must not overwrite each other ("a.png" and "a.jpg" both map to
	// "a.redacted.png").
	outputs := make(map[string]string, len(paths))
	for _, p := range paths {
		out := imageio.OutputPath(p, Cfg.OutputDir, Cfg.OutputFormat())
		outAbs, _ := filepath.Abs(out)
		if prev, dup := outputs[outAbs]; dup {
			err := fmt.Errorf("%s and %s would both be written to %s", prev, p, out)
			utils.ShowError("Configuration Error", err)
			return nil, err
		}
		outputs[outAbs] = p
	}

	// A token file describes exactly one page.
	if opts.TokensFile != "" && len(paths) > 1 {
		err := fmt.Errorf("--tokens applies to a single input, got %d", len(paths))
		utils.ShowError("Configuration Error", err)
		return nil, err
	}
	return paths, nil
}
