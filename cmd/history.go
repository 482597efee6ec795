package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/docmask/internal/store"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historyDocument string
	historyRun      string
)

var historyCmd = &cobra.Command{
	Use:         "history",
	Short:       "List recorded redaction runs",
	Annotations: map[string]string{"db": dbRequired},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		if historyRun != "" {
			id, err := uuid.Parse(historyRun)
			if err != nil {
				utils.ShowError("Invalid run ID", err)
				return err
			}
			run, err := DB.GetRun(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("No run %s in database.\n", id)
				return nil
			}
			if err != nil {
				utils.ShowError("Failed to load run", err)
				return err
			}
			printRunDetail(os.Stdout, run)
			return nil
		}

		var runs []store.Run
		var err error
		if historyDocument != "" {
			docID, idErr := utils.GenerateDocumentID(historyDocument)
			if idErr != nil {
				utils.ShowError("Unable to access document", idErr)
				return idErr
			}
			runs, err = DB.DocumentRuns(ctx, docID)
		} else {
			runs, err = DB.ListRuns(ctx, historyLimit)
		}
		if err != nil {
			utils.ShowError("Failed to list runs", err)
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No redaction runs found in database.")
			return nil
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to show")
	historyCmd.Flags().StringVar(&historyDocument, "document", "", "Show every run of this image file")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show one run and its masked regions")
	rootCmd.AddCommand(historyCmd)
}

func printRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tFILE\tSTYLE\tTOKENS\tFLAGGED\tDENSE\tRULES\tCREATED")
	fmt.Fprintln(w, "---\t----\t-----\t------\t-------\t-----\t-----\t-------")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Path, r.Style, r.Tokens, r.Flagged, r.Dense,
			strings.Join(r.Rules, ","), r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func printRunDetail(out io.Writer, run *store.Run) {
	fmt.Fprintf(out, "Run:     %s\n", run.ID)
	fmt.Fprintf(out, "File:    %s\n", run.Path)
	fmt.Fprintf(out, "Output:  %s\n", run.Output)
	fmt.Fprintf(out, "Style:   %s\n", run.Style)
	fmt.Fprintf(out, "Created: %s\n\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTOKEN\tX0\tY0\tX1\tY1")
	fmt.Fprintln(w, "------\t-----\t--\t--\t--\t--")
	for _, reg := range run.Regions {
		tok := "-"
		if reg.Token >= 0 {
			tok = fmt.Sprint(reg.Token)
		}
		l := reg.Location
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", reg.Source, tok, l[0], l[1], l[2], l[3])
	}
	w.Flush()
}
