package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/docmask/internal/imageio"
	"github.com/andresmejia3/docmask/internal/ocr"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/spf13/cobra"
)

var tokensOut string

var tokensCmd = &cobra.Command{
	Use:   "tokens <image>",
	Short: "Run OCR on an image and print its tokens as JSON",
	Long: `Prints the recognized words with their boxes in the format accepted by
"redact --tokens". Edit the file to correct OCR mistakes, then replay it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		img, _, err := imageio.DecodeFile(args[0])
		if err != nil {
			utils.ShowError("Unable to read image", err)
			return err
		}
		engine, err := ocr.NewTesseract(ocr.TesseractConfig{
			Language:     Cfg.OCR.Language,
			TessdataPath: Cfg.OCR.Tessdata,
		})
		if err != nil {
			utils.ShowError("OCR engine startup failed", err)
			return err
		}
		defer engine.Close()

		toks, err := engine.Recognize(cmd.Context(), img)
		if err != nil {
			utils.ShowError("OCR failed", err)
			return err
		}

		if tokensOut == "" {
			return ocr.WriteTokens(os.Stdout, toks)
		}
		if err := writeTokenFile(tokensOut, toks); err != nil {
			utils.ShowError("Unable to write tokens", err)
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ %d tokens written to %s\n", len(toks), tokensOut)
		return nil
	},
}

func init() {
	tokensCmd.Flags().StringVarP(&tokensOut, "file", "f", "", "Write tokens to this file instead of stdout")
	tokensCmd.Flags().String("lang", "", "Tesseract language (default: eng)")
	tokensCmd.Flags().String("tessdata", "", "Tesseract tessdata directory")
	rootCmd.AddCommand(tokensCmd)
}
