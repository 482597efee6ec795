package cmd

import (
	"fmt"

	"github.com/andresmejia3/docmask/internal/barcode"
	"github.com/andresmejia3/docmask/internal/classify"
	"github.com/andresmejia3/docmask/internal/config"
	"github.com/andresmejia3/docmask/internal/ocr"
	"github.com/andresmejia3/docmask/internal/redactor"
	"github.com/andresmejia3/docmask/internal/utils"
)

// loadRules returns the configured ruleset, or the built-in one.
func loadRules(cfg config.Config) (classify.Rules, error) {
	if cfg.RulesFile == "" {
		return classify.DefaultRules(), nil
	}
	return classify.LoadRules(cfg.RulesFile)
}

// buildRedactor wires the classifier and scanner selected by cfg.
func buildRedactor(cfg config.Config) (*redactor.Redactor, error) {
	rules, err := loadRules(cfg)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	c, err := classify.New(rules)
	if err != nil {
		return nil, err
	}
	var sc *barcode.Scanner
	if s := cfg.ScannerSettings(); s != nil {
		sc = barcode.New(*s)
	}
	return redactor.New(c,
		redactor.WithScanner(sc),
		redactor.WithLogger(utils.WithPrefix("redactor")),
	), nil
}

// engineFactory returns Tesseract engines, or replays a token file when one
// is given.
func engineFactory(cfg config.Config, tokensFile string) (ocr.Factory, error) {
	if tokensFile != "" {
		toks, err := ocr.LoadTokenFile(tokensFile)
		if err != nil {
			return nil, fmt.Errorf("load tokens: %w", err)
		}
		return ocr.StaticFactory(toks), nil
	}
	return ocr.TesseractFactory(ocr.TesseractConfig{
		Language:     cfg.OCR.Language,
		TessdataPath: cfg.OCR.Tessdata,
	}), nil
}
