// Package config loads docmask settings with the precedence
// defaults < YAML file < .env / DOCMASK_* environment < CLI flags.
package config

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/docmask/internal/barcode"
	"github.com/andresmejia3/docmask/internal/imageio"
	"github.com/andresmejia3/docmask/internal/mask"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultConfigFile is read from the working directory when no path is given.
const DefaultConfigFile = "docmask.yaml"

// Config is the effective configuration.
type Config struct {
	Style     string        `mapstructure:"style"`
	Format    string        `mapstructure:"format"`
	OutputDir string        `mapstructure:"output_dir"`
	Engines   int           `mapstructure:"engines"`
	RulesFile string        `mapstructure:"rules_file"`
	LogLevel  string        `mapstructure:"log_level"`
	Database  string        `mapstructure:"database_url"`
	OCR       OCRConfig     `mapstructure:"ocr"`
	Scanner   ScannerConfig `mapstructure:"scanner"`
	Server    ServerConfig  `mapstructure:"server"`
}

type OCRConfig struct {
	Language string `mapstructure:"language"`
	Tessdata string `mapstructure:"tessdata"`
}

// ScannerConfig tunes the dense-region scanner.
type ScannerConfig struct {
	WindowWidth  int     `mapstructure:"window_width"`
	WindowHeight int     `mapstructure:"window_height"`
	Step         int     `mapstructure:"step"`
	Threshold    int     `mapstructure:"threshold"`
	Density      float64 `mapstructure:"density"`
	Disabled     bool    `mapstructure:"disabled"`
}

type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	MaxUploadMB    int           `mapstructure:"max_upload_mb"`
	PoolSize       int           `mapstructure:"pool_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	sc := barcode.DefaultConfig()
	return Config{
		Style:    mask.BlackBox.String(),
		Format:   string(imageio.PNG),
		Engines:  1,
		LogLevel: "info",
		OCR:      OCRConfig{Language: "eng"},
		Scanner: ScannerConfig{
			WindowWidth:  sc.Window.X,
			WindowHeight: sc.Window.Y,
			Step:         sc.Step,
			Threshold:    sc.Threshold,
			Density:      sc.Density,
		},
		Server: ServerConfig{
			Listen:         ":8080",
			MaxUploadMB:    10,
			PoolSize:       2,
			RequestTimeout: 60 * time.Second,
		},
	}
}

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath overrides DefaultConfigFile. A missing default file is not an
	// error; a missing explicit path is.
	ConfigPath string
	// EnvFile is loaded into the environment before DOCMASK_* variables are
	// read. Defaults to ".env"; a missing file is ignored.
	EnvFile string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// Load returns the effective configuration.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	setDefaults(v)

	path, explicit := opts.ConfigPath, true
	if path == "" {
		path, explicit = DefaultConfigFile, false
	}
	if err := mergeConfigFile(v, path, explicit); err != nil {
		return Config{}, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Existing environment variables win over the file. A missing file is
	// fine; an unreadable or malformed one is not.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	v.SetEnvPrefix("DOCMASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range opts.FlagOverrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults seeds viper with built-in defaults. Every key must be listed
// here for AutomaticEnv to reach it during Unmarshal.
func setDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("style", def.Style)
	v.SetDefault("format", def.Format)
	v.SetDefault("output_dir", def.OutputDir)
	v.SetDefault("engines", def.Engines)
	v.SetDefault("rules_file", def.RulesFile)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("database_url", def.Database)

	v.SetDefault("ocr.language", def.OCR.Language)
	v.SetDefault("ocr.tessdata", def.OCR.Tessdata)

	v.SetDefault("scanner.window_width", def.Scanner.WindowWidth)
	v.SetDefault("scanner.window_height", def.Scanner.WindowHeight)
	v.SetDefault("scanner.step", def.Scanner.Step)
	v.SetDefault("scanner.threshold", def.Scanner.Threshold)
	v.SetDefault("scanner.density", def.Scanner.Density)
	v.SetDefault("scanner.disabled", def.Scanner.Disabled)

	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("server.max_upload_mb", def.Server.MaxUploadMB)
	v.SetDefault("server.pool_size", def.Server.PoolSize)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout)
}

func mergeConfigFile(v *viper.Viper, path string, explicit bool) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := mask.ParseStyle(c.Style); err != nil {
		return fmt.Errorf("style: %w", err)
	}
	if _, err := imageio.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if c.Engines < 1 {
		return fmt.Errorf("engines must be at least 1, got %d", c.Engines)
	}
	s := c.Scanner
	if s.WindowWidth < 1 || s.WindowHeight < 1 || s.Step < 1 {
		return fmt.Errorf("scanner window and step must be positive")
	}
	if s.Threshold < 1 || s.Threshold > 256 {
		return fmt.Errorf("scanner threshold must be within 1..256, got %d", s.Threshold)
	}
	if s.Density <= 0 || s.Density >= 1 {
		return fmt.Errorf("scanner density must be within (0, 1), got %v", s.Density)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server max_upload_mb must be positive")
	}
	if c.Server.PoolSize < 1 {
		return fmt.Errorf("server pool_size must be at least 1")
	}
	return nil
}

// MaskStyle returns the parsed default style.
func (c Config) MaskStyle() mask.Style {
	s, _ := mask.ParseStyle(c.Style)
	return s
}

// OutputFormat returns the parsed output format.
func (c Config) OutputFormat() imageio.Format {
	f, _ := imageio.ParseFormat(c.Format)
	return f
}

// ScannerSettings returns the scanner configuration, or nil when the dense
// pass is disabled.
func (c Config) ScannerSettings() *barcode.Config {
	if c.Scanner.Disabled {
		return nil
	}
	return &barcode.Config{
		Window:    image.Pt(c.Scanner.WindowWidth, c.Scanner.WindowHeight),
		Step:      c.Scanner.Step,
		Threshold: c.Scanner.Threshold,
		Density:   c.Scanner.Density,
	}
}

// MaxUploadBytes is the request body limit for the HTTP service.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
