package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio = "stdio"
	ModeBatch = "batch"

	// Default values
	DefaultLogLevel    = "info"
	DefaultOCRLanguage = "swe+eng"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for dokmap
type Config struct {
	// Run configuration
	Mode string // "stdio" for the MCP server, "batch" for one-shot runs

	// Document configuration
	DocumentsDir string // directory scanned for input PDFs
	DataDir      string // document store and template storage
	OCRLanguage  string // tesseract language tag

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:         ModeStdio,
		DocumentsDir: currentDir,
		DataDir:      filepath.Join(currentDir, ".dokmap"),
		OCRLanguage:  DefaultOCRLanguage,
		Version:      "1.0.0",
		ServerName:   "dokmap",
		LogLevel:     DefaultLogLevel,
		MaxFileSize:  DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.DocumentsDir != "" {
		if expandedPath, err := filepath.Abs(cfg.DocumentsDir); err == nil {
			cfg.DocumentsDir = expandedPath
		}
	}
	if cfg.DataDir != "" {
		if expandedPath, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("DOKMAP")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("dir", cfg.DocumentsDir)
	viper.SetDefault("datadir", cfg.DataDir)
	viper.SetDefault("lang", cfg.OCRLanguage)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'stdio' for the MCP server, 'batch' for one-shot processing")
	pflag.String("dir", cfg.DocumentsDir, "Directory containing input PDF files")
	pflag.String("datadir", cfg.DataDir, "Directory for the document store and templates")
	pflag.String("lang", cfg.OCRLanguage, "Recognition language tag (tesseract format, e.g. swe+eng)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("dir", pflag.Lookup("dir"))
	_ = viper.BindPFlag("datadir", pflag.Lookup("datadir"))
	_ = viper.BindPFlag("lang", pflag.Lookup("lang"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ndokmap - document clustering and template-driven data extraction\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  # MCP server over stdio, current directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/invoices          # custom document directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --lang=eng --loglevel=debug      # English-only recognition, verbose logs\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_MODE        Run mode\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_DIR         Document directory\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_DATADIR     Data directory\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_LANG        Recognition language tag\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_LOGLEVEL    Log level\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_MAXFILESIZE Maximum file size\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.DocumentsDir = viper.GetString("dir")
	cfg.DataDir = viper.GetString("datadir")
	cfg.OCRLanguage = viper.GetString("lang")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeBatch {
		return errors.New("mode must be either 'stdio' or 'batch'")
	}

	if c.DocumentsDir == "" {
		return errors.New("document directory cannot be empty")
	}
	if c.DataDir == "" {
		return errors.New("data directory cannot be empty")
	}
	if c.OCRLanguage == "" {
		return errors.New("recognition language cannot be empty")
	}

	for _, dir := range []string{c.DocumentsDir, c.DataDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access directory %s: %w", dir, err)
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// DocumentStorePath returns the path of the document store file.
func (c *Config) DocumentStorePath() string {
	return filepath.Join(c.DataDir, "documents.json")
}

// TemplatesDir returns the directory holding per-cluster template files.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.DataDir, "templates")
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, DocumentsDir: %s, DataDir: %s, OCRLanguage: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.DocumentsDir, c.DataDir, c.OCRLanguage, c.LogLevel, c.MaxFileSize)
}

// IsBatchMode returns true when running one-shot batch processing
func (c *Config) IsBatchMode() bool {
	return c.Mode == ModeBatch
}

// IsStdioMode returns true when serving MCP over standard I/O
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
