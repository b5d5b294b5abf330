package config

import (
	"fmt"
	"strings"

	"image-compressor-go/internal/scanner"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	ImagesPath          string            `mapstructure:"images_path"`
	OutputPath          string            `mapstructure:"output_path"`
	CompressionLevel    *int              `mapstructure:"compression_level"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Metadata            MetadataConfig    `mapstructure:"metadata"`
	Server              ServerConfig      `mapstructure:"server"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads int  `mapstructure:"worker_threads"` // 0 starts one worker per image
	ShowProgress  bool `mapstructure:"show_progress"`
}

// MetadataConfig controls metadata handling on compressed images
type MetadataConfig struct {
	Preserve bool `mapstructure:"preserve"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SupportedExtensions: append([]string(nil), scanner.DefaultExtensions...),
		Performance: PerformanceConfig{
			WorkerThreads: 0,
			ShowProgress:  false,
		},
		Metadata: MetadataConfig{
			Preserve: false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()
	// mapstructure overwrites slices element by element; Validate restores
	// the defaults when nothing was configured.
	config.SupportedExtensions = nil

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compressor")
		v.AddConfigPath("/etc/image-compressor")
	}

	v.SetEnvPrefix("IMAGE_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers the keys AutomaticEnv cannot discover on its own
// because they have no default in viper.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"images_path",
		"output_path",
		"compression_level",
		"performance.worker_threads",
		"performance.show_progress",
		"metadata.preserve",
		"server.port",
		"logging.level",
		"logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration. Directory existence is checked by
// the batch run itself so the CLI reports it as a validation error.
func (c *Config) Validate() error {
	c.SupportedExtensions = scanner.NormalizeExtensions(c.SupportedExtensions)
	if len(c.SupportedExtensions) == 0 {
		c.SupportedExtensions = append([]string(nil), scanner.DefaultExtensions...)
	}

	if c.Performance.WorkerThreads < 0 {
		return fmt.Errorf("invalid worker_threads: %d (must be >= 0)", c.Performance.WorkerThreads)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// IsInPlace returns true if compressed images are written next to the originals
func (c *Config) IsInPlace() bool {
	return c.OutputPath == ""
}
