// Package config provides configuration management for endoforge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/endoforge/endoforge/internal/models"
)

// Default configuration values.
const (
	defaultMaxSourceSize  = 5 * GB
	defaultEndpointPort   = 104
	defaultTimeout        = 30 * time.Second
	defaultSettleInterval = 2 * time.Second
	defaultCallingAETitle = "ENDOFORGE"
	defaultCalledAETitle  = "PACS"

	// defaultOrgRoot is the organisational UID root all generated DICOM
	// identifiers hang off. Kept short so the timestamp, counter and random
	// components fit inside the 64 character UID ceiling.
	defaultOrgRoot = "1.2.826.0.1.3680043.10.1453"

	// maxOrgRootLen leaves room for the generated suffix components.
	maxOrgRootLen = 32
)

// orgRootPattern matches a dotted numeric UID root.
var orgRootPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

// Config holds all configuration for the application.
type Config struct {
	Storage  StorageConfig         `mapstructure:"storage"`
	FFmpeg   FFmpegConfig          `mapstructure:"ffmpeg"`
	DICOM    DICOMConfig           `mapstructure:"dicom"`
	Endpoint models.EndpointConfig `mapstructure:"endpoint"`
	Watch    WatchConfig           `mapstructure:"watch"`
	Logging  LoggingConfig         `mapstructure:"logging"`
}

// StorageConfig holds output and scratch directory configuration.
type StorageConfig struct {
	// OutputDir receives the encoded DICOM objects.
	OutputDir string `mapstructure:"output_dir"`
	// TempDir holds intermediate trim/transcode artifacts (empty = system temp).
	TempDir string `mapstructure:"temp_dir"`
	// KeepIntermediates disables artifact cleanup, for debugging.
	KeepIntermediates bool `mapstructure:"keep_intermediates"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	// BinaryPath is the path to the ffmpeg binary (empty = auto-detect).
	BinaryPath string `mapstructure:"binary_path"`
	// ProbePath is the path to the ffprobe binary (empty = auto-detect).
	ProbePath string `mapstructure:"probe_path"`
	// MaxSourceSize is the ceiling for source files.
	// Supports human-readable values like "5GB" or raw byte counts.
	MaxSourceSize ByteSize `mapstructure:"max_source_size"`
}

// DICOMConfig holds object construction configuration.
type DICOMConfig struct {
	// OrgRoot is the organisational UID root for generated identifiers.
	OrgRoot string `mapstructure:"org_root"`
}

// WatchConfig holds inbox watch mode configuration.
type WatchConfig struct {
	// InboxDir is the directory watched for incoming video files.
	InboxDir string `mapstructure:"inbox_dir"`
	// SettleInterval is how long a file's size must stay stable before it
	// is considered fully written.
	SettleInterval time.Duration `mapstructure:"settle_interval"`
	// PatientID and PatientName are the subject defaults applied to watched
	// files. An empty PatientID falls back to the file name stem.
	PatientID   string `mapstructure:"patient_id"`
	PatientName string `mapstructure:"patient_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ENDOFORGE_ and use underscores for
// nesting. Example: ENDOFORGE_ENDPOINT_HOST=pacs.example.org.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/endoforge")
		v.AddConfigPath("$HOME/.endoforge")
	}

	// Environment variable settings
	v.SetEnvPrefix("ENDOFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so AutomaticEnv can
// see every key.
func SetDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.output_dir", "./output")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.keep_intermediates", false)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.max_source_size", int64(defaultMaxSourceSize))

	// DICOM defaults
	v.SetDefault("dicom.org_root", defaultOrgRoot)

	// Endpoint defaults
	v.SetDefault("endpoint.host", "")
	v.SetDefault("endpoint.port", defaultEndpointPort)
	v.SetDefault("endpoint.calling_ae_title", defaultCallingAETitle)
	v.SetDefault("endpoint.called_ae_title", defaultCalledAETitle)
	v.SetDefault("endpoint.timeout", defaultTimeout)
	v.SetDefault("endpoint.use_tls", false)

	// Watch defaults
	v.SetDefault("watch.inbox_dir", "")
	v.SetDefault("watch.settle_interval", defaultSettleInterval)
	v.SetDefault("watch.patient_id", "")
	v.SetDefault("watch.patient_name", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Storage validation
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	// FFmpeg validation
	if c.FFmpeg.MaxSourceSize <= 0 {
		return fmt.Errorf("ffmpeg.max_source_size must be positive")
	}

	// DICOM validation
	if !orgRootPattern.MatchString(c.DICOM.OrgRoot) {
		return fmt.Errorf("dicom.org_root must be a dotted numeric UID root")
	}
	if len(c.DICOM.OrgRoot) > maxOrgRootLen {
		return fmt.Errorf("dicom.org_root must be at most %d characters", maxOrgRootLen)
	}

	// Endpoint validation only applies once a host is configured; a blank
	// endpoint just means transmission is unavailable.
	if c.Endpoint.Host != "" {
		if err := c.Endpoint.Validate(); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}

	// Watch validation
	if c.Watch.InboxDir != "" && c.Watch.SettleInterval <= 0 {
		return fmt.Errorf("watch.settle_interval must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// TempPath returns the scratch directory, falling back to the system temp
// directory when unset.
func (c *StorageConfig) TempPath() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// HasEndpoint reports whether a PACS endpoint has been configured.
func (c *Config) HasEndpoint() bool {
	return c.Endpoint.Host != ""
}
