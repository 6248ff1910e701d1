package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"framerand/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	VideoDir  string `toml:"video_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
}

// Library contains configuration for episode discovery and show metadata.
type Library struct {
	ShowDataPath          string   `toml:"show_data_path"`
	VideoExtensions       []string `toml:"video_extensions"`
	ScanRecursive         bool     `toml:"scan_recursive"`
	AllowMissingEpisodes  bool     `toml:"allow_missing_episodes"`
	FFprobeBinary         string   `toml:"ffprobe_binary"`
	FFprobeLoadLimit      int      `toml:"ffprobe_load_limit"`
	FFprobeCache          bool     `toml:"ffprobe_cache"`
	DefaultLanguage       string   `toml:"default_language"`
	MinFreeSpaceMiB       int      `toml:"min_free_space_mib"`
	PreflightSkipBinaries bool     `toml:"preflight_skip_binaries"`
}

// Producer contains configuration for clip synthesis.
type Producer struct {
	FFmpegBinary          string  `toml:"ffmpeg_binary"`
	IdentifyBinary        string  `toml:"identify_binary"`
	ImageExtension        string  `toml:"image_extension"`
	AudioExtension        string  `toml:"audio_extension"`
	ImageCommandInject    string  `toml:"image_command_inject"`
	MinFrameStddev        float64 `toml:"min_frame_stddev"`
	GenMaxAttempts        int     `toml:"gen_max_attempts"`
	AttemptTimeoutSeconds int     `toml:"attempt_timeout_seconds"`
	SubtitleSources       bool    `toml:"subtitle_sources"`
}

// Queue contains configuration for the pregeneration queue.
type Queue struct {
	TotalLength                int `toml:"total_length"`
	PerKindMinimum             int `toml:"per_kind_minimum"`
	MaxPending                 int `toml:"max_pending"`
	MaxRetries                 int `toml:"max_retries"`
	ExhaustionTopUp            int `toml:"exhaustion_top_up"`
	MaintenanceIntervalSeconds int `toml:"maintenance_interval_seconds"`
}

// Expiry contains TTL and cleanup cadence configuration.
type Expiry struct {
	AnswerExpirySeconds    int `toml:"answer_expiry_seconds"`
	ResourceExpirySeconds  int `toml:"resource_expiry_seconds"`
	RunExpirySeconds       int `toml:"run_expiry_seconds"`
	RunRetentionThreshold  int `toml:"run_retention_threshold"`
	CleanupIntervalSeconds int `toml:"cleanup_interval_seconds"`
}

// Verification contains configuration for verified run signing.
type Verification struct {
	InstanceName    string `toml:"instance_name"`
	UUIDNamespace   string `toml:"uuid_namespace"`
	PrivateKeyPath  string `toml:"private_key_path"`
	SoftwareVersion string `toml:"software_version"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for framerand.
//
// Configuration sections by subsystem:
//   - Paths: source/output/state directories and API bind address
//   - Library: episode discovery, show metadata, and ffprobe settings
//   - Producer: ffmpeg clip synthesis and frame quality checking
//   - Queue: pregeneration pool sizing, concurrency, and retries
//   - Expiry: answer/resource/run TTLs and cleanup cadence
//   - Verification: verified run identity and signing
//   - Logging: log format, level, and retention
type Config struct {
	Paths        Paths        `toml:"paths"`
	Library      Library      `toml:"library"`
	Producer     Producer     `toml:"producer"`
	Queue        Queue        `toml:"queue"`
	Expiry       Expiry       `toml:"expiry"`
	Verification Verification `toml:"verification"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/framerand/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framerand.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := fileutil.WriteAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
