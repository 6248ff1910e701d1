package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeProducer()
	c.normalizeVerification()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.VideoDir, err = expandPath(c.Paths.VideoDir); err != nil {
		return fmt.Errorf("paths.video_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	var err error
	if c.Library.ShowDataPath != "" {
		if c.Library.ShowDataPath, err = expandPath(c.Library.ShowDataPath); err != nil {
			return fmt.Errorf("library.show_data_path: %w", err)
		}
	}
	if len(c.Library.VideoExtensions) == 0 {
		c.Library.VideoExtensions = []string{"mkv", "mp4", "avi"}
	}
	for i, ext := range c.Library.VideoExtensions {
		c.Library.VideoExtensions[i] = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	}
	if strings.TrimSpace(c.Library.FFprobeBinary) == "" {
		c.Library.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Library.FFprobeLoadLimit <= 0 {
		c.Library.FFprobeLoadLimit = defaultFFprobeLoadLimit
	}
	return nil
}

func (c *Config) normalizeProducer() {
	if strings.TrimSpace(c.Producer.FFmpegBinary) == "" {
		c.Producer.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Producer.IdentifyBinary) == "" {
		c.Producer.IdentifyBinary = defaultIdentifyBinary
	}
	c.Producer.ImageExtension = strings.TrimPrefix(strings.TrimSpace(c.Producer.ImageExtension), ".")
	if c.Producer.ImageExtension == "" {
		c.Producer.ImageExtension = defaultImageExtension
	}
	c.Producer.AudioExtension = strings.TrimPrefix(strings.TrimSpace(c.Producer.AudioExtension), ".")
	if c.Producer.AudioExtension == "" {
		c.Producer.AudioExtension = defaultAudioExtension
	}
	if c.Producer.GenMaxAttempts <= 0 {
		c.Producer.GenMaxAttempts = defaultGenMaxAttempts
	}
}

func (c *Config) normalizeVerification() {
	if c.Verification.InstanceName == "" {
		if value, ok := os.LookupEnv("FRAMERAND_INSTANCE_NAME"); ok {
			c.Verification.InstanceName = value
		}
	}
	c.Verification.InstanceName = strings.TrimSpace(c.Verification.InstanceName)
	if strings.TrimSpace(c.Verification.UUIDNamespace) == "" {
		c.Verification.UUIDNamespace = defaultUUIDNamespace
	}
	if strings.TrimSpace(c.Verification.SoftwareVersion) == "" {
		c.Verification.SoftwareVersion = defaultSoftwareVersion
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
