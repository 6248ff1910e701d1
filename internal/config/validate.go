package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateProducer(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateExpiry(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.VideoDir == "" {
		return errors.New("paths.video_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Library.ShowDataPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/framerand/config.toml"
		}
		return fmt.Errorf("library.show_data_path is required. Edit %s (create with 'framerand config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateProducer() error {
	if c.Producer.MinFrameStddev < 0 {
		return errors.New("producer.min_frame_stddev must not be negative")
	}
	if c.Producer.AttemptTimeoutSeconds < 0 {
		return errors.New("producer.attempt_timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.TotalLength <= 0 {
		return errors.New("queue.total_length must be positive")
	}
	if c.Queue.PerKindMinimum < 0 {
		return errors.New("queue.per_kind_minimum must not be negative")
	}
	if c.Queue.MaxPending <= 0 {
		return errors.New("queue.max_pending must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return errors.New("queue.max_retries must not be negative")
	}
	if c.Queue.ExhaustionTopUp < 0 {
		return errors.New("queue.exhaustion_top_up must not be negative")
	}
	return nil
}

func (c *Config) validateExpiry() error {
	if c.Expiry.AnswerExpirySeconds <= 0 {
		return errors.New("expiry.answer_expiry_seconds must be positive")
	}
	if c.Expiry.ResourceExpirySeconds <= 0 {
		return errors.New("expiry.resource_expiry_seconds must be positive")
	}
	if c.Expiry.RunExpirySeconds <= 0 {
		return errors.New("expiry.run_expiry_seconds must be positive")
	}
	if c.Expiry.RunRetentionThreshold < 0 {
		return errors.New("expiry.run_retention_threshold must not be negative")
	}
	if c.Expiry.CleanupIntervalSeconds <= 0 {
		return errors.New("expiry.cleanup_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateVerification() error {
	if c.Verification.InstanceName == "" {
		return errors.New("verification.instance_name is required. Set FRAMERAND_INSTANCE_NAME or edit the config file")
	}
	if _, err := uuid.Parse(c.Verification.UUIDNamespace); err != nil {
		return fmt.Errorf("verification.uuid_namespace must be a valid UUID: %w", err)
	}
	return nil
}
