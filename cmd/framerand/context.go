package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"framerand/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiBaseURL derives the local API address from the configured bind.
func (c *commandContext) apiBaseURL() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := cfg.Paths.APIBind
	if host, rest, ok := strings.Cut(bind, ":"); ok {
		if host == "" || host == "0.0.0.0" || host == "::" {
			bind = "127.0.0.1:" + rest
		}
	}
	return "http://" + bind, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
