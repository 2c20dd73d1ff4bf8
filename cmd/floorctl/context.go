package main

import (
	"strings"
	"sync"
)

type commandContext struct {
	serverFlag *string
	configFlag *string
	userFlag   *string

	configOnce sync.Once
	config     *cliConfig
	configErr  error
}

func newCommandContext(serverFlag, configFlag, userFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		configFlag: configFlag,
		userFlag:   userFlag,
	}
}

func (c *commandContext) ensureConfig() (*cliConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := loadConfig(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
			cfg.Server = strings.TrimSpace(*c.serverFlag)
		}
		if c.userFlag != nil && strings.TrimSpace(*c.userFlag) != "" {
			cfg.User = strings.TrimSpace(*c.userFlag)
		}
		if err := cfg.normalize(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg), nil
}
