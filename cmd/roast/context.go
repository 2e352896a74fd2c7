package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"roastmachine/internal/api"
	"roastmachine/internal/config"
	"roastmachine/internal/queue"
	"roastmachine/internal/session"
)

type commandContext struct {
	configFlag *string
	formatFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, formatFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		formatFlag: formatFlag,
	}
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
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) format() string {
	if c.formatFlag == nil {
		return formatTable
	}
	return normalizeFormat(*c.formatFlag)
}

// stores bundles direct database handles for commands that run without the daemon.
type stores struct {
	runs     *queue.Store
	sessions *session.Store
	service  *api.RoastService
}

func (c *commandContext) withStores(fn func(*stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	runs, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer runs.Close()
	sessions, err := session.Open(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	return fn(&stores{
		runs:     runs,
		sessions: sessions,
		service: api.NewRoastService(runs, sessions,
			api.WithAwaitPolling(cfg.AwaitPollInterval(), cfg.Pipeline.AwaitMaxPolls)),
	})
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
