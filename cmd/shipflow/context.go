package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"shipflow/internal/api"
	"shipflow/internal/config"
	"shipflow/internal/database"
	"shipflow/internal/queue"
	"shipflow/internal/shipment"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	dbOnce sync.Once
	db     *database.DB
	dbErr  error
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
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) database() (*database.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.dbOnce.Do(func() {
		c.db, c.dbErr = database.Open(cfg)
		if c.dbErr != nil {
			c.dbErr = fmt.Errorf("open database: %w", c.dbErr)
		}
	})
	return c.db, c.dbErr
}

func (c *commandContext) close() {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

func (c *commandContext) store() (*shipment.Store, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return shipment.NewStore(db), nil
}

func (c *commandContext) queueService() (*api.QueueService, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	queues := make(map[string]*queue.Queue, len(queue.Names))
	for _, name := range queue.Names {
		settings, _ := cfg.Queues.ByName(name)
		queues[name] = queue.New(db, name, queue.PolicyFromSettings(settings))
	}
	return api.NewQueueService(queues), nil
}

func (c *commandContext) shipmentService() (*api.ShipmentService, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	return api.NewShipmentService(store), nil
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
