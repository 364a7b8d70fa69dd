// Package config loads the YAML runtime configuration and the scene seed.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/SentientPlay/internal/scheduler"
)

type RuntimeConfig struct {
	Version int `yaml:"version"`
	Project struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"project"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Engine    struct {
		MaxSteps int    `yaml:"max_steps"`
		Seed     uint64 `yaml:"seed"`
	} `yaml:"engine"`
	Journal struct {
		Size int `yaml:"size"`
	} `yaml:"journal"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`
	Paths struct {
		Scene  string `yaml:"scene"`
		Graphs string `yaml:"graphs"`
	} `yaml:"paths"`

	dir string
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *RuntimeConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// JournalSize returns the journal ring size, defaulting to 256.
func (c *RuntimeConfig) JournalSize() int {
	if c.Journal.Size <= 0 {
		return 256
	}
	return c.Journal.Size
}

// ProjectID returns the project id, defaulting to "default".
func (c *RuntimeConfig) ProjectID() string {
	if c.Project.ID == "" {
		return "default"
	}
	return c.Project.ID
}

// MQTTBroker returns the broker URL, defaulting to a local broker.
func (c *RuntimeConfig) MQTTBroker() string {
	if c.MQTT.Broker == "" {
		return "tcp://localhost:1883"
	}
	return c.MQTT.Broker
}

// TopicPrefix returns the MQTT topic prefix, defaulting to
// "sentient/play/<project id>".
func (c *RuntimeConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "sentient/play/" + c.ProjectID()
	}
	return c.MQTT.TopicPrefix
}

// ScenePath returns the scene seed path, relative paths resolved against
// the config file's directory. Empty means no seed.
func (c *RuntimeConfig) ScenePath() string { return c.resolve(c.Paths.Scene) }

// GraphDir returns the graph directory, defaulting to "graphs" next to the
// config file.
func (c *RuntimeConfig) GraphDir() string {
	if c.Paths.Graphs == "" {
		return c.resolve("graphs")
	}
	return c.resolve(c.Paths.Graphs)
}

func (c *RuntimeConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RuntimeConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported runtime.yaml version: %d", cfg.Version)
	}
	if cfg.Engine.MaxSteps < 0 {
		return nil, fmt.Errorf("runtime.yaml: engine.max_steps must not be negative")
	}
	cfg.dir = filepath.Dir(path)

	return &cfg, nil
}
