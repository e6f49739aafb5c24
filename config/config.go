// Package config loads the projector inventory and tool settings from a
// YAML file. Environment variables in the file are expanded before
// parsing, and missing fields fall back to sensible defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BenVanZee/sony-projector-control/pkg/pjlink"
)

type Config struct {
	Projectors []ProjectorConfig `yaml:"projectors"`
	Network    NetworkConfig     `yaml:"network"`
	Log        LogConfig         `yaml:"log"`
}

type ProjectorConfig struct {
	Nickname string   `yaml:"nickname"`
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Port     int      `yaml:"port"`
	Location string   `yaml:"location"`
	Groups   []string `yaml:"groups"`
	Aliases  []string `yaml:"aliases"`
}

type NetworkConfig struct {
	ConnectTimeout string `yaml:"connect_timeout"`
	ReadTimeout    string `yaml:"read_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// Default returns the built-in two-projector hall setup used when no
// config file exists.
func Default() *Config {
	cfg := &Config{
		Projectors: []ProjectorConfig{
			{
				Nickname: "left",
				Name:     "Left",
				Address:  "10.10.10.2",
				Location: "Main Hall - Left Side",
				Groups:   []string{"front"},
				Aliases:  []string{"l"},
			},
			{
				Nickname: "right",
				Name:     "Right",
				Address:  "10.10.10.3",
				Location: "Main Hall - Right Side",
				Groups:   []string{"front"},
				Aliases:  []string{"r"},
			},
		},
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	for i := range c.Projectors {
		if c.Projectors[i].Port == 0 {
			c.Projectors[i].Port = pjlink.DefaultPort
		}
	}
	if c.Network.ConnectTimeout == "" {
		c.Network.ConnectTimeout = "5s"
	}
	if c.Network.ReadTimeout == "" {
		c.Network.ReadTimeout = "2s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Timeouts parses the network timeout settings.
func (n NetworkConfig) Timeouts() (connect, read time.Duration, err error) {
	connect, err = time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("connect_timeout: %w", err)
	}
	read, err = time.ParseDuration(n.ReadTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("read_timeout: %w", err)
	}
	return connect, read, nil
}

// Descriptors maps the configured projectors into registry descriptors.
func (c *Config) Descriptors() []pjlink.DeviceDescriptor {
	out := make([]pjlink.DeviceDescriptor, 0, len(c.Projectors))
	for _, p := range c.Projectors {
		out = append(out, pjlink.DeviceDescriptor{
			Nickname: p.Nickname,
			Name:     p.Name,
			Host:     p.Address,
			Port:     p.Port,
			Location: p.Location,
			Groups:   p.Groups,
			Aliases:  p.Aliases,
		})
	}
	return out
}
