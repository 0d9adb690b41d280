/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds the knobs the surrounding service chooses at
// construction time - arena/fallback sizing for memsys and the usage-
// log cadence for the lifecycle manager. A plain value loaded per
// instance: no global/static config leaks across independent
// lifecycle managers.
type Config struct {
	Memsys struct {
		ArenaSize     int64  `yaml:"arena_size"`
		FallbackDir   string `yaml:"fallback_dir"`
		FallbackLimit int64  `yaml:"fallback_limit"`
	} `yaml:"memsys"`

	Lifecycle struct {
		UsageLogInterval time.Duration `yaml:"usage_log_interval"`
	} `yaml:"lifecycle"`
}

// DefaultConfig returns the hard defaults backing an (optional)
// config file.
func DefaultConfig() *Config {
	c := &Config{}
	c.Memsys.ArenaSize = 256 * MiB
	c.Memsys.FallbackDir = ""
	c.Memsys.FallbackLimit = 1 * GiB
	c.Lifecycle.UsageLogInterval = 10 * time.Second
	return c
}

// LoadConfig reads a YAML config file, falling back to DefaultConfig
// for any field the file omits.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	return cfg, nil
}
