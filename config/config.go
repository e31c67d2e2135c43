// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the top-level YAML configuration for a single
// download run, composing the per-component configs of the packages it
// wires together.
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/leechkit/leech/orchestrator"
	"gopkg.in/yaml.v2"
)

// TrackerConfig controls announce behavior against the torrent's trackers.
type TrackerConfig struct {
	// AnnounceRate bounds the interval between successive announce
	// attempts across all tiers, independent of what any one tracker
	// reports back.
	AnnounceRate time.Duration `yaml:"announce_rate"`

	// NumWant is the number of peers requested per announce.
	NumWant int `yaml:"num_want"`
}

func (c TrackerConfig) applyDefaults() TrackerConfig {
	if c.AnnounceRate == 0 {
		c.AnnounceRate = 5 * time.Second
	}
	if c.NumWant == 0 {
		c.NumWant = 50
	}
	return c
}

// Config is the top-level configuration for a leech run.
type Config struct {
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Tracker      TrackerConfig       `yaml:"tracker"`
}

func (c Config) applyDefaults() Config {
	c.Tracker = c.Tracker.applyDefaults()
	c.Orchestrator = c.Orchestrator.ApplyDefaults()
	return c
}

// Load reads and parses a YAML config file at path, applying defaults to
// any zero-valued fields.
func Load(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %q: %s", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %q: %s", path, err)
	}
	return c.applyDefaults(), nil
}

// Default returns a Config with every field set to its default value,
// suitable when no config file is supplied.
func Default() Config {
	return Config{}.applyDefaults()
}
