// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vellumdata/vellum-go/scan"
)

const (
	cfgFile                = ".vellum-go.yaml"
	defaultHandleCacheSize = 1024
)

// Config is the process-wide configuration: scan session defaults plus
// cache and IO settings.
type Config struct {
	Session         *scan.Session     `yaml:"session"`
	HandleCacheSize int               `yaml:"handle-cache-size"`
	PreloadWorkers  int               `yaml:"preload-workers"`
	IOProperties    map[string]string `yaml:"io"`
}

// LoadConfig reads the config file at configPath, or the file named
// .vellum-go.yaml in the user's home directory when configPath is
// empty. A missing file yields nil.
func LoadConfig(configPath string) []byte {
	var path string
	if len(configPath) > 0 {
		path = configPath
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(homeDir, cfgFile)
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	return file
}

// ParseConfig unmarshals a config document, filling unset fields with
// defaults. A nil or malformed document yields the defaults.
func ParseConfig(file []byte) Config {
	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		cfg = Config{}
	}

	if cfg.Session == nil {
		cfg.Session = scan.DefaultSession()
	}
	if cfg.HandleCacheSize <= 0 {
		cfg.HandleCacheSize = defaultHandleCacheSize
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = scan.DefaultSession().MaxSplitPreloadPerDriver
	}

	return cfg
}

func fromConfigFiles() Config {
	dir := os.Getenv("VELLUM_HOME")
	if dir != "" {
		dir = filepath.Join(dir, cfgFile)
	}

	return ParseConfig(LoadConfig(dir))
}

var EnvConfig = fromConfigFiles()
