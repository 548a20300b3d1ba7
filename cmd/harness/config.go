package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"go.crosstest.dev/harness/errors"
)

// fileConfig is the YAML config file shape, read before flag parsing so
// flags can override file defaults.
type fileConfig struct {
	Mode             string   `yaml:"mode"`
	SourceRoot       string   `yaml:"sourceRoot"`
	ResultsDir       string   `yaml:"resultsDir"`
	Target           string   `yaml:"target"`
	ExpectationFiles []string `yaml:"expectationFiles"`
	Classpath        []string `yaml:"classpath"`
	BuildClasspath   []string `yaml:"buildClasspath"`
	Sourcepath       []string `yaml:"sourcepath"`
	FirstMonitorPort int      `yaml:"monitorPort"`
	TimeoutSeconds   int      `yaml:"timeoutSeconds"`
	KeepBefore       bool     `yaml:"keepBefore"`
	KeepAfter        bool     `yaml:"keepAfter"`
	Tag              string   `yaml:"tag"`
	CompareTag       string   `yaml:"compareTag"`
	DebugPort        int      `yaml:"debugPort"`
	Benchmark        bool     `yaml:"benchmark"`
}

// loadFileConfig reads a YAML config file. A missing path is not an error:
// the zero fileConfig (all flag defaults) is returned instead, since the
// config file is optional.
func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileConfig{}, nil
	}
	if err != nil {
		return fileConfig{}, errors.Wrapf(err, "failed to read config file %s", path)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return cfg, nil
}

func (c fileConfig) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
