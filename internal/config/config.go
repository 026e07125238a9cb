// Package config loads Testerman's YAML deployment configuration: load
// file, apply built-in defaults via dario.cat/mergo, validate. Each
// binary has a single flat document rather than a multi-file registry.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/testerman-project/testerman-core/internal/job"
)

// ServerConfig is the testerman-server deployment document
// (testerman-server.yaml).
type ServerConfig struct {
	ListenAddr  string   `yaml:"listen_addr"`
	DocRoot     string   `yaml:"doc_root"`
	CoreModules string   `yaml:"core_modules"`
	StateFile   string   `yaml:"state_file"`
	MergeMode   string   `yaml:"merge_mode"`
	Interpreter string   `yaml:"interpreter"`
	ModulePaths []string `yaml:"module_paths"`
	PurgeAfter  string   `yaml:"purge_after"`
}

// defaultServerConfig is the built-in baseline merged under anything
// the deployment file overrides.
var defaultServerConfig = ServerConfig{
	ListenAddr:  ":8080",
	DocRoot:     "./var/docroot",
	CoreModules: "./var/core-modules",
	StateFile:   "./var/jobs.gob",
	MergeMode:   string(job.MergeLoose),
	Interpreter: "testerman-te",
	PurgeAfter:  "168h",
}

// TacsConfig is the testerman-tacs deployment document
// (testerman-tacs.yaml). Both the northbound (Ia) and southbound (Xa)
// WebSocket endpoints, plus /health and /metrics, are served on the
// same listener.
type TacsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

var defaultTacsConfig = TacsConfig{
	ListenAddr: ":8081",
}

// LoadServerConfig reads path (if it exists) and merges it over the
// built-in defaults; a missing file is not an error — an all-default
// configuration is returned, logged at warn level.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := defaultServerConfig
	if err := mergeYAMLFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadTacsConfig reads path (if it exists) and merges it over the
// built-in defaults.
func LoadTacsConfig(path string) (TacsConfig, error) {
	cfg := defaultTacsConfig
	if err := mergeYAMLFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeYAMLFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("config file not found, using defaults", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var override any
	switch dst.(type) {
	case *ServerConfig:
		override = &ServerConfig{}
	case *TacsConfig:
		override = &TacsConfig{}
	}
	if err := yaml.Unmarshal(data, override); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := mergo.Merge(dst, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging config %s: %w", path, err)
	}
	return nil
}

// PurgeInterval parses cfg's PurgeAfter field, defaulting to one week
// on a malformed value.
func (c ServerConfig) PurgeInterval() time.Duration {
	d, err := time.ParseDuration(c.PurgeAfter)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// ResolveMergeMode maps the configured string to job.MergeMode,
// defaulting to loose on an unrecognized value.
func (c ServerConfig) ResolveMergeMode() job.MergeMode {
	switch job.MergeMode(c.MergeMode) {
	case job.MergeStrict:
		return job.MergeStrict
	default:
		return job.MergeLoose
	}
}
