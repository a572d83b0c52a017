// Package config provides configuration management for the codewatch
// service using Viper for flexible loading from files, environment
// variables, and command-line flags.
//
// Settings follow the CODEWATCH_ env prefix and the .codewatch.yml file,
// with three exceptions read directly from the raw environment because
// external tooling sets them: MC_MAX_BUILDS, IN_K8, and PORTAL_HTTPS.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// DefaultMaxBuilds is the build concurrency cap used when MC_MAX_BUILDS
// is unset or not a positive integer.
const DefaultMaxBuilds = 3

// Portal ports, selected by PORTAL_HTTPS.
const (
	PortalPortHTTP  = 9090
	PortalPortHTTPS = 9191
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace"`

	// MaxBuilds caps the number of concurrent builds (MC_MAX_BUILDS).
	MaxBuilds int `yaml:"-"`
	// InCluster disables the watcher supervisor (IN_K8).
	InCluster bool `yaml:"-"`
	// PortalHTTPS selects the HTTPS portal port (PORTAL_HTTPS).
	PortalHTTPS bool `yaml:"-"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type WorkspaceConfig struct {
	// Dir is the shared workspace root containing project locations.
	Dir string `yaml:"dir"`
	// DataDir holds per-project metadata directories. Defaults to
	// <workspace>/.projects.
	DataDir string `yaml:"data_dir"`
	// LogsDir holds per-project log directories. Defaults to
	// <workspace>/.logs.
	LogsDir string `yaml:"logs_dir"`
	// Origin is reported to watcher children as the workspace origin
	// path. Defaults to Dir.
	Origin string `yaml:"origin"`
}

// Load builds the configuration from viper state plus the raw
// environment overrides.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = viper.GetInt("server.port")
	}
	if config.Server.Port == 0 {
		config.Server.Port = 9092
	}

	if config.Workspace.Dir == "" {
		config.Workspace.Dir = viper.GetString("workspace.dir")
	}
	if config.Workspace.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving workspace dir: %w", err)
		}
		config.Workspace.Dir = wd
	}
	if config.Workspace.DataDir == "" {
		config.Workspace.DataDir = filepath.Join(config.Workspace.Dir, ".projects")
	}
	if config.Workspace.LogsDir == "" {
		config.Workspace.LogsDir = filepath.Join(config.Workspace.Dir, ".logs")
	}
	if config.Workspace.Origin == "" {
		config.Workspace.Origin = config.Workspace.Dir
	}

	config.MaxBuilds = MaxBuildsFromEnv()
	config.InCluster = InClusterFromEnv()
	config.PortalHTTPS = os.Getenv("PORTAL_HTTPS") == "true"

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// PortalPort returns the port the event bus and watcher children use to
// reach the portal.
func (c *Config) PortalPort() int {
	if c.PortalHTTPS {
		return PortalPortHTTPS
	}
	return PortalPortHTTP
}

// MaxBuildsFromEnv parses MC_MAX_BUILDS. Values that are unset, not an
// integer, or not positive fall back to DefaultMaxBuilds.
func MaxBuildsFromEnv() int {
	raw := strings.TrimSpace(os.Getenv("MC_MAX_BUILDS"))
	if raw == "" {
		return DefaultMaxBuilds
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultMaxBuilds
	}
	return n
}

// InClusterFromEnv reports whether IN_K8 is truthy.
func InClusterFromEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("IN_K8"))) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

func validate(config *Config) error {
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Server.Port)
	}
	if !filepath.IsAbs(config.Workspace.Dir) {
		return fmt.Errorf("workspace dir must be absolute: %s", config.Workspace.Dir)
	}
	return nil
}
