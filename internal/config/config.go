// Package config centralizes the daemon's runtime settings.
//
// CLI flags are the primary interface (see spec §6); Load layers an
// optional YAML file and two environment variables beneath them. Config
// exists so the rest of the program depends on one small struct instead of
// reaching for package-level flag variables.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config holds the daemon's fully resolved runtime settings.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Device      string `yaml:"device"`
	AllowCoins  bool   `yaml:"allow_coins"`
	LogToStderr bool   `yaml:"log_to_stderr"`
}

func defaults() Config {
	return Config{
		Host:       "127.0.0.1",
		Port:       6379,
		Device:     "/dev/ttyACM0",
		AllowCoins: false,
	}
}

// Load parses CLI flags into a Config, applying (in increasing priority):
// built-in defaults, an optional YAML overrides file named by
// SSP_BRIDGE_CONFIG, the SSP_BRIDGE_HOST / SSP_BRIDGE_PORT environment
// variables, then the flags themselves.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("SSP_BRIDGE_CONFIG"); path != "" {
		if err := loadOverridesFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: loading overrides file %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)

	fs := flag.NewFlagSet("ssp-bridge", flag.ContinueOnError)
	host := fs.String("h", cfg.Host, "bus hostname")
	port := fs.Int("p", cfg.Port, "bus port")
	device := fs.String("d", cfg.Device, "serial device path")
	allowCoins := fs.Bool("c", cfg.AllowCoins, "permit coin acceptance during setup")
	toStderr := fs.Bool("e", cfg.LogToStderr, "also write diagnostic log to standard error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.Device = *device
	cfg.AllowCoins = *allowCoins
	cfg.LogToStderr = *toStderr

	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("config: -h host must not be empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: -p port %d out of range", cfg.Port)
	}
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, fmt.Errorf("config: -d device must not be empty")
	}

	return &cfg, nil
}

// Addr returns the host:port pair used to dial the bus.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SSP_BRIDGE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("SSP_BRIDGE_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil {
			cfg.Port = p
		}
	}
}

func loadOverridesFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
