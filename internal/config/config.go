// Package config loads relay configuration from the environment, with an
// optional YAML file as the base layer. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenHost string `yaml:"listen_host"`
	SMTPPorts  []int  `yaml:"smtp_ports"`
	HealthPort int    `yaml:"health_port"`
	ServerName string `yaml:"server_name"`
	LogLevel   string `yaml:"log_level"`
	DBPath     string `yaml:"db_path"`
	AdminToken string `yaml:"admin_token"`
}

// Load builds the configuration from environment variables over defaults.
func Load() Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file as the base layer, then applies environment
// overrides on top.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// AdminEnabled reports whether the admin API accepts logins.
func (c Config) AdminEnabled() bool {
	return c.AdminToken != ""
}

func defaults() Config {
	return Config{
		ListenHost: "0.0.0.0",
		SMTPPorts:  []int{25, 2525, 587},
		HealthPort: 80,
		ServerName: "mailbridge",
		LogLevel:   "info",
		DBPath:     "",
	}
}

func (c *Config) applyEnv() {
	c.ListenHost = getEnvString("LISTEN_HOST", c.ListenHost)
	c.HealthPort = getEnvInt("HEALTH_PORT", c.HealthPort)
	c.ServerName = getEnvString("SERVER_NAME", c.ServerName)
	c.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", c.LogLevel))
	c.DBPath = getEnvString("DB_PATH", c.DBPath)
	c.AdminToken = getEnvString("ADMIN_TOKEN", c.AdminToken)

	if ports, ok := getEnvPorts("SMTP_PORTS"); ok {
		c.SMTPPorts = ports
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvPorts parses a comma-separated port list. The whole value is
// rejected when any entry fails to parse, so a typo cannot silently shrink
// the listener set.
func getEnvPorts(key string) ([]int, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil, false
	}
	var ports []int
	for _, field := range strings.Split(value, ",") {
		port, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || port <= 0 || port > 65535 {
			return nil, false
		}
		ports = append(ports, port)
	}
	return ports, true
}
