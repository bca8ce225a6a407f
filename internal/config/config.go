package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon's runtime configuration, loaded from
// environment variables with typed fallbacks.
type Config struct {
	// AdminHost/AdminPort bind the façade's loopback admin/introspection
	// surface (health checks, the monitor websocket feed).
	AdminHost string
	AdminPort string

	// SSDP discovery tuning.
	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	SSDPRescanIntervalMs   int

	// SOAP/GENA tuning.
	SOAPTimeoutMs             int
	SubscriptionTimeoutSec    int
	SubscriptionRenewBufferSec int
	ResubscribeDebounceMs     int

	// BindInterfaces is the optional interface allow-list from
	// RSU_BIND_INTERFACES or the YAML bind file. Neither the Host File
	// Server nor the SSDP listener consults it; both bind without
	// restriction.
	BindInterfaces []string

	// JWTPublicKeyPath is loaded from RSU_JWT_PUBLIC_KEY_PATH but not
	// consulted anywhere: bearer tokens handed over as a client's
	// identity are always decoded without signature verification.
	JWTPublicKeyPath string

	LogLevel string
}

// Load reads configuration from environment variables with defaults,
// matching the `envString`/`envInt`/`envCSV` style the Sonos hub
// config package uses.
func Load() (Config, error) {
	cfg := Config{
		AdminHost:                  envString("RSU_ADMIN_HOST", "127.0.0.1"),
		AdminPort:                  envString("RSU_ADMIN_PORT", "9090"),
		SSDPDiscoveryTimeoutMs:     envInt("RSU_SSDP_DISCOVERY_TIMEOUT_MS", 5000),
		SSDPDiscoveryPasses:       envInt("RSU_SSDP_DISCOVERY_PASSES", 3),
		SSDPPassIntervalMs:        envInt("RSU_SSDP_PASS_INTERVAL_MS", 2000),
		SSDPRescanIntervalMs:      envInt("RSU_SSDP_RESCAN_INTERVAL_MS", 60000),
		SOAPTimeoutMs:             envInt("RSU_SOAP_TIMEOUT_MS", 5000),
		SubscriptionTimeoutSec:    envInt("RSU_SUBSCRIPTION_TIMEOUT_SEC", 1800),
		SubscriptionRenewBufferSec: envInt("RSU_SUBSCRIPTION_RENEW_BUFFER_SEC", 120),
		ResubscribeDebounceMs:     envInt("RSU_RESUBSCRIBE_DEBOUNCE_MS", 1000),
		BindInterfaces:            envCSV("RSU_BIND_INTERFACES"),
		JWTPublicKeyPath:          envString("RSU_JWT_PUBLIC_KEY_PATH", ""),
		LogLevel:                  envString("RSU_LOG_LEVEL", "info"),
	}

	if bindFile := envString("RSU_BIND_FILE", ""); bindFile != "" {
		interfaces, err := LoadBindFile(bindFile)
		if err != nil {
			return Config{}, err
		}
		cfg.BindInterfaces = interfaces
	}

	return cfg, nil
}

// BindFile is the optional YAML-backed static interface allow-list;
// Load copies its interfaces into Config.BindInterfaces.
type BindFile struct {
	Interfaces []string `yaml:"interfaces"`
}

// LoadBindFile reads a YAML bind-interface file. This is the one
// piece of file-backed configuration the daemon has; everything else
// is an environment variable.
func LoadBindFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file BindFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Interfaces, nil
}

// SOAPTimeout returns the configured SOAP timeout as a Duration.
func (c Config) SOAPTimeout() time.Duration {
	return time.Duration(c.SOAPTimeoutMs) * time.Millisecond
}

// ResubscribeDebounce returns the configured resubscribe debounce as
// a Duration.
func (c Config) ResubscribeDebounce() time.Duration {
	return time.Duration(c.ResubscribeDebounceMs) * time.Millisecond
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
