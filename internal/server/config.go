package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openrls/linbcm/internal/bcm"
	"github.com/openrls/linbcm/internal/lin"
	"github.com/openrls/linbcm/internal/sensor"
)

// Config holds all emulator configuration.
type Config struct {
	mu sync.RWMutex

	Bus      BusConfig        `yaml:"bus" json:"bus"`
	Schedule ScheduleConfig   `yaml:"schedule" json:"schedule"`
	Command  bcm.Command      `yaml:"command" json:"command"`
	Decode   DecodeConfig     `yaml:"decode" json:"decode"`
	DRL      sensor.DRLConfig `yaml:"drl" json:"drl"`
	Logging  LoggingConfig    `yaml:"logging" json:"logging"`
	Server   ServerConfig     `yaml:"server" json:"server"`
	Verbose  bool             `yaml:"verbose" json:"verbose"`

	path string // file path for save/load
}

// BusConfig selects and tunes the LIN port.
type BusConfig struct {
	Type              string `yaml:"type" json:"type"` // "serial" or "sim"
	PortPath          string `yaml:"port_path" json:"portPath"`
	BaudRate          int    `yaml:"baud_rate" json:"baudRate"`
	ResponseTimeoutMs int    `yaml:"response_timeout_ms" json:"responseTimeoutMs"`
}

// ScheduleConfig tunes the polling cadence.
type ScheduleConfig struct {
	CycleMs        int    `yaml:"cycle_ms" json:"cycleMs"`
	LowRateDivisor uint64 `yaml:"low_rate_divisor" json:"lowRateDivisor"`
}

// DecodeConfig selects decoder behavior.
type DecodeConfig struct {
	LightMode string `yaml:"light_mode" json:"lightMode"` // "saturation" or "combined"
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with the reference schedule and sensible
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Type:              "serial",
			PortPath:          "/dev/ttyLIN0",
			BaudRate:          19200,
			ResponseTimeoutMs: 15,
		},
		Schedule: ScheduleConfig{
			CycleMs:        60,
			LowRateDivisor: 5,
		},
		Command: bcm.DefaultCommand(),
		Decode:  DecodeConfig{LightMode: "saturation"},
		DRL: sensor.DRLConfig{
			LowThreshold:   40,
			HighThreshold:  120,
			DebounceCycles: 3,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/linbcm",
			Interval: 500,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and
// environment variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config
// values. Supported: BUS_TYPE, BUS_PORT, BUS_BAUD, LIGHT_MODE, LISTEN_ADDR,
// LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BUS_TYPE"); v != "" {
		c.Bus.Type = v
	}
	if v := os.Getenv("BUS_PORT"); v != "" {
		c.Bus.PortPath = v
	}
	if v := os.Getenv("BUS_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bus.BaudRate = n
		}
	}
	if v := os.Getenv("LIGHT_MODE"); v != "" {
		c.Decode.LightMode = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
}

// LightMode resolves the configured decode mode, falling back to the
// saturation default on a bad value.
func (c *Config) LightMode() sensor.LightMode {
	mode, err := sensor.ParseLightMode(c.Decode.LightMode)
	if err != nil {
		log.Printf("[config] %v, using saturation", err)
		return sensor.LightModeSaturation
	}
	return mode
}

// OpenPort builds the configured LIN port.
func (c *Config) OpenPort() (lin.Port, error) {
	switch c.Bus.Type {
	case "sim":
		sim := lin.NewSimPort()
		sim.Drift = true
		return sim, nil
	case "serial", "":
		return lin.OpenSerial(lin.SerialConfig{
			PortPath: c.Bus.PortPath,
			BaudRate: c.Bus.BaudRate,
		})
	}
	return nil, fmt.Errorf("config: unknown bus type %q", c.Bus.Type)
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		c.path = "/etc/linbcm/config.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}
	deepMerge(base, patch)
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
