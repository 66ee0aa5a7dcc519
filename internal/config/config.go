// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package config loads the digitizer settings from a YAML, TOML or legacy
// KEY=VALUE file, with VRD_<KEY> environment overrides on top.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/vr_digitizer/internal/pose"
	"github.com/relabs-tech/vr_digitizer/internal/roles"
)

// EnvPrefix is prepended to a key name to override it from the environment.
const EnvPrefix = "VRD_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all application configuration values. Field tags carry the
// key name shared by every file format.
type Config struct {
	// Link
	TargetHost         string `yaml:"TARGET_HOST" toml:"TARGET_HOST"`
	TargetPort         int    `yaml:"TARGET_PORT" toml:"TARGET_PORT"`
	NetworkingEnabled  bool   `yaml:"NETWORKING_ENABLED" toml:"NETWORKING_ENABLED"`
	ReconnectBackoffMS int    `yaml:"RECONNECT_BACKOFF_MS" toml:"RECONNECT_BACKOFF_MS"`
	ConnectTimeoutMS   int    `yaml:"CONNECT_TIMEOUT_MS" toml:"CONNECT_TIMEOUT_MS"`
	SendTimeoutMS      int    `yaml:"SEND_TIMEOUT_MS" toml:"SEND_TIMEOUT_MS"`
	ReceiveWaitMS      int    `yaml:"RECEIVE_WAIT_MS" toml:"RECEIVE_WAIT_MS"`

	// Sampling
	OutputMode            string  `yaml:"OUTPUT_MODE" toml:"OUTPUT_MODE"`
	SampleIntervalMS      int     `yaml:"SAMPLE_INTERVAL_MS" toml:"SAMPLE_INTERVAL_MS"`
	RoleRefreshIntervalMS int     `yaml:"ROLE_REFRESH_INTERVAL_MS" toml:"ROLE_REFRESH_INTERVAL_MS"`
	DirectionThreshold    float64 `yaml:"DIRECTION_THRESHOLD" toml:"DIRECTION_THRESHOLD"`
	TriggerThreshold      float64 `yaml:"TRIGGER_THRESHOLD" toml:"TRIGGER_THRESHOLD"`
	ButtonRole            string  `yaml:"BUTTON_ROLE" toml:"BUTTON_ROLE"`
	HapticRole            string  `yaml:"HAPTIC_ROLE" toml:"HAPTIC_ROLE"`

	// Tracking runtime
	RuntimeInitRetryMS int    `yaml:"RUNTIME_INIT_RETRY_MS" toml:"RUNTIME_INIT_RETRY_MS"`
	TrackingSource     string `yaml:"TRACKING_SOURCE" toml:"TRACKING_SOURCE"`

	// Audio
	AudioEnabled bool   `yaml:"AUDIO_ENABLED" toml:"AUDIO_ENABLED"`
	AudioCommand string `yaml:"AUDIO_COMMAND" toml:"AUDIO_COMMAND"`

	// MQTT mirror
	MQTTEnabled     bool   `yaml:"MQTT_ENABLED" toml:"MQTT_ENABLED"`
	MQTTBroker      string `yaml:"MQTT_BROKER" toml:"MQTT_BROKER"`
	MQTTClientID    string `yaml:"MQTT_CLIENT_ID" toml:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string `yaml:"MQTT_TOPIC_PREFIX" toml:"MQTT_TOPIC_PREFIX"`

	// Observers
	MetricsAddr             string `yaml:"METRICS_ADDR" toml:"METRICS_ADDR"`
	WebServerPort           int    `yaml:"WEB_SERVER_PORT" toml:"WEB_SERVER_PORT"`
	DisplayUpdateIntervalMS int    `yaml:"DISPLAY_UPDATE_INTERVAL_MS" toml:"DISPLAY_UPDATE_INTERVAL_MS"`

	LogLevel string `yaml:"LOG_LEVEL" toml:"LOG_LEVEL"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() *Config {
	return &Config{
		TargetHost:         "127.0.0.1",
		TargetPort:         3947,
		NetworkingEnabled:  true,
		ReconnectBackoffMS: 500,
		ConnectTimeoutMS:   100,
		SendTimeoutMS:      5,
		ReceiveWaitMS:      1,

		OutputMode:            pose.ModeVector.String(),
		SampleIntervalMS:      50,
		RoleRefreshIntervalMS: 1000,
		DirectionThreshold:    0.7,
		TriggerThreshold:      0.1,
		ButtonRole:            roles.Controller0.String(),
		HapticRole:            roles.Controller0.String(),

		RuntimeInitRetryMS: 1000,
		TrackingSource:     "mock",

		AudioEnabled: true,
		AudioCommand: "aplay -q -",

		MQTTClientID:    "vrdigitizer",
		MQTTTopicPrefix: "vrdigitizer",

		WebServerPort:           8080,
		DisplayUpdateIntervalMS: 250,

		LogLevel: "info",
	}
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the file at path on top of DefaultConfig, applies environment
// overrides and validates the result. An empty path loads defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config: %w", err)
			}
		case ".toml":
			md, err := toml.Decode(string(data), cfg)
			if err != nil {
				return nil, fmt.Errorf("parse toml config: %w", err)
			}
			if undec := md.Undecoded(); len(undec) > 0 {
				return nil, fmt.Errorf("unknown config key: %q", undec[0].String())
			}
		default:
			if err := cfg.parseKeyValue(string(data)); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseKeyValue reads the legacy KEY=VALUE format: one pair per line, '#'
// comments, unknown keys rejected.
func (c *Config) parseKeyValue(text string) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// keys lists every recognized key, in the order overrides are applied.
var keys = []string{
	"TARGET_HOST", "TARGET_PORT", "NETWORKING_ENABLED", "RECONNECT_BACKOFF_MS",
	"CONNECT_TIMEOUT_MS", "SEND_TIMEOUT_MS", "RECEIVE_WAIT_MS",
	"OUTPUT_MODE", "SAMPLE_INTERVAL_MS", "ROLE_REFRESH_INTERVAL_MS",
	"DIRECTION_THRESHOLD", "TRIGGER_THRESHOLD", "BUTTON_ROLE", "HAPTIC_ROLE",
	"RUNTIME_INIT_RETRY_MS", "TRACKING_SOURCE",
	"AUDIO_ENABLED", "AUDIO_COMMAND",
	"MQTT_ENABLED", "MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC_PREFIX",
	"METRICS_ADDR", "WEB_SERVER_PORT", "DISPLAY_UPDATE_INTERVAL_MS",
	"LOG_LEVEL",
}

// applyEnv overrides keys present in the environment as VRD_<KEY>.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, key := range keys {
		value, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		if err := c.setValue(key, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Link
	case "TARGET_HOST":
		c.TargetHost = value
	case "TARGET_PORT":
		c.TargetPort, err = parseInt(key, value)
	case "NETWORKING_ENABLED":
		c.NetworkingEnabled, err = parseBool(key, value)
	case "RECONNECT_BACKOFF_MS":
		c.ReconnectBackoffMS, err = parseInt(key, value)
	case "CONNECT_TIMEOUT_MS":
		c.ConnectTimeoutMS, err = parseInt(key, value)
	case "SEND_TIMEOUT_MS":
		c.SendTimeoutMS, err = parseInt(key, value)
	case "RECEIVE_WAIT_MS":
		c.ReceiveWaitMS, err = parseInt(key, value)

	// Sampling
	case "OUTPUT_MODE":
		c.OutputMode = value
	case "SAMPLE_INTERVAL_MS":
		c.SampleIntervalMS, err = parseInt(key, value)
	case "ROLE_REFRESH_INTERVAL_MS":
		c.RoleRefreshIntervalMS, err = parseInt(key, value)
	case "DIRECTION_THRESHOLD":
		c.DirectionThreshold, err = parseFloat(key, value)
	case "TRIGGER_THRESHOLD":
		c.TriggerThreshold, err = parseFloat(key, value)
	case "BUTTON_ROLE":
		c.ButtonRole = value
	case "HAPTIC_ROLE":
		c.HapticRole = value

	// Tracking runtime
	case "RUNTIME_INIT_RETRY_MS":
		c.RuntimeInitRetryMS, err = parseInt(key, value)
	case "TRACKING_SOURCE":
		c.TrackingSource = value

	// Audio
	case "AUDIO_ENABLED":
		c.AudioEnabled, err = parseBool(key, value)
	case "AUDIO_COMMAND":
		c.AudioCommand = value

	// MQTT mirror
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = parseBool(key, value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC_PREFIX":
		c.MQTTTopicPrefix = value

	// Observers
	case "METRICS_ADDR":
		c.MetricsAddr = value
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "DISPLAY_UPDATE_INTERVAL_MS":
		c.DisplayUpdateIntervalMS, err = parseInt(key, value)

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// Validate checks ranges and names.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetHost) == "" {
		return fmt.Errorf("%w: TARGET_HOST is required", ErrInvalid)
	}
	if c.TargetPort < 1 || c.TargetPort > 65535 {
		return fmt.Errorf("%w: TARGET_PORT must be 1-65535, got %d", ErrInvalid, c.TargetPort)
	}

	positive := []struct {
		key string
		v   int
	}{
		{"SAMPLE_INTERVAL_MS", c.SampleIntervalMS},
		{"ROLE_REFRESH_INTERVAL_MS", c.RoleRefreshIntervalMS},
		{"RECONNECT_BACKOFF_MS", c.ReconnectBackoffMS},
		{"CONNECT_TIMEOUT_MS", c.ConnectTimeoutMS},
		{"SEND_TIMEOUT_MS", c.SendTimeoutMS},
		{"RECEIVE_WAIT_MS", c.ReceiveWaitMS},
		{"RUNTIME_INIT_RETRY_MS", c.RuntimeInitRetryMS},
		{"DISPLAY_UPDATE_INTERVAL_MS", c.DisplayUpdateIntervalMS},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, p.key, p.v)
		}
	}

	if c.DirectionThreshold <= 0 || c.DirectionThreshold > 1 {
		return fmt.Errorf("%w: DIRECTION_THRESHOLD must be in (0,1], got %g", ErrInvalid, c.DirectionThreshold)
	}
	if c.TriggerThreshold <= 0 || c.TriggerThreshold > 1 {
		return fmt.Errorf("%w: TRIGGER_THRESHOLD must be in (0,1], got %g", ErrInvalid, c.TriggerThreshold)
	}

	if _, err := pose.ParseMode(c.OutputMode); err != nil {
		return fmt.Errorf("%w: OUTPUT_MODE: %v", ErrInvalid, err)
	}
	if _, err := roles.ParseRole(c.ButtonRole); err != nil {
		return fmt.Errorf("%w: BUTTON_ROLE: %v", ErrInvalid, err)
	}
	if _, err := roles.ParseRole(c.HapticRole); err != nil {
		return fmt.Errorf("%w: HAPTIC_ROLE: %v", ErrInvalid, err)
	}
	if c.TrackingSource != "mock" {
		return fmt.Errorf("%w: TRACKING_SOURCE %q is not supported", ErrInvalid, c.TrackingSource)
	}

	if c.AudioEnabled && strings.TrimSpace(c.AudioCommand) == "" {
		return fmt.Errorf("%w: AUDIO_COMMAND is required when AUDIO_ENABLED", ErrInvalid)
	}
	if c.MQTTEnabled && c.MQTTBroker == "" {
		return fmt.Errorf("%w: MQTT_BROKER is required when MQTT_ENABLED", ErrInvalid)
	}
	if c.MQTTTopicPrefix == "" {
		return fmt.Errorf("%w: MQTT_TOPIC_PREFIX must not be empty", ErrInvalid)
	}
	if c.WebServerPort < 1 || c.WebServerPort > 65535 {
		return fmt.Errorf("%w: WEB_SERVER_PORT must be 1-65535, got %d", ErrInvalid, c.WebServerPort)
	}
	return nil
}

// Address is the consumer's host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.TargetHost, strconv.Itoa(c.TargetPort))
}

// Mode returns the parsed output mode. Validate has already checked it.
func (c *Config) Mode() pose.Mode {
	m, _ := pose.ParseMode(c.OutputMode)
	return m
}

// ButtonRoleValue returns the parsed BUTTON_ROLE. Validate has already
// checked the name.
func (c *Config) ButtonRoleValue() roles.Role {
	r, _ := roles.ParseRole(c.ButtonRole)
	return r
}

// HapticRoleValue returns the parsed HAPTIC_ROLE.
func (c *Config) HapticRoleValue() roles.Role {
	r, _ := roles.ParseRole(c.HapticRole)
	return r
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// SampleInterval is SAMPLE_INTERVAL_MS as a duration.
func (c *Config) SampleInterval() time.Duration { return ms(c.SampleIntervalMS) }

// RoleRefreshInterval is ROLE_REFRESH_INTERVAL_MS as a duration.
func (c *Config) RoleRefreshInterval() time.Duration { return ms(c.RoleRefreshIntervalMS) }

// ReconnectBackoff is RECONNECT_BACKOFF_MS as a duration.
func (c *Config) ReconnectBackoff() time.Duration { return ms(c.ReconnectBackoffMS) }

// ConnectTimeout is CONNECT_TIMEOUT_MS as a duration.
func (c *Config) ConnectTimeout() time.Duration { return ms(c.ConnectTimeoutMS) }

// SendTimeout is SEND_TIMEOUT_MS as a duration.
func (c *Config) SendTimeout() time.Duration { return ms(c.SendTimeoutMS) }

// ReceiveWait is RECEIVE_WAIT_MS as a duration.
func (c *Config) ReceiveWait() time.Duration { return ms(c.ReceiveWaitMS) }

// RuntimeInitRetry is RUNTIME_INIT_RETRY_MS as a duration.
func (c *Config) RuntimeInitRetry() time.Duration { return ms(c.RuntimeInitRetryMS) }

// DisplayUpdateInterval is DISPLAY_UPDATE_INTERVAL_MS as a duration.
func (c *Config) DisplayUpdateInterval() time.Duration { return ms(c.DisplayUpdateIntervalMS) }

// InitGlobal loads the process-wide configuration once. Commands call it at
// startup; library packages take a *Config explicitly.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
