// Package config loads the gozwave driver's configuration from a YAML file,
// with environment variable overrides applied after the file load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a gozwave driver instance.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Tunables TunablesConfig `yaml:"tunables"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// SerialConfig names the physical transport. The port is the only input the
// core driver strictly requires.
type SerialConfig struct {
	Port string `yaml:"port"`
}

// TunablesConfig carries the driver's timing and retry knobs. Every field
// has a sensible default; most deployments only ever set serial.port.
type TunablesConfig struct {
	ResponseTimeoutMS int `yaml:"response_timeout_ms"`
	ReceiveTimeoutMS  int `yaml:"receive_timeout_ms"`
	WatchdogPeriodMS  int `yaml:"watchdog_period_ms"`
	StageStallMS      int `yaml:"stage_stall_ms"`
	InitialQueueCap   int `yaml:"initial_queue_capacity"`
	RetryAttempts     int `yaml:"retry_attempts"`
}

// LoggingConfig selects the logging.New handler shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout" or a file path
}

// MQTTConfig configures the optional mqttsink.EventSink adapter.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// InfluxDBConfig configures the optional influxsink.Exporter adapter.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	FlushInterval int    `yaml:"flush_interval_seconds"`
}

// Load reads path as YAML over a defaulted Config, applies environment
// overrides, and validates the result.
//
// Load order: defaults → YAML file → environment (GOZWAVE_<SECTION>_<KEY>).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Tunables: TunablesConfig{
			ResponseTimeoutMS: 5000,
			ReceiveTimeoutMS:  1000,
			WatchdogPeriodMS:  10000,
			StageStallMS:      120000,
			InitialQueueCap:   128,
			RetryAttempts:     3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			QoS: 1,
		},
		InfluxDB: InfluxDBConfig{
			FlushInterval: 30,
		},
	}
}

// applyEnvOverrides applies GOZWAVE_<SECTION>_<KEY> overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOZWAVE_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("GOZWAVE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GOZWAVE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GOZWAVE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("GOZWAVE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("GOZWAVE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GOZWAVE_TUNABLES_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tunables.RetryAttempts = n
		}
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Tunables.RetryAttempts < 0 {
		errs = append(errs, "tunables.retry_attempts must be >= 0")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt.enabled is true")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResponseTimeout returns the TransactionEngine response timeout.
func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.Tunables.ResponseTimeoutMS) * time.Millisecond
}

// ReceiveTimeout returns the serial link's inter-byte read timeout.
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.Tunables.ReceiveTimeoutMS) * time.Millisecond
}

// WatchdogPeriod returns the Watchdog tick period.
func (c *Config) WatchdogPeriod() time.Duration {
	return time.Duration(c.Tunables.WatchdogPeriodMS) * time.Millisecond
}

// StageStallThreshold returns the Watchdog's dead-node stall threshold.
func (c *Config) StageStallThreshold() time.Duration {
	return time.Duration(c.Tunables.StageStallMS) * time.Millisecond
}

// InfluxFlushInterval returns the influxsink flush period.
func (c *InfluxDBConfig) InfluxFlushInterval() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}
