// Package config loads the gateway configuration from YAML over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/hexcodec"
	"gopkg.in/yaml.v3"
)

// MinReportInterval is the shortest report interval the endpoint tolerates
const MinReportInterval = 5 * time.Second

// Config holds application configuration
type Config struct {
	LogLevel string       `yaml:"log_level" default:"info"`
	Sensor   SensorConfig `yaml:"sensor"`
	Poll     PollConfig   `yaml:"poll"`
	Report   ReportConfig `yaml:"report"`
	API      APIConfig    `yaml:"api"`
}

// SensorConfig identifies the peripheral and its GATT layout
type SensorConfig struct {
	Name             string        `yaml:"name" default:"SensorPush HTP.xw 69D"`
	Address          string        `yaml:"address"`
	ServiceUUID      string        `yaml:"service_uuid" default:"EF090000-11D6-42BA-93B8-9DD7EC090AB0"`
	TemperatureUUID  string        `yaml:"temperature_uuid" default:"EF090080-11D6-42BA-93B8-9DD7EC090AA9"`
	HumidityUUID     string        `yaml:"humidity_uuid" default:"EF090081-11D6-42BA-93B8-9DD7EC090AA9"`
	PressureUUID     string        `yaml:"pressure_uuid" default:"EF090082-11D6-42BA-93B8-9DD7EC090AA9"`
	ScanDelay        time.Duration `yaml:"scan_delay" default:"1s"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	DegradedAfter    int           `yaml:"degraded_after" default:"3"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial" default:"1s"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" default:"30s"`
}

// PollConfig controls the per-sensor timers
type PollConfig struct {
	Autostart     bool          `yaml:"autostart" default:"true"`
	Interval      time.Duration `yaml:"interval" default:"4500ms"`
	Trigger       string        `yaml:"trigger" default:"01000000"`
	OpTimeout     time.Duration `yaml:"op_timeout" default:"2s"`
	Retries       int           `yaml:"retries" default:"2"`
	RetryInterval time.Duration `yaml:"retry_interval" default:"200ms"`
	StaleAfter    time.Duration `yaml:"stale_after" default:"15s"`
}

// ReportConfig controls the report timer and its sinks
type ReportConfig struct {
	Interval      time.Duration `yaml:"interval" default:"5s"`
	QueueSize     int           `yaml:"queue_size" default:"16"`
	SkipEmpty     bool          `yaml:"skip_empty" default:"true"`
	MaxElapsed    time.Duration `yaml:"max_elapsed"`
	RetryInterval time.Duration `yaml:"retry_interval" default:"500ms"`

	HTTP   HTTPSinkConfig `yaml:"http"`
	MQTT   MQTTSinkConfig `yaml:"mqtt"`
	Outbox OutboxConfig   `yaml:"outbox"`
}

// HTTPSinkConfig is the report endpoint; an empty URL disables it
type HTTPSinkConfig struct {
	URL     string        `yaml:"url" default:"http://172.16.136.143:8080/Sensor_THP/SensorPush"`
	Method  string        `yaml:"method" default:"PUT"`
	Timeout time.Duration `yaml:"timeout" default:"5s"`
}

// MQTTSinkConfig is the optional broker; an empty broker disables it
type MQTTSinkConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port" default:"1883"`
	ClientID string `yaml:"client_id" default:"thpgw"`
	Topic    string `yaml:"topic" default:"thpgw/sensorpush/thp"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retained bool   `yaml:"retained"`
}

// OutboxConfig is the durable backlog of failed reports; an empty path disables it
type OutboxConfig struct {
	Path     string `yaml:"path"`
	MaxItems int    `yaml:"max_items" default:"1000"`
}

// APIConfig is the local control API; an empty listen address disables it
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := cfg.Decode(f); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// Validate checks the values the gateway cannot run without
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Sensor.Name) == "" && strings.TrimSpace(c.Sensor.Address) == "" {
		errs = append(errs, errors.New("sensor.name or sensor.address is required"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive, got %v", c.Poll.Interval))
	}
	if c.Poll.Retries < 0 {
		errs = append(errs, fmt.Errorf("poll.retries must not be negative, got %d", c.Poll.Retries))
	}
	if _, err := c.TriggerBytes(); err != nil {
		errs = append(errs, fmt.Errorf("poll.trigger: %w", err))
	}
	if c.Report.Interval < MinReportInterval {
		errs = append(errs, fmt.Errorf("report.interval must be at least %v, got %v", MinReportInterval, c.Report.Interval))
	}
	if c.Report.HTTP.URL == "" && c.Report.MQTT.Broker == "" {
		errs = append(errs, errors.New("at least one sink is required: report.http.url or report.mqtt.broker"))
	}
	if c.Report.MQTT.Broker != "" && c.Report.MQTT.Topic == "" {
		errs = append(errs, errors.New("report.mqtt.topic is required when a broker is set"))
	}

	return errors.Join(errs...)
}

// Level parses LogLevel
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// TriggerBytes decodes the poll trigger payload
func (c *Config) TriggerBytes() ([]byte, error) {
	return hexcodec.Decode(c.Poll.Trigger)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, _ := c.Level()

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
