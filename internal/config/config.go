// Package config manages smppsim daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete smppsim configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	SMPP      SMPPConfig      `koanf:"smpp"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	MoService MoServiceConfig `koanf:"mo_service"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ServerConfig holds the admin HTTP API listener configuration.
type ServerConfig struct {
	// Host is the bind address for the admin API (e.g., "0.0.0.0").
	Host string `koanf:"host"`
	// Port is the admin API TCP port.
	Port int `koanf:"port"`
}

// Addr returns the admin API listen address as host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SMPPConfig holds the SMPP listener and authentication configuration.
type SMPPConfig struct {
	// Port is the SMPP TCP port.
	Port int `koanf:"port"`

	// SystemID and Password form the default credential pair.
	SystemID string `koanf:"system_id"`
	Password string `koanf:"password"`

	// MaxSessions bounds concurrently bound sessions; binds beyond the
	// limit are rejected. Zero means unlimited.
	MaxSessions int `koanf:"max_sessions"`

	// Accounts lists additional credential pairs beyond the default.
	Accounts []AccountConfig `koanf:"accounts"`

	// Version selects the protocol mode: "5.0" (strict) or "3.4"
	// (lenient bind repair).
	Version string `koanf:"version"`
}

// Addr returns the SMPP listen address, binding all interfaces.
func (c SMPPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AccountConfig is one extra system_id/password pair.
type AccountConfig struct {
	SystemID string `koanf:"system_id"`
	Password string `koanf:"password"`
}

// LifecycleConfig holds the delivery-receipt engine parameters.
type LifecycleConfig struct {
	// MessageStateCheckFrequencyMs is the engine tick interval.
	MessageStateCheckFrequencyMs int `koanf:"message_state_check_frequency_ms"`

	// MaxTimeEnrouteMs is the minimum message age before the final state
	// is drawn.
	MaxTimeEnrouteMs int `koanf:"max_time_enroute_ms"`

	// DiscardFromQueueAfterMs prunes old recent-queue entries; zero
	// disables pruning.
	DiscardFromQueueAfterMs int `koanf:"discard_from_queue_after_ms"`

	// PercentDelivered, PercentUndeliverable, PercentAccepted, and
	// PercentRejected weight the final-state draw; each in [0,100],
	// summing to at most 100.
	PercentDelivered     int `koanf:"percent_delivered"`
	PercentUndeliverable int `koanf:"percent_undeliverable"`
	PercentAccepted      int `koanf:"percent_accepted"`
	PercentRejected      int `koanf:"percent_rejected"`

	// DeliveryReceiptTLV optionally appends a TLV to every receipt,
	// written as "TTTT:HEX" (hex tag, colon, hex value). Empty disables.
	DeliveryReceiptTLV string `koanf:"delivery_receipt_tlv"`
}

// MoServiceConfig holds the mobile-originated feed configuration.
type MoServiceConfig struct {
	// Enabled gates the autonomous CSV feed.
	Enabled bool `koanf:"enabled"`

	// DeliveryMessagesPerMinute spaces out CSV deliveries; zero disables
	// the feed.
	DeliveryMessagesPerMinute int `koanf:"delivery_messages_per_minute"`

	// FilePath is the CSV source file.
	FilePath string `koanf:"file_path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the simulator defaults:
// the IANA SMPP port, the smppclient1/password credential pair, and a
// 90/6/2/2 delivery distribution.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		SMPP: SMPPConfig{
			Port:        2775,
			SystemID:    "smppclient1",
			Password:    "password",
			MaxSessions: 50,
			Version:     "5.0",
		},
		Lifecycle: LifecycleConfig{
			MessageStateCheckFrequencyMs: 5000,
			MaxTimeEnrouteMs:             10000,
			DiscardFromQueueAfterMs:      60000,
			PercentDelivered:             90,
			PercentUndeliverable:         6,
			PercentAccepted:              2,
			PercentRejected:              2,
		},
		MoService: MoServiceConfig{
			Enabled:                   false,
			DeliveryMessagesPerMinute: 0,
			FilePath:                  "deliver_messages.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for smppsim configuration.
// Variables are named SMPPSIM__<section>__<key> with double underscores
// separating path segments, so keys containing single underscores survive
// the mapping, e.g., SMPPSIM__SMPP__SYSTEM_ID.
const envPrefix = "SMPPSIM__"

// RunMode returns the deployment mode from $RUN_MODE, defaulting to
// "development". It selects the default configuration file name.
func RunMode() string {
	if mode := os.Getenv("RUN_MODE"); mode != "" {
		return mode
	}
	return "development"
}

// DefaultPath returns the configuration file path for the current run
// mode, e.g., "config.development.yaml".
func DefaultPath() string {
	return "config." + RunMode() + ".yaml"
}

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SMPPSIM__ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// An empty path resolves through DefaultPath(); in that case a missing
// file is not an error and defaults plus environment apply.
//
// Environment variable mapping:
//
//	SMPPSIM__SMPP__PORT          -> smpp.port
//	SMPPSIM__SMPP__SYSTEM_ID     -> smpp.system_id
//	SMPPSIM__LOG__LEVEL          -> log.level
//	SMPPSIM__MO_SERVICE__ENABLED -> mo_service.enabled
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !optional || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms SMPPSIM__SMPP__SYSTEM_ID -> smpp.system_id.
// Strips the SMPPSIM__ prefix, lowercases, and replaces __ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.host":                                defaults.Server.Host,
		"server.port":                                defaults.Server.Port,
		"smpp.port":                                  defaults.SMPP.Port,
		"smpp.system_id":                             defaults.SMPP.SystemID,
		"smpp.password":                              defaults.SMPP.Password,
		"smpp.max_sessions":                          defaults.SMPP.MaxSessions,
		"smpp.version":                               defaults.SMPP.Version,
		"lifecycle.message_state_check_frequency_ms": defaults.Lifecycle.MessageStateCheckFrequencyMs,
		"lifecycle.max_time_enroute_ms":              defaults.Lifecycle.MaxTimeEnrouteMs,
		"lifecycle.discard_from_queue_after_ms":      defaults.Lifecycle.DiscardFromQueueAfterMs,
		"lifecycle.percent_delivered":                defaults.Lifecycle.PercentDelivered,
		"lifecycle.percent_undeliverable":            defaults.Lifecycle.PercentUndeliverable,
		"lifecycle.percent_accepted":                 defaults.Lifecycle.PercentAccepted,
		"lifecycle.percent_rejected":                 defaults.Lifecycle.PercentRejected,
		"lifecycle.delivery_receipt_tlv":             defaults.Lifecycle.DeliveryReceiptTLV,
		"mo_service.enabled":                         defaults.MoService.Enabled,
		"mo_service.delivery_messages_per_minute":    defaults.MoService.DeliveryMessagesPerMinute,
		"mo_service.file_path":                       defaults.MoService.FilePath,
		"log.level":                                  defaults.Log.Level,
		"log.format":                                 defaults.Log.Format,
		"metrics.addr":                               defaults.Metrics.Addr,
		"metrics.path":                               defaults.Metrics.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidServerPort indicates the admin API port is out of range.
	ErrInvalidServerPort = errors.New("server.port must be in 1..65535")

	// ErrInvalidSMPPPort indicates the SMPP port is out of range.
	ErrInvalidSMPPPort = errors.New("smpp.port must be in 1..65535")

	// ErrEmptySystemID indicates the default system_id is empty.
	ErrEmptySystemID = errors.New("smpp.system_id must not be empty")

	// ErrEmptyPassword indicates the default password is empty.
	ErrEmptyPassword = errors.New("smpp.password must not be empty")

	// ErrInvalidMaxSessions indicates a negative session limit.
	ErrInvalidMaxSessions = errors.New("smpp.max_sessions must be >= 0")

	// ErrEmptyAccount indicates an extra account with a blank field.
	ErrEmptyAccount = errors.New("smpp.accounts entries need system_id and password")

	// ErrInvalidCheckFrequency indicates a non-positive engine tick.
	ErrInvalidCheckFrequency = errors.New("lifecycle.message_state_check_frequency_ms must be > 0")

	// ErrInvalidMaxTimeEnroute indicates a negative enroute time.
	ErrInvalidMaxTimeEnroute = errors.New("lifecycle.max_time_enroute_ms must be >= 0")

	// ErrInvalidDiscardAfter indicates a negative queue discard age.
	ErrInvalidDiscardAfter = errors.New("lifecycle.discard_from_queue_after_ms must be >= 0")

	// ErrInvalidPercentage indicates a percentage outside [0,100].
	ErrInvalidPercentage = errors.New("lifecycle percentages must be in 0..100")

	// ErrPercentSumTooHigh indicates the percentages sum past 100.
	ErrPercentSumTooHigh = errors.New("lifecycle percentages must sum to at most 100")

	// ErrInvalidRate indicates a negative MO feed rate.
	ErrInvalidRate = errors.New("mo_service.delivery_messages_per_minute must be >= 0")

	// ErrEmptyFilePath indicates an enabled feed without a file.
	ErrEmptyFilePath = errors.New("mo_service.file_path must not be empty when enabled")

	// ErrInvalidTLVSpec indicates a malformed delivery_receipt_tlv value.
	ErrInvalidTLVSpec = errors.New(`delivery_receipt_tlv must be "TTTT:HEX"`)
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return ErrInvalidServerPort
	}
	if cfg.SMPP.Port < 1 || cfg.SMPP.Port > 65535 {
		return ErrInvalidSMPPPort
	}
	if cfg.SMPP.SystemID == "" {
		return ErrEmptySystemID
	}
	if cfg.SMPP.Password == "" {
		return ErrEmptyPassword
	}
	if cfg.SMPP.MaxSessions < 0 {
		return ErrInvalidMaxSessions
	}
	for i, a := range cfg.SMPP.Accounts {
		if a.SystemID == "" || a.Password == "" {
			return fmt.Errorf("accounts[%d]: %w", i, ErrEmptyAccount)
		}
	}

	if err := validateLifecycle(&cfg.Lifecycle); err != nil {
		return err
	}

	if cfg.MoService.DeliveryMessagesPerMinute < 0 {
		return ErrInvalidRate
	}
	if cfg.MoService.Enabled && cfg.MoService.FilePath == "" {
		return ErrEmptyFilePath
	}

	return nil
}

// validateLifecycle checks the engine timings and the state distribution.
func validateLifecycle(lc *LifecycleConfig) error {
	if lc.MessageStateCheckFrequencyMs <= 0 {
		return ErrInvalidCheckFrequency
	}
	if lc.MaxTimeEnrouteMs < 0 {
		return ErrInvalidMaxTimeEnroute
	}
	if lc.DiscardFromQueueAfterMs < 0 {
		return ErrInvalidDiscardAfter
	}

	sum := 0
	for _, p := range []int{
		lc.PercentDelivered,
		lc.PercentUndeliverable,
		lc.PercentAccepted,
		lc.PercentRejected,
	} {
		if p < 0 || p > 100 {
			return ErrInvalidPercentage
		}
		sum += p
	}
	if sum > 100 {
		return ErrPercentSumTooHigh
	}

	if lc.DeliveryReceiptTLV != "" {
		if _, _, err := ParseTLVSpec(lc.DeliveryReceiptTLV); err != nil {
			return err
		}
	}

	return nil
}

// ParseTLVSpec parses a "TTTT:HEX" TLV description: a 4-hex-digit tag, a
// colon, and an even-length hex value (possibly empty).
func ParseTLVSpec(spec string) (tag uint16, value []byte, err error) {
	tagPart, valPart, ok := strings.Cut(spec, ":")
	if !ok || len(tagPart) != 4 {
		return 0, nil, fmt.Errorf("%q: %w", spec, ErrInvalidTLVSpec)
	}
	t, err := strconv.ParseUint(tagPart, 16, 16)
	if err != nil {
		return 0, nil, fmt.Errorf("%q tag: %w", spec, ErrInvalidTLVSpec)
	}
	v, err := hex.DecodeString(valPart)
	if err != nil {
		return 0, nil, fmt.Errorf("%q value: %w", spec, ErrInvalidTLVSpec)
	}
	return uint16(t), v, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
