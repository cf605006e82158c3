// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Room creation policies.
const (
	RoomCreationExplicit = "explicit"
	RoomCreationImplicit = "implicit"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode. Only "standalone" is supported.
	Mode string `mapstructure:"mode"`
	// RoomCreation is "explicit" (rooms only via /create-room) or "implicit"
	// (first join or spectate creates the room).
	RoomCreation string `mapstructure:"room_creation"`
}

// HTTPConfig holds the request/response and WebSocket listener settings.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// ReadTimeout bounds reading a request, including headers.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds a single WebSocket frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins lists CORS and WebSocket origins; "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// GRPCConfig holds the streaming gRPC listener settings.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// RoomsConfig holds room lifecycle and connection settings.
type RoomsConfig struct {
	// InactivityTimeout is how long a room survives without any request or message.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	// SweepInterval is how often idle rooms are evicted.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// HeartbeatInterval is the liveness ping period for persistent connections.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// SendBuffer is the per-connection outbound queue depth.
	SendBuffer int `mapstructure:"send_buffer"`
	// DefaultDecks is the deck count for rooms created without one.
	DefaultDecks int `mapstructure:"default_decks"`
	// MaxDecks caps the deck count a client may request.
	MaxDecks int `mapstructure:"max_decks"`
}

// RulesConfig selects the ruleset.
type RulesConfig struct {
	// Builtin names an embedded ruleset, used when Manifest is empty.
	Builtin string `mapstructure:"builtin"`
	// Manifest is a path to a YAML ruleset manifest.
	Manifest string `mapstructure:"manifest"`
	// InstructionLimit overrides the manifest's per-call opcode budget when > 0.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	// NATSURL is the NATS server URL; empty disables publishing.
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Logging LoggingConfig `mapstructure:"logging"`
	Rooms   RoomsConfig   `mapstructure:"rooms"`
	Rules   RulesConfig   `mapstructure:"rules"`
	Events  EventsConfig  `mapstructure:"events"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateServer(c.Server),
		validateHTTP(c.HTTP),
		validateGRPC(c.GRPC),
		validateLogging(c.Logging),
		validateRooms(c.Rooms),
		validateRules(c.Rules),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Mode != "standalone" {
		errs = append(errs, fmt.Sprintf("server.mode must be one of [standalone], got %q", s.Mode))
	}
	if s.RoomCreation != RoomCreationExplicit && s.RoomCreation != RoomCreationImplicit {
		errs = append(errs, fmt.Sprintf("server.room_creation must be one of [explicit, implicit], got %q", s.RoomCreation))
	}
	return joinErrs(errs)
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if !validPort(h.Port) {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateGRPC(g GRPCConfig) error {
	if !g.Enabled {
		return nil
	}
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if !validPort(g.Port) {
		errs = append(errs, fmt.Sprintf("grpc.port must be 1-65535, got %d", g.Port))
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateRooms(r RoomsConfig) error {
	var errs []string
	if r.InactivityTimeout <= 0 {
		errs = append(errs, "rooms.inactivity_timeout must be positive")
	}
	if r.SweepInterval <= 0 {
		errs = append(errs, "rooms.sweep_interval must be positive")
	}
	if r.HeartbeatInterval <= 0 {
		errs = append(errs, "rooms.heartbeat_interval must be positive")
	}
	if r.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("rooms.send_buffer must be >= 1, got %d", r.SendBuffer))
	}
	if r.DefaultDecks < 1 {
		errs = append(errs, fmt.Sprintf("rooms.default_decks must be >= 1, got %d", r.DefaultDecks))
	}
	if r.MaxDecks < r.DefaultDecks {
		errs = append(errs, "rooms.max_decks must not be less than rooms.default_decks")
	}
	return joinErrs(errs)
}

func validateRules(r RulesConfig) error {
	var errs []string
	if r.Builtin == "" && r.Manifest == "" {
		errs = append(errs, "one of rules.builtin or rules.manifest must be set")
	}
	if r.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("rules.instruction_limit must be >= 0, got %d", r.InstructionLimit))
	}
	return joinErrs(errs)
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with DAGUAI_ prefix
	v.SetEnvPrefix("DAGUAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "standalone")
	v.SetDefault("server.room_creation", RoomCreationExplicit)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rooms.inactivity_timeout", "30m")
	v.SetDefault("rooms.sweep_interval", "1m")
	v.SetDefault("rooms.heartbeat_interval", "30s")
	v.SetDefault("rooms.send_buffer", 64)
	v.SetDefault("rooms.default_decks", 1)
	v.SetDefault("rooms.max_decks", 8)

	v.SetDefault("rules.builtin", "freeplay")
	v.SetDefault("rules.manifest", "")
	v.SetDefault("rules.instruction_limit", 0)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "daguai")
}
