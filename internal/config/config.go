package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default configuration values (production)
const (
	DefaultDomain          = "huddle.qzz.io"
	DefaultSTUN            = "stun:stun.l.google.com:19302"
	DefaultTURN            = "" // Optional, empty by default
	DefaultPayloadEncoding = PayloadJSON
	DefaultRelayAddr       = ":8080"
	DefaultRateLimit       = 50
	DefaultRateInterval    = time.Second
)

// Data-channel payload encodings.
const (
	PayloadJSON    = "json"
	PayloadMsgpack = "msgpack"
)

const envPrefix = "HUDDLE"

// Config holds application configuration
type Config struct {
	// Domain is the relay server domain; WebSocketURL is built from it
	Domain string `mapstructure:"domain" yaml:"domain"`

	// Server is a full signaling URL and wins over Domain when set
	Server string `mapstructure:"server" yaml:"server,omitempty"`

	// ICE servers for WebRTC
	STUNServer string `mapstructure:"stun_server" yaml:"stun_server"`
	TURNServer string `mapstructure:"turn_server" yaml:"turn_server,omitempty"`
	TURNUser   string `mapstructure:"turn_user" yaml:"turn_user,omitempty"`
	TURNPass   string `mapstructure:"turn_pass" yaml:"turn_pass,omitempty"`
	ForceRelay bool   `mapstructure:"force_relay" yaml:"force_relay"`

	// PayloadEncoding selects how structured data-channel payloads are sent
	PayloadEncoding string `mapstructure:"payload_encoding" yaml:"payload_encoding"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level,omitempty"`

	Relay RelayConfig `mapstructure:"relay" yaml:"relay"`
}

// RelayConfig configures the `huddle relay` server.
type RelayConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	RateLimit    int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval" yaml:"rate_interval"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigPath      string
	Domain          string
	Server          string
	STUNServer      string
	TURNServer      string
	TURNUser        string
	TURNPass        string
	ForceRelay      bool
	PayloadEncoding string
	LogLevel        string
	RelayAddr       string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Domain:          DefaultDomain,
		STUNServer:      DefaultSTUN,
		TURNServer:      DefaultTURN,
		PayloadEncoding: DefaultPayloadEncoding,
		Relay: RelayConfig{
			Addr:         DefaultRelayAddr,
			RateLimit:    DefaultRateLimit,
			RateInterval: DefaultRateInterval,
		},
	}
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (HUDDLE_*, plus STUN_SERVER / TURN_* for compatibility)
// 3. YAML config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("domain", def.Domain)
	v.SetDefault("server", def.Server)
	v.SetDefault("stun_server", def.STUNServer)
	v.SetDefault("turn_server", def.TURNServer)
	v.SetDefault("turn_user", def.TURNUser)
	v.SetDefault("turn_pass", def.TURNPass)
	v.SetDefault("force_relay", def.ForceRelay)
	v.SetDefault("payload_encoding", def.PayloadEncoding)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("relay.addr", def.Relay.Addr)
	v.SetDefault("relay.rate_limit", def.Relay.RateLimit)
	v.SetDefault("relay.rate_interval", def.Relay.RateInterval)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("domain", "HUDDLE_DOMAIN", "DOMAIN")
	_ = v.BindEnv("stun_server", "HUDDLE_STUN_SERVER", "STUN_SERVER")
	_ = v.BindEnv("turn_server", "HUDDLE_TURN_SERVER", "TURN_SERVER")
	_ = v.BindEnv("turn_user", "HUDDLE_TURN_USER", "TURN_USERNAME")
	_ = v.BindEnv("turn_pass", "HUDDLE_TURN_PASS", "TURN_PASSWORD")

	if err := readConfigFile(v, opts.ConfigPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyOptions(opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readConfigFile loads an explicit path (which must exist) or the default
// path (which may be missing).
func readConfigFile(v *viper.Viper, explicitPath string) error {
	path := explicitPath
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyOptions(opts Options) {
	if opts.Domain != "" {
		c.Domain = opts.Domain
	}
	if opts.Server != "" {
		c.Server = opts.Server
	}
	if opts.STUNServer != "" {
		c.STUNServer = opts.STUNServer
	}
	if opts.TURNServer != "" {
		c.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		c.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		c.TURNPass = opts.TURNPass
	}
	if opts.ForceRelay {
		c.ForceRelay = true
	}
	if opts.PayloadEncoding != "" {
		c.PayloadEncoding = opts.PayloadEncoding
	}
	if opts.LogLevel != "" {
		c.LogLevel = opts.LogLevel
	}
	if opts.RelayAddr != "" {
		c.Relay.Addr = opts.RelayAddr
	}
}

// Validate rejects combinations the client cannot run with.
func (c *Config) Validate() error {
	switch c.PayloadEncoding {
	case PayloadJSON, PayloadMsgpack:
	default:
		return fmt.Errorf("unknown payload encoding %q (want %s or %s)", c.PayloadEncoding, PayloadJSON, PayloadMsgpack)
	}
	if c.ForceRelay && c.GetTURNServers() == nil {
		return errors.New("cannot force relay mode without TURN server configured")
	}
	if c.Relay.RateLimit < 0 || c.Relay.RateInterval < 0 {
		return errors.New("relay rate limit must not be negative")
	}
	return nil
}

// WebSocketURL returns the signaling endpoint.
func (c *Config) WebSocketURL() string {
	if c.Server != "" {
		return c.Server
	}
	return fmt.Sprintf("wss://%s/ws", c.Domain)
}

// RoomsURL returns the relay's room listing endpoint.
func (c *Config) RoomsURL() string {
	u := c.WebSocketURL()
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return strings.TrimSuffix(u, "/ws") + "/rooms"
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// DefaultPath is $XDG_CONFIG_HOME/huddle/config.yaml (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "huddle", "config.yaml")
}

// WriteDefault writes the built-in defaults to path as YAML. An existing file
// is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
