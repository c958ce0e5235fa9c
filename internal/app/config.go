package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/victorvcruz/clipsync/internal/codec"
	"github.com/victorvcruz/clipsync/internal/secret"
)

// Environment variables consulted at startup.
const (
	EnvConfigPath = "CLIPSYNC_CONFIG"
	EnvAESKey     = "CLIPSYNC_AES_KEY"
)

const (
	DefaultPort          = 5000
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultSendTimeout   = 3 * time.Second
	DefaultShutdownGrace = 5 * time.Second

	minPollInterval  = 50 * time.Millisecond
	minSendTimeout   = 100 * time.Millisecond
	maxSendTimeout   = 30 * time.Second
	maxSendRetries   = 5
	maxShutdownGrace = time.Minute
)

// ConfigError reports an invalid or missing configuration value. It is
// always fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Duration accepts Go duration strings ("750ms", "2s") in YAML and JSON.
// Bare numbers are read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	return d.UnmarshalText([]byte(text))
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds float64
	if node.Tag == "!!int" || node.Tag == "!!float" {
		if err := node.Decode(&seconds); err != nil {
			return err
		}
		*d = Duration(seconds * float64(time.Second))
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}

// Config is loaded once at startup and never changes afterwards.
type Config struct {
	BindAddress    string   `yaml:"bind_address" json:"bind_address"`
	LocalPort      uint16   `yaml:"local_port" json:"local_port"`
	PeerIP         string   `yaml:"peer_ip" json:"peer_ip"`
	PeerPort       uint16   `yaml:"peer_port" json:"peer_port"`
	AESKey         string   `yaml:"aes_key" json:"aes_key"`
	IV             string   `yaml:"iv" json:"iv"`
	LegacyStaticIV bool     `yaml:"legacy_static_iv" json:"legacy_static_iv"`
	PollInterval   Duration `yaml:"poll_interval" json:"poll_interval"`
	SendTimeout    Duration `yaml:"send_timeout" json:"send_timeout"`
	SendRetries    int      `yaml:"send_retries" json:"send_retries"`
	ShutdownGrace  Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
	LogLevel       string   `yaml:"log_level" json:"log_level"`
	LogFormat      string   `yaml:"log_format" json:"log_format"`

	key *secret.Key
	iv  []byte
}

func DefaultConfig() *Config {
	return &Config{
		LocalPort:     DefaultPort,
		PeerPort:      DefaultPort,
		PollInterval:  Duration(DefaultPollInterval),
		SendTimeout:   Duration(DefaultSendTimeout),
		ShutdownGrace: Duration(DefaultShutdownGrace),
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// LoadConfig reads path over the defaults. YAML is used for .yaml and .yml
// files; anything else is parsed as JSON with comments allowed.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), config)
	}
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("parsing %s: %w", path, err)}
	}
	return config, nil
}

// Validate checks every field and decodes the key material. It must be
// called before the config is handed to NewDaemon.
func (c *Config) Validate() error {
	if c.PeerIP == "" {
		return &ConfigError{Field: "peer_ip", Err: errors.New("is required")}
	}
	if strings.ContainsAny(c.PeerIP, "/ \t") || (strings.Contains(c.PeerIP, ":") && net.ParseIP(c.PeerIP) == nil) {
		return &ConfigError{Field: "peer_ip", Err: fmt.Errorf("%q is not a host name or IP address", c.PeerIP)}
	}
	if c.PeerPort == 0 {
		return &ConfigError{Field: "peer_port", Err: errors.New("must be between 1 and 65535")}
	}
	if c.BindAddress != "" && net.ParseIP(c.BindAddress) == nil {
		return &ConfigError{Field: "bind_address", Err: fmt.Errorf("%q is not an IP address", c.BindAddress)}
	}

	if c.PollInterval.Std() < minPollInterval {
		return &ConfigError{Field: "poll_interval", Err: fmt.Errorf("must be at least %v", minPollInterval)}
	}
	if c.SendTimeout.Std() < minSendTimeout || c.SendTimeout.Std() > maxSendTimeout {
		return &ConfigError{Field: "send_timeout", Err: fmt.Errorf("must be between %v and %v", minSendTimeout, maxSendTimeout)}
	}
	if c.SendRetries < 0 || c.SendRetries > maxSendRetries {
		return &ConfigError{Field: "send_retries", Err: fmt.Errorf("must be between 0 and %d", maxSendRetries)}
	}
	if c.ShutdownGrace.Std() <= 0 || c.ShutdownGrace.Std() > maxShutdownGrace {
		return &ConfigError{Field: "shutdown_grace", Err: fmt.Errorf("must be positive and at most %v", maxShutdownGrace)}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Err: err}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &ConfigError{Field: "log_format", Err: fmt.Errorf("%q is not text or json", c.LogFormat)}
	}

	if c.IV != "" {
		iv, err := base64.StdEncoding.DecodeString(c.IV)
		if err != nil {
			return &ConfigError{Field: "iv", Err: fmt.Errorf("invalid base64: %w", err)}
		}
		if len(iv) != codec.BlockSize {
			return &ConfigError{Field: "iv", Err: fmt.Errorf("must decode to %d bytes, got %d", codec.BlockSize, len(iv))}
		}
		c.iv = iv
	}
	if c.LegacyStaticIV && c.iv == nil {
		return &ConfigError{Field: "legacy_static_iv", Err: errors.New("requires iv to be set")}
	}

	if c.AESKey == "" {
		if c.key != nil {
			return nil
		}
		return &ConfigError{Field: "aes_key", Err: errors.New("is required")}
	}
	key, err := secret.DecodeBase64(c.AESKey)
	if err != nil {
		return &ConfigError{Field: "aes_key", Err: err}
	}
	switch key.Len() {
	case 16, 24, 32:
	default:
		size := key.Len()
		key.Close()
		return &ConfigError{Field: "aes_key", Err: codec.KeySizeError(size)}
	}
	if c.key != nil {
		c.key.Close()
	}
	c.key = key
	// The decoded copy in protected memory is the only one kept.
	c.AESKey = ""
	return nil
}

// Key returns the decoded key, or nil before Validate.
func (c *Config) Key() *secret.Key { return c.key }

// StaticIV returns the decoded legacy IV when legacy framing is enabled.
func (c *Config) StaticIV() []byte {
	if !c.LegacyStaticIV {
		return nil
	}
	return c.iv
}

// ListenAddr is the address the inbound server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddress, fmt.Sprint(c.LocalPort))
}

// Close zeroes the key material.
func (c *Config) Close() {
	if c.key != nil {
		c.key.Close()
	}
}

// LogValue keeps key material out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen", c.ListenAddr()),
		slog.String("peer", net.JoinHostPort(c.PeerIP, fmt.Sprint(c.PeerPort))),
		slog.Duration("poll_interval", c.PollInterval.Std()),
		slog.Duration("send_timeout", c.SendTimeout.Std()),
		slog.Int("send_retries", c.SendRetries),
		slog.Bool("legacy_static_iv", c.LegacyStaticIV),
	)
}
