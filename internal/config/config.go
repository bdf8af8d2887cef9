package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	hn "github.com/AtDexters-Lab/nexus-rendezvous/internal/hostnames"
	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutSeconds = 5
	defaultCapacityPolicy = "reject"
)

// Output formats for the client.
const (
	OutputWGConf = "wgconf"
	OutputTerse  = "terse"
)

// Monitor holds the settings for the optional HTTP/WebSocket registry monitor.
type Monitor struct {
	ListenAddress string `yaml:"listenAddress"`
	JWTSecret     string `yaml:"jwtSecret"`
}

// Enabled reports whether the monitor should be started.
func (m Monitor) Enabled() bool {
	return m.ListenAddress != ""
}

// ServerConfig holds the rendezvous server configuration, loaded from a YAML file.
type ServerConfig struct {
	ListenAddress  string  `yaml:"listenAddress"`
	SecretFile     string  `yaml:"secretFile"`
	Encryption     bool    `yaml:"encryption"`
	CapacityPolicy string  `yaml:"capacityPolicy"`
	Monitor        Monitor `yaml:"monitor"`
}

// ClientConfig holds the rendezvous client configuration, loaded from a YAML file.
type ClientConfig struct {
	ServerHost     string `yaml:"serverHost"`
	ServerPort     int    `yaml:"serverPort"`
	PeerID         string `yaml:"peerID"`
	SecretFile     string `yaml:"secretFile"`
	ListenPort     int    `yaml:"listenPort"`
	Encryption     bool   `yaml:"encryption"`
	Group          uint32 `yaml:"group"`
	UpdateEndpoint *bool  `yaml:"updateEndpoint"`
	UpdateRecord   *bool  `yaml:"updateRecord"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	Output         string `yaml:"output"`

	// WireguardDevice, when set, receives the discovered endpoints.
	WireguardDevice string `yaml:"wireguardDevice"`
}

// Timeout returns the overall client deadline as a time.Duration.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ServerAddress returns host:port of the rendezvous server.
func (c *ClientConfig) ServerAddress() string {
	return c.ServerHost + ":" + strconv.Itoa(c.ServerPort)
}

// Flags derives the request control flags from the update settings.
func (c *ClientConfig) Flags() protocol.Flags {
	var f protocol.Flags
	if c.UpdateEndpoint != nil && !*c.UpdateEndpoint {
		f |= protocol.FlagKeepEndpoint
	}
	if c.UpdateRecord != nil && !*c.UpdateRecord {
		f |= protocol.FlagKeepRecord
	}
	return f.Normalize()
}

func (c *ServerConfig) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":" + strconv.Itoa(protocol.DefaultPort)
	}
	if c.CapacityPolicy == "" {
		c.CapacityPolicy = defaultCapacityPolicy
	}
}

// validate performs validation of the loaded server configuration.
func (c *ServerConfig) validate() error {
	if c.SecretFile == "" {
		return fmt.Errorf("secretFile must be set")
	}
	switch c.CapacityPolicy {
	case "reject", "evict-oldest":
	default:
		return fmt.Errorf("capacityPolicy must be 'reject' or 'evict-oldest', got %q", c.CapacityPolicy)
	}
	if c.Monitor.Enabled() && c.Monitor.JWTSecret == "" {
		return fmt.Errorf("monitor.jwtSecret must be set if monitor.listenAddress is defined")
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	if c.ServerPort == 0 {
		c.ServerPort = protocol.DefaultPort
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Output == "" {
		c.Output = OutputWGConf
	}
	c.ServerHost = hn.Normalize(c.ServerHost)
}

// validate performs validation of the loaded client configuration.
func (c *ClientConfig) validate() error {
	if c.ServerHost == "" {
		return fmt.Errorf("serverHost must be set")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("serverPort %d is out of range", c.ServerPort)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listenPort %d is out of range", c.ListenPort)
	}
	if c.SecretFile == "" {
		return fmt.Errorf("secretFile must be set")
	}
	if _, err := protocol.ParsePeerID(c.PeerID); err != nil {
		return fmt.Errorf("peerID is invalid: %w", err)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeoutSeconds cannot be negative")
	}
	if c.Output != OutputWGConf && c.Output != OutputTerse {
		return fmt.Errorf("output must be '%s' or '%s', got %q", OutputWGConf, OutputTerse, c.Output)
	}
	return nil
}

// LoadServerConfig reads the server configuration from the given file path,
// unmarshals it, and performs validation.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadClientConfig reads the client configuration from the given file path,
// unmarshals it, and performs validation.
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal yaml from %s: %w", path, err)
	}
	return nil
}
