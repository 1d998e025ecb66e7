// Package config provides configuration file support for parisprobe.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KilimcininKorOglu/parisprobe/internal/logging"
)

// Config represents the parisprobe configuration file structure.
type Config struct {
	// Defaults are applied when flags are not specified
	Defaults Defaults `yaml:"defaults"`

	// Logging configures the diagnostic log
	Logging logging.Config `yaml:"logging"`

	// Aliases for common targets
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// Defaults holds default values shared by traceroute and ping.
type Defaults struct {
	// Output mode
	TUI     bool `yaml:"tui"`
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
	CSV     bool `yaml:"csv"`
	NoColor bool `yaml:"no_color"`

	// Probe method: icmp, udp, tcp
	ProbeMethod string `yaml:"probe_method"`
	SrcPort     int    `yaml:"src_port"`
	DstPort     int    `yaml:"dst_port"`
	TCPAck      bool   `yaml:"tcp_ack"`
	PacketSize  int    `yaml:"packet_size"`
	FlowLabel   int    `yaml:"flow_label"`

	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	Pcap        string        `yaml:"pcap,omitempty"`

	// Network
	IPv4 bool `yaml:"ipv4"`
	IPv6 bool `yaml:"ipv6"`

	Traceroute TracerouteDefaults `yaml:"traceroute"`
	Ping       PingDefaults       `yaml:"ping"`

	// Enrichment
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

// TracerouteDefaults holds traceroute parameters.
type TracerouteDefaults struct {
	FirstHop        int `yaml:"first_hop"`
	MaxHops         int `yaml:"max_hops"`
	Queries         int `yaml:"queries"`
	MaxUndiscovered int `yaml:"max_undiscovered"`
}

// PingDefaults holds ping parameters.
type PingDefaults struct {
	Count         int           `yaml:"count"`
	Interval      time.Duration `yaml:"interval"`
	TTL           int           `yaml:"ttl"`
	ShowTimestamp bool          `yaml:"show_timestamp"`
}

// EnrichmentConfig holds enrichment settings.
type EnrichmentConfig struct {
	RDNS     bool          `yaml:"rdns"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			ProbeMethod: "icmp",
			Timeout:     3 * time.Second,
			Concurrency: 8,
			Traceroute: TracerouteDefaults{
				FirstHop:        1,
				MaxHops:         30,
				Queries:         3,
				MaxUndiscovered: 3,
			},
			Ping: PingDefaults{
				Count:    5,
				Interval: time.Second,
				TTL:      64,
			},
			Enrichment: EnrichmentConfig{
				RDNS:     true,
				CacheTTL: time.Hour,
			},
		},
		Logging: logging.DefaultConfig(),
		Aliases: make(map[string]string),
	}
}

// Load reads configuration from the default config file locations.
// It searches in order:
//  1. ./parisprobe.yaml (current directory)
//  2. ~/.config/parisprobe/config.yaml (Linux/macOS, XDG_CONFIG_HOME aware)
//  3. %APPDATA%\parisprobe\config.yaml (Windows)
//
// If no config file is found, returns default configuration.
func Load() (*Config, error) {
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFrom(path)
		}
	}

	// No config file found, return defaults
	return DefaultConfig(), nil
}

// LoadFrom reads configuration from a specific file path. Keys missing from
// the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

// ResolveAlias returns the target an alias stands for, or target itself.
func (c *Config) ResolveAlias(target string) string {
	if alias, ok := c.Aliases[target]; ok {
		return alias
	}
	return target
}

// Save writes the configuration to the default user config path.
func (c *Config) Save() error {
	return c.SaveTo(getUserConfigPath())
}

// SaveTo writes the configuration to a specific file path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// getConfigPaths returns the list of config file paths to search.
func getConfigPaths() []string {
	paths := []string{
		"parisprobe.yaml",
		"parisprobe.yml",
		".parisprobe.yaml",
		".parisprobe.yml",
	}

	// Add user config path
	if userPath := getUserConfigPath(); userPath != "" {
		paths = append(paths, userPath)
	}

	return paths
}

// getUserConfigPath returns the user-specific config file path.
func getUserConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "parisprobe", "config.yaml")
		}
	default: // Linux, macOS, etc.
		// Check XDG_CONFIG_HOME first
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "parisprobe", "config.yaml")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "parisprobe", "config.yaml")
		}
	}
	return ""
}

// GetConfigPath returns the path where user config would be saved.
func GetConfigPath() string {
	return getUserConfigPath()
}

// GenerateExample generates an example configuration file content.
func GenerateExample() string {
	return `# parisprobe configuration file
# Location: ~/.config/parisprobe/config.yaml (Linux/macOS)
#           %APPDATA%\parisprobe\config.yaml (Windows)
#           ./parisprobe.yaml (current directory)

defaults:
  # Output mode (only one should be true)
  tui: false              # Interactive TUI mode (traceroute)
  verbose: false          # Detailed table output
  json: false             # JSON output
  csv: false              # CSV output
  no_color: false         # Disable colors

  # Probe method: icmp, udp, tcp
  probe_method: icmp
  src_port: 0             # 0 = default for the method
  dst_port: 0             # 0 = default for the method
  tcp_ack: false          # Send TCP ACK instead of SYN
  packet_size: 0          # Total IP packet size (0 = smallest)
  flow_label: 0           # IPv6 flow label

  timeout: 3s             # Probe timeout
  concurrency: 8          # Targets probed in parallel

  # Network settings
  ipv4: false             # Force IPv4
  ipv6: false             # Force IPv6

  traceroute:
    first_hop: 1
    max_hops: 30
    queries: 3            # Probes per hop
    max_undiscovered: 3   # Give up after this many silent hops in a row

  ping:
    count: 5
    interval: 1s
    ttl: 64
    show_timestamp: false

  enrichment:
    rdns: true            # Reverse DNS lookups
    cache_ttl: 1h

logging:
  level: warn
  file: ""                # Rotated log file (empty = stderr)
  max_size: 10            # megabytes
  max_backups: 3
  max_age: 28             # days
  compress: false

# Target aliases (optional)
aliases:
  dns: 8.8.8.8
  cf: 1.1.1.1
`
}
