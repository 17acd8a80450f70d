// Package config loads and validates the server configuration from a
// YAML file with environment variable overrides.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// LoggingConfig holds the configuration for the logging system.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
}

// MetricsConfig holds the configuration for the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Listen  string `yaml:"listen" envconfig:"LISTEN"`
}

// AdminConfig holds the configuration for the read-only admin API.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Listen  string `yaml:"listen" envconfig:"LISTEN"`
}

// SubnetConfig describes one subnet in the multi-subnet form.
type SubnetConfig struct {
	Name         string            `yaml:"name"`
	Network      string            `yaml:"network"` // CIDR
	IPPoolStart  string            `yaml:"ip_pool_start"`
	IPPoolEnd    string            `yaml:"ip_pool_end"`
	SubnetMask   string            `yaml:"subnet_mask"`
	Gateway      string            `yaml:"gateway"`
	DNSServers   []string          `yaml:"dns_servers"`
	Reservations map[string]string `yaml:"reservations"`
}

// Config holds the application configuration. Either the legacy
// single-pool fields or the Subnets list must be set; with Subnets, the
// top-level Reservations map is treated as global (subnet-independent).
type Config struct {
	ServerIP  string        `yaml:"server_ip" envconfig:"SERVER_IP"`
	LeaseTime int64         `yaml:"lease_time" envconfig:"LEASE_TIME"` // seconds
	LeaseFile string        `yaml:"lease_file" envconfig:"LEASE_FILE"`
	Interval  time.Duration `yaml:"interval" envconfig:"INTERVAL"` // reaper period

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Admin   AdminConfig   `yaml:"admin"`

	// Legacy single-pool form.
	IPPoolStart string   `yaml:"ip_pool_start" envconfig:"IP_POOL_START"`
	IPPoolEnd   string   `yaml:"ip_pool_end" envconfig:"IP_POOL_END"`
	SubnetMask  string   `yaml:"subnet_mask" envconfig:"SUBNET_MASK"`
	Gateway     string   `yaml:"gateway" envconfig:"GATEWAY"`
	DNSServers  []string `yaml:"dns_servers" envconfig:"DNS_SERVERS"`

	Subnets      []SubnetConfig    `yaml:"subnets"`
	Reservations map[string]string `yaml:"reservations"`
}

// Load loads the configuration from a YAML file, then overrides with
// environment variables prefixed DHCPD (e.g. DHCPD_SERVER_IP).
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		// A missing file is fine: config may come fully from env vars.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
		}
	}

	if err := envconfig.Process("dhcpd", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if cfg.LeaseTime == 0 {
		cfg.LeaseTime = 86400
	}
	if cfg.LeaseFile == "" {
		cfg.LeaseFile = "leases.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LeaseDuration returns the configured default lease time.
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseTime) * time.Second
}

// Validate checks the configuration, returning hard errors and a list
// of non-fatal warnings (reserved IPs inside a dynamic pool range,
// questionable but usable values).
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if _, err := netip.ParseAddr(c.ServerIP); err != nil {
		return nil, fmt.Errorf("invalid server_ip %q: %w", c.ServerIP, err)
	}
	if c.LeaseTime <= 0 {
		return nil, fmt.Errorf("lease_time must be positive, got %d", c.LeaseTime)
	}

	if len(c.Subnets) == 0 {
		w, err := validatePool("pool", c.IPPoolStart, c.IPPoolEnd, c.SubnetMask, c.Gateway, c.DNSServers, c.Reservations)
		if err != nil {
			return nil, err
		}
		return append(warnings, w...), nil
	}

	for _, sc := range c.Subnets {
		if sc.Name == "" {
			return nil, fmt.Errorf("subnet without a name")
		}
		if _, err := netip.ParsePrefix(sc.Network); err != nil {
			return nil, fmt.Errorf("subnet %s: invalid network %q: %w", sc.Name, sc.Network, err)
		}
		w, err := validatePool("subnet "+sc.Name, sc.IPPoolStart, sc.IPPoolEnd, sc.SubnetMask, sc.Gateway, sc.DNSServers, sc.Reservations)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	// Global reservations in the multi-subnet form.
	for mac, ip := range c.Reservations {
		if _, err := parseMACKey(mac); err != nil {
			return nil, fmt.Errorf("global reservation: %w", err)
		}
		if _, err := netip.ParseAddr(ip); err != nil {
			return nil, fmt.Errorf("global reservation %s: invalid IP %q: %w", mac, ip, err)
		}
	}

	return warnings, nil
}

func validatePool(scope, start, end, mask, gateway string, dns []string, reservations map[string]string) ([]string, error) {
	var warnings []string

	startAddr, err := netip.ParseAddr(start)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid ip_pool_start %q: %w", scope, start, err)
	}
	endAddr, err := netip.ParseAddr(end)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid ip_pool_end %q: %w", scope, end, err)
	}
	if startAddr.Compare(endAddr) > 0 {
		return nil, fmt.Errorf("%s: ip_pool_start %s is after ip_pool_end %s", scope, start, end)
	}
	if _, err := netip.ParseAddr(mask); err != nil {
		return nil, fmt.Errorf("%s: invalid subnet_mask %q: %w", scope, mask, err)
	}
	if gateway != "" {
		if _, err := netip.ParseAddr(gateway); err != nil {
			return nil, fmt.Errorf("%s: invalid gateway %q: %w", scope, gateway, err)
		}
	}
	for _, d := range dns {
		if _, err := netip.ParseAddr(d); err != nil {
			return nil, fmt.Errorf("%s: invalid DNS server %q: %w", scope, d, err)
		}
	}

	seen := make(map[netip.Addr]string, len(reservations))
	for mac, ip := range reservations {
		if _, err := parseMACKey(mac); err != nil {
			return nil, fmt.Errorf("%s: %w", scope, err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid reserved IP %q for %s: %w", scope, ip, mac, err)
		}
		if prev, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%s: reserved IP %s assigned to both %s and %s", scope, ip, prev, mac)
		}
		seen[addr] = mac
		if startAddr.Compare(addr) <= 0 && addr.Compare(endAddr) <= 0 {
			warnings = append(warnings, fmt.Sprintf("%s: reserved IP %s is inside the dynamic pool range", scope, ip))
		}
	}

	return warnings, nil
}
