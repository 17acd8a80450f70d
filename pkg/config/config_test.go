package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"dhcpd-go/pkg/ipam"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

const legacyYAML = `
server_ip: 192.168.1.1
lease_time: 3600
ip_pool_start: 192.168.1.100
ip_pool_end: 192.168.1.200
subnet_mask: 255.255.255.0
gateway: 192.168.1.1
dns_servers: [8.8.8.8, 8.8.4.4]
reservations:
  "de:ad:be:ef:00:01": 192.168.1.50
`

const multiYAML = `
server_ip: 10.0.0.1
lease_time: 7200
subnets:
  - name: office
    network: 192.168.1.0/24
    ip_pool_start: 192.168.1.100
    ip_pool_end: 192.168.1.200
    subnet_mask: 255.255.255.0
    gateway: 192.168.1.1
    dns_servers: [8.8.8.8]
  - name: lab
    network: 10.10.0.0/24
    ip_pool_start: 10.10.0.10
    ip_pool_end: 10.10.0.20
    subnet_mask: 255.255.255.0
    gateway: 10.10.0.1
    dns_servers: [1.1.1.1]
reservations:
  "de:ad:be:ef:00:02": 172.16.0.9
`

func TestLoadLegacyForm(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyYAML))
	require.NoError(t, err)

	require.Equal(t, "192.168.1.1", cfg.ServerIP)
	require.Equal(t, int64(3600), cfg.LeaseTime)
	require.Equal(t, "leases.json", cfg.LeaseFile, "default applied")
	require.Equal(t, "info", cfg.Logging.Level, "default applied")

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Empty(t, warnings)

	subnets, global, err := cfg.BuildSubnets()
	require.NoError(t, err)
	require.Len(t, subnets, 1)
	require.Empty(t, global)

	sub := subnets[0]
	require.Equal(t, "default", sub.Name())
	require.Equal(t, "192.168.1.0/24", sub.Network().String(), "network derived from pool and mask")

	// The legacy reservations belong to the subnet.
	mac, err := ipam.ParseMAC("de:ad:be:ef:00:01")
	require.NoError(t, err)
	ip, ok := sub.IPForMAC(mac)
	require.True(t, ok)
	require.Equal(t, "192.168.1.50", ip.String())
}

func TestLoadMultiSubnetForm(t *testing.T) {
	cfg, err := Load(writeConfig(t, multiYAML))
	require.NoError(t, err)

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Empty(t, warnings)

	subnets, global, err := cfg.BuildSubnets()
	require.NoError(t, err)
	require.Len(t, subnets, 2)
	require.Equal(t, "office", subnets[0].Name())
	require.Equal(t, "lab", subnets[1].Name())

	mac, err := ipam.ParseMAC("de:ad:be:ef:00:02")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("172.16.0.9"), global[mac])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DHCPD_SERVER_IP", "10.99.0.1")
	cfg, err := Load(writeConfig(t, legacyYAML))
	require.NoError(t, err)
	require.Equal(t, "10.99.0.1", cfg.ServerIP)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("DHCPD_SERVER_IP", "10.99.0.1")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "10.99.0.1", cfg.ServerIP)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Config)
	}{
		{"bad server ip", func(c *Config) { c.ServerIP = "not-an-ip" }},
		{"negative lease time", func(c *Config) { c.LeaseTime = -1 }},
		{"inverted pool", func(c *Config) { c.IPPoolStart, c.IPPoolEnd = c.IPPoolEnd, c.IPPoolStart }},
		{"bad mask", func(c *Config) { c.SubnetMask = "255.255.255.256" }},
		{"bad dns", func(c *Config) { c.DNSServers = []string{"dns.example"} }},
		{"bad reservation mac", func(c *Config) { c.Reservations = map[string]string{"nope": "192.168.1.50"} }},
		{"bad reservation ip", func(c *Config) { c.Reservations = map[string]string{"de:ad:be:ef:00:01": "nope"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, legacyYAML))
			require.NoError(t, err)
			tc.edit(cfg)
			_, err = cfg.Validate()
			require.Error(t, err)
		})
	}
}

func TestValidateDuplicateReservedIP(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyYAML))
	require.NoError(t, err)
	cfg.Reservations = map[string]string{
		"de:ad:be:ef:00:01": "192.168.1.50",
		"de:ad:be:ef:00:02": "192.168.1.50",
	}
	_, err = cfg.Validate()
	require.Error(t, err)
}

func TestValidateWarnsOnReservedIPInsidePool(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyYAML))
	require.NoError(t, err)
	cfg.Reservations = map[string]string{"de:ad:be:ef:00:01": "192.168.1.150"}

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "192.168.1.150")
}
