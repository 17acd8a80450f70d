package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"dhcpd-go/pkg/ipam"
	"dhcpd-go/pkg/lease"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	sub, err := ipam.NewSubnet(
		"office",
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParseAddr("192.168.1.100"),
		netip.MustParseAddr("192.168.1.110"),
		netip.MustParseAddr("255.255.255.0"),
		netip.MustParseAddr("192.168.1.1"),
		[]netip.Addr{netip.MustParseAddr("8.8.8.8")},
		nil,
	)
	require.NoError(t, err)
	ipm := ipam.NewManager([]*ipam.Subnet{sub}, nil, zerolog.Nop())
	store := lease.NewStore(filepath.Join(t.TempDir(), "leases.json"), time.Hour, zerolog.Nop())

	mac, err := ipam.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	ip, ok := sub.Allocate(mac, netip.Addr{})
	require.True(t, ok)
	store.Create(mac, ip, time.Hour)

	return NewServer("127.0.0.1:0", ipm, store, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, testServer(t), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStats(t *testing.T) {
	w := get(t, testServer(t), "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Pools  []ipam.SubnetStats `json:"pools"`
		Leases lease.StoreStats   `json:"leases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Pools, 1)
	require.Equal(t, 1, body.Pools[0].Allocated)
	require.Equal(t, 1, body.Leases.Active)
}

func TestLeases(t *testing.T) {
	w := get(t, testServer(t), "/api/v1/leases")
	require.Equal(t, http.StatusOK, w.Code)

	var body []leaseEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "aa:bb:cc:dd:ee:ff", body[0].MAC)
	require.Equal(t, "192.168.1.100", body[0].IP.String())
}

func TestSubnets(t *testing.T) {
	w := get(t, testServer(t), "/api/v1/subnets")
	require.Equal(t, http.StatusOK, w.Code)

	var body []subnetEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "office", body[0].Name)
	require.Equal(t, "192.168.1.0/24", body[0].Network)
	require.Equal(t, "192.168.1.1", body[0].Gateway)
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/leases", nil)
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
