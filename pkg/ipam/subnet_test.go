package ipam

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) MAC {
	t.Helper()
	mac, err := ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func testSubnet(t *testing.T, reservations map[MAC]netip.Addr) *Subnet {
	t.Helper()
	sub, err := NewSubnet(
		"office",
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParseAddr("192.168.1.100"),
		netip.MustParseAddr("192.168.1.102"),
		netip.MustParseAddr("255.255.255.0"),
		netip.MustParseAddr("192.168.1.1"),
		[]netip.Addr{netip.MustParseAddr("8.8.8.8")},
		reservations,
	)
	require.NoError(t, err)
	return sub
}

func TestAllocateLowestFirst(t *testing.T) {
	sub := testSubnet(t, nil)

	ip1, ok := sub.Allocate(mustMAC(t, "aa:bb:cc:dd:ee:ff"), netip.Addr{})
	require.True(t, ok)
	require.Equal(t, "192.168.1.100", ip1.String())

	ip2, ok := sub.Allocate(mustMAC(t, "11:22:33:44:55:66"), netip.Addr{})
	require.True(t, ok)
	require.Equal(t, "192.168.1.101", ip2.String())

	ip3, ok := sub.Allocate(mustMAC(t, "11:22:33:44:55:67"), netip.Addr{})
	require.True(t, ok)
	require.Equal(t, "192.168.1.102", ip3.String())

	_, ok = sub.Allocate(mustMAC(t, "11:22:33:44:55:68"), netip.Addr{})
	require.False(t, ok, "exhausted pool must refuse a new MAC")
}

func TestAllocateIdempotent(t *testing.T) {
	sub := testSubnet(t, nil)
	mac := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	ip1, ok := sub.Allocate(mac, netip.Addr{})
	require.True(t, ok)
	ip2, ok := sub.Allocate(mac, netip.Addr{})
	require.True(t, ok)
	require.Equal(t, ip1, ip2)

	// Even a different requested IP does not move an existing allocation.
	ip3, ok := sub.Allocate(mac, netip.MustParseAddr("192.168.1.102"))
	require.True(t, ok)
	require.Equal(t, ip1, ip3)
}

func TestReservationPrecedence(t *testing.T) {
	mac := mustMAC(t, "de:ad:be:ef:00:01")
	reserved := netip.MustParseAddr("192.168.1.50") // outside the pool
	sub := testSubnet(t, map[MAC]netip.Addr{mac: reserved})

	ip, ok := sub.Allocate(mac, netip.Addr{})
	require.True(t, ok)
	require.Equal(t, reserved, ip)

	// A requested IP inside the pool does not override the reservation.
	ip, ok = sub.Allocate(mac, netip.MustParseAddr("192.168.1.100"))
	require.True(t, ok)
	require.Equal(t, reserved, ip)
}

func TestReservedInPoolExcludedFromDynamic(t *testing.T) {
	owner := mustMAC(t, "de:ad:be:ef:00:01")
	reserved := netip.MustParseAddr("192.168.1.100")
	sub := testSubnet(t, map[MAC]netip.Addr{owner: reserved})

	// Another MAC requesting the reserved address falls through to the
	// lowest free address instead.
	ip, ok := sub.Allocate(mustMAC(t, "aa:bb:cc:dd:ee:ff"), reserved)
	require.True(t, ok)
	require.Equal(t, "192.168.1.101", ip.String())
}

func TestAllocateRequestedIP(t *testing.T) {
	sub := testSubnet(t, nil)

	ip, ok := sub.Allocate(mustMAC(t, "aa:bb:cc:dd:ee:ff"), netip.MustParseAddr("192.168.1.102"))
	require.True(t, ok)
	require.Equal(t, "192.168.1.102", ip.String())

	// Requested IP already held by another MAC: next lowest is used.
	ip, ok = sub.Allocate(mustMAC(t, "11:22:33:44:55:66"), netip.MustParseAddr("192.168.1.102"))
	require.True(t, ok)
	require.Equal(t, "192.168.1.100", ip.String())

	// Requested IP outside the pool is ignored.
	ip, ok = sub.Allocate(mustMAC(t, "11:22:33:44:55:67"), netip.MustParseAddr("10.9.9.9"))
	require.True(t, ok)
	require.Equal(t, "192.168.1.101", ip.String())
}

func TestReleaseAndReuse(t *testing.T) {
	sub := testSubnet(t, nil)
	mac := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	ip, ok := sub.Allocate(mac, netip.Addr{})
	require.True(t, ok)
	require.True(t, sub.Release(mac))
	require.False(t, sub.Release(mac), "second release reports nothing to do")

	// The released address is eligible for the next allocation.
	ip2, ok := sub.Allocate(mustMAC(t, "11:22:33:44:55:66"), netip.Addr{})
	require.True(t, ok)
	require.Equal(t, ip, ip2)
}

func TestReleaseKeepsReservationEarmarked(t *testing.T) {
	owner := mustMAC(t, "de:ad:be:ef:00:01")
	reserved := netip.MustParseAddr("192.168.1.100")
	sub := testSubnet(t, map[MAC]netip.Addr{owner: reserved})

	_, ok := sub.Allocate(owner, netip.Addr{})
	require.True(t, ok)
	require.True(t, sub.Release(owner))

	// The reserved address stays out of dynamic reach after release.
	ip, ok := sub.Allocate(mustMAC(t, "aa:bb:cc:dd:ee:ff"), netip.Addr{})
	require.True(t, ok)
	require.Equal(t, "192.168.1.101", ip.String())

	// And the owner gets it back immediately.
	ip, ok = sub.Allocate(owner, netip.Addr{})
	require.True(t, ok)
	require.Equal(t, reserved, ip)
}

func TestIPForMACPrefersReservation(t *testing.T) {
	owner := mustMAC(t, "de:ad:be:ef:00:01")
	reserved := netip.MustParseAddr("192.168.1.50")
	sub := testSubnet(t, map[MAC]netip.Addr{owner: reserved})

	ip, ok := sub.IPForMAC(owner)
	require.True(t, ok)
	require.Equal(t, reserved, ip)

	_, ok = sub.IPForMAC(mustMAC(t, "aa:bb:cc:dd:ee:ff"))
	require.False(t, ok)
}

func TestSubnetStats(t *testing.T) {
	owner := mustMAC(t, "de:ad:be:ef:00:01")
	sub := testSubnet(t, map[MAC]netip.Addr{owner: netip.MustParseAddr("192.168.1.100")})

	_, ok := sub.Allocate(mustMAC(t, "aa:bb:cc:dd:ee:ff"), netip.Addr{})
	require.True(t, ok)

	st := sub.Stats()
	require.Equal(t, "office", st.Name)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 1, st.Allocated)
	require.Equal(t, 1, st.Reserved)
	require.Equal(t, 1, st.Available)
}

func TestLowestFreeAcrossBitmapWords(t *testing.T) {
	// A pool wider than one bitmap word still hands out addresses in
	// strictly ascending order.
	sub, err := NewSubnet(
		"wide",
		netip.MustParsePrefix("10.0.0.0/16"),
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.0.200"),
		netip.MustParseAddr("255.255.0.0"),
		netip.Addr{},
		nil,
		nil,
	)
	require.NoError(t, err)

	for i := 0; i < 130; i++ {
		mac := mustMAC(t, fmt.Sprintf("02:00:00:00:%02x:%02x", i/256, i%256))
		ip, ok := sub.Allocate(mac, netip.Addr{})
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("10.0.0.%d", i+1), ip.String())
	}
}

func TestNewSubnetRejectsInvertedPool(t *testing.T) {
	_, err := NewSubnet(
		"bad",
		netip.MustParsePrefix("10.0.0.0/24"),
		netip.MustParseAddr("10.0.0.50"),
		netip.MustParseAddr("10.0.0.10"),
		netip.MustParseAddr("255.255.255.0"),
		netip.Addr{},
		nil,
		nil,
	)
	require.Error(t, err)
}
