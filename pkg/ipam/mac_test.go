package ipam

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	want := MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

	for _, in := range []string{
		"de:ad:be:ef:00:01",
		"DE:AD:BE:EF:00:01",
		"de-ad-be-ef-00-01",
		"dead.beef.0001",
		"deadbeef0001",
	} {
		got, err := ParseMAC(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	require.Equal(t, "de:ad:be:ef:00:01", want.String())
}

func TestParseMACInvalid(t *testing.T) {
	for _, in := range []string{"", "de:ad:be:ef:00", "de:ad:be:ef:00:01:02", "zz:ad:be:ef:00:01"} {
		_, err := ParseMAC(in)
		require.Error(t, err, in)
	}
}

func TestMACFromHardwareAddr(t *testing.T) {
	hw, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	mac, err := MACFromHardwareAddr(hw)
	require.NoError(t, err)
	require.Equal(t, hw.String(), mac.String())

	_, err = MACFromHardwareAddr(net.HardwareAddr{1, 2, 3})
	require.Error(t, err)
}

func TestMACAsJSONMapKey(t *testing.T) {
	mac, err := ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	data, err := json.Marshal(map[MAC]int{mac: 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"aa:bb:cc:dd:ee:ff": 1}`, string(data))

	var back map[MAC]int
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 1, back[mac])
}
