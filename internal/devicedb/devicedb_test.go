package devicedb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/devicedb"
)

func TestParseMatch(t *testing.T) {
	t.Parallel()

	m, err := devicedb.ParseMatch("usb:046d:c332")
	require.NoError(t, err)
	require.Equal(t, device.BusUSB, m.Bus)
	require.Equal(t, uint16(0x046D), m.Vendor)
	require.Equal(t, uint16(0xC332), m.Product)
	require.Equal(t, "usb:046d:c332", m.String())

	for _, bad := range []string{"", "usb:046d", "usb:xyz:c332", "usb:046d:zzzz"} {
		_, err := devicedb.ParseMatch(bad)
		require.Error(t, err, "pattern %q", bad)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	db := devicedb.Builtin()
	e, ok := db.Lookup(device.BusUSB, 0x046D, 0xC332)
	require.True(t, ok)
	require.Equal(t, "hidpp20", e.Driver)
	require.Equal(t, uint32(3), e.Config.Profiles)

	_, ok = db.Lookup(device.BusUSB, 0xDEAD, 0xBEEF)
	require.False(t, ok)

	// Bluetooth triple of a USB-only entry must not match.
	_, ok = db.Lookup(device.BusBluetooth, 0x046D, 0xC332)
	require.False(t, ok)
}

func TestDpiRangeList(t *testing.T) {
	t.Parallel()

	r := devicedb.DpiRange{Min: 200, Max: 400, Step: 50}
	require.Equal(t, []uint32{200, 250, 300, 350, 400}, r.List())
	require.Nil(t, devicedb.DpiRange{Min: 200, Max: 400}.List())
}

func TestNewInfoSeeding(t *testing.T) {
	t.Parallel()

	db := devicedb.Builtin()
	e, ok := db.Lookup(device.BusUSB, 0x046D, 0xC332)
	require.True(t, ok)

	info := devicedb.NewInfo("hidraw3", "fallback", e)
	require.Equal(t, "hidraw3", info.Sysname)
	require.Equal(t, "Logitech G502 Proteus Spectrum", info.Name)
	require.Len(t, info.Profiles, 3)

	p := info.Profiles[0]
	require.True(t, p.IsActive)
	require.True(t, p.IsEnabled)
	require.Equal(t, int32(-1), p.AngleSnapping)
	require.Len(t, p.Resolutions, 5)
	require.Len(t, p.Buttons, 11)
	require.Len(t, p.Leds, 2)
	require.NotEmpty(t, p.Resolutions[0].DpiList)
	require.Equal(t, uint32(200), p.Resolutions[0].DpiList[0])

	require.False(t, info.Profiles[1].IsActive)
}

func TestNewInfoDefaultsWhenUnspecified(t *testing.T) {
	t.Parallel()

	e := &devicedb.Entry{Driver: "test"}
	info := devicedb.NewInfo("hidraw0", "Unknown Mouse", e)
	require.Equal(t, "Unknown Mouse", info.Name)
	require.Len(t, info.Profiles, 1)
	require.Len(t, info.Profiles[0].Resolutions, 1)
	require.Empty(t, info.Profiles[0].Buttons)
}
