package hidpp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seagrayinc/mouserd/internal/device"
)

func TestButtonMaskRoundTrip(t *testing.T) {
	t.Parallel()

	for n := uint32(1); n <= 16; n++ {
		in := device.Button{Action: device.ActionButton, MappingValue: n}
		rec := encodeButton(&in)
		require.Equal(t, btnTypeHid, rec[0])
		require.Equal(t, btnSubtypeMouse, rec[1])
		require.Equal(t, uint16(1)<<(n-1), binary.BigEndian.Uint16(rec[2:4]))

		var out device.Button
		decodeButton(rec[:], &out)
		require.Equal(t, device.ActionButton, out.Action)
		require.Equal(t, n, out.MappingValue, "button %d", n)
	}
}

func TestButtonDisabled(t *testing.T) {
	t.Parallel()

	in := device.Button{Action: device.ActionNone}
	rec := encodeButton(&in)
	require.Equal(t, btnTypeDisabled, rec[0])

	var out device.Button
	decodeButton(rec[:], &out)
	require.Equal(t, device.ActionNone, out.Action)
	require.Zero(t, out.MappingValue)
}

func TestButtonSpecialAndKey(t *testing.T) {
	t.Parallel()

	in := device.Button{Action: device.ActionSpecial, MappingValue: 0x0103}
	rec := encodeButton(&in)
	var out device.Button
	decodeButton(rec[:], &out)
	require.Equal(t, device.ActionSpecial, out.Action)
	require.Equal(t, uint32(0x0103), out.MappingValue)

	in = device.Button{Action: device.ActionKey, MappingValue: 0x04} // HID 'a'
	rec = encodeButton(&in)
	decodeButton(rec[:], &out)
	require.Equal(t, device.ActionKey, out.Action)
	require.Equal(t, uint32(0x04), out.MappingValue)
}

func TestButtonUnknownType(t *testing.T) {
	t.Parallel()

	var out device.Button
	decodeButton([]byte{0x42, 0x00, 0x00, 0x00}, &out)
	require.Equal(t, device.ActionUnknown, out.Action)
}

func TestLedRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []device.Led{
		{Mode: device.LedOff},
		{Mode: device.LedSolid, Color: device.Color{Red: 0x11, Green: 0x22, Blue: 0x33}},
		{Mode: device.LedCycle, EffectDuration: 5000, Brightness: 255},
		{Mode: device.LedColorWave, EffectDuration: 3000, Brightness: 255},
		{
			Mode:           device.LedStarlight,
			Color:          device.Color{Red: 0xFF},
			SecondaryColor: device.Color{Blue: 0xFF},
		},
		{
			Mode:           device.LedTriColor,
			Color:          device.Color{Red: 0xFF},
			SecondaryColor: device.Color{Green: 0xFF},
			TertiaryColor:  device.Color{Blue: 0xFF},
		},
		{
			Mode:           device.LedBreathing,
			Color:          device.Color{Red: 0x80, Green: 0x40, Blue: 0x20},
			EffectDuration: 2500,
			Brightness:     255,
		},
	}
	for _, in := range cases {
		payload := encodeLed(&in)
		require.Len(t, payload, ledPayloadLen)

		var out device.Led
		decodeLed(payload, &out)
		require.Equal(t, in, out, "mode %d", in.Mode)
	}
}

func TestLedUnknownHwModeDecodesOff(t *testing.T) {
	t.Parallel()

	var out device.Led
	decodeLed([]byte{0x7F, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, &out)
	require.Equal(t, device.LedOff, out.Mode)
}

func TestBrightnessScaling(t *testing.T) {
	t.Parallel()

	require.Equal(t, byte(100), byteToPercent(255))
	require.Equal(t, byte(0), byteToPercent(0))
	require.Equal(t, uint32(255), percentToByte(100))
	// Out-of-range wire values clamp instead of overflowing.
	require.Equal(t, uint32(255), percentToByte(250))
}

func TestParseDpiListDiscrete(t *testing.T) {
	t.Parallel()

	var params [16]byte
	params[0] = 0 // sensor index
	binary.BigEndian.PutUint16(params[1:3], 400)
	binary.BigEndian.PutUint16(params[3:5], 800)
	binary.BigEndian.PutUint16(params[5:7], 1600)

	require.Equal(t, []uint32{400, 800, 1600}, parseDpiList(params))
}

func TestParseDpiListRangeMarker(t *testing.T) {
	t.Parallel()

	var params [16]byte
	binary.BigEndian.PutUint16(params[1:3], 200)
	binary.BigEndian.PutUint16(params[3:5], dpiRangeMarker|100)
	binary.BigEndian.PutUint16(params[5:7], 800)

	require.Equal(t, []uint32{200, 300, 400, 500, 600, 700, 800}, parseDpiList(params))
}

func TestProfileSectorRoundTrip(t *testing.T) {
	t.Parallel()

	data := make([]byte, 254)
	p := device.Profile{
		ReportRate: 500,
		Resolutions: []device.Resolution{
			{Index: 0, Dpi: device.UnifiedDpi(800), IsDefault: true},
			{Index: 1, Dpi: device.UnifiedDpi(1600)},
			{Index: 2, Dpi: device.UnifiedDpi(3200)},
			{Index: 3},
			{Index: 4},
		},
		Buttons: []device.Button{
			{Index: 0, Action: device.ActionButton, MappingValue: 1},
			{Index: 1, Action: device.ActionButton, MappingValue: 2},
			{Index: 2, Action: device.ActionSpecial, MappingValue: 0x0004},
		},
	}
	encodeProfileSector(data, &p)
	require.Equal(t, byte(2), data[profOffRate], "500 Hz is a 2 ms interval")
	require.Equal(t, uint16(800), binary.LittleEndian.Uint16(data[profOffDpis:profOffDpis+2]))

	out := device.Profile{
		Buttons: make([]device.Button, 3),
	}
	decodeProfileSector(data, &out)
	require.Equal(t, uint32(500), out.ReportRate)
	require.Len(t, out.Resolutions, 5)
	require.Equal(t, uint32(800), out.Resolutions[0].Dpi.X)
	require.True(t, out.Resolutions[0].IsDefault)
	require.True(t, out.Resolutions[0].IsActive)
	require.Equal(t, uint32(1600), out.Resolutions[1].Dpi.X)
	require.True(t, out.Resolutions[3].IsDisabled, "zero dpi slot is disabled")
	require.Equal(t, device.ActionButton, out.Buttons[0].Action)
	require.Equal(t, uint32(2), out.Buttons[1].MappingValue)
	require.Equal(t, device.ActionSpecial, out.Buttons[2].Action)
}
