package hidpp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReportShort(t *testing.T) {
	t.Parallel()

	r, ok := ParseReport([]byte{0x10, 0x00, 0x81, 0x0F, 0x02, 0x03, 0x00})
	require.True(t, ok)
	require.False(t, r.Long)
	require.Equal(t, byte(0x00), r.DeviceIndex)
	require.Equal(t, byte(0x81), r.SubID)
	require.Equal(t, []byte{0x0F, 0x02, 0x03}, r.Params[:3])
}

func TestParseReportLong(t *testing.T) {
	t.Parallel()

	buf := make([]byte, LongReportLen)
	buf[0], buf[1], buf[2], buf[3] = 0x11, 0xFF, 0x05, 0x14
	buf[4] = 0xAB
	r, ok := ParseReport(buf)
	require.True(t, ok)
	require.True(t, r.Long)
	require.Equal(t, byte(0xFF), r.DeviceIndex)
	require.Equal(t, byte(0x05), r.SubID)
	require.Equal(t, byte(0x14), r.Address)
	require.Equal(t, byte(0xAB), r.Params[0])
}

func TestParseReportRejectsNoise(t *testing.T) {
	t.Parallel()

	_, ok := ParseReport([]byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.False(t, ok, "mouse movement report must not parse")

	_, ok = ParseReport([]byte{0x10, 0x00})
	require.False(t, ok, "truncated buffer must not parse")

	_, ok = ParseReport([]byte{0x11, 0x00, 0x05, 0x14, 0x00, 0x00, 0x00})
	require.False(t, ok, "long report id with short length must not parse")
}

func TestErrorCodeLong(t *testing.T) {
	t.Parallel()

	buf := make([]byte, LongReportLen)
	buf[0], buf[1], buf[2], buf[3] = 0x11, 0x00, ErrSubIDLong, 0x05
	buf[4] = 0x14 // errored fn|sw
	buf[5] = ErrCodeInvalidFunctionID
	r, ok := ParseReport(buf)
	require.True(t, ok)
	require.True(t, r.IsError())

	code, isErr := r.ErrorCode(0x00, 0x05)
	require.True(t, isErr)
	require.Equal(t, ErrCodeInvalidFunctionID, code)

	// Wrong feature index: not our error.
	_, isErr = r.ErrorCode(0x00, 0x06)
	require.False(t, isErr)
	// Wrong device index: not our error.
	_, isErr = r.ErrorCode(0xFF, 0x05)
	require.False(t, isErr)
}

func TestErrorCodeShort(t *testing.T) {
	t.Parallel()

	r, ok := ParseReport([]byte{0x10, 0xFF, ErrSubIDShort, 0x81, 0x00, 0x01, 0x00})
	require.True(t, ok)
	require.True(t, r.IsError())

	code, isErr := r.ErrorCode(0xFF, 0x81)
	require.True(t, isErr)
	require.Equal(t, byte(0x01), code)
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	buf := BuildRequest(0x00, 0x0F, 0x04, swID, []byte{0xAA, 0xBB})
	require.Len(t, buf, LongReportLen)
	require.Equal(t, []byte{0x11, 0x00, 0x0F, 0x44, 0xAA, 0xBB}, buf[:6])
	for _, b := range buf[6:] {
		require.Zero(t, b)
	}
}

func TestIsReportID(t *testing.T) {
	t.Parallel()

	require.True(t, IsReportID([]byte{0x10}))
	require.True(t, IsReportID([]byte{0x11, 0x00}))
	require.False(t, IsReportID([]byte{0x02, 0x00}))
	require.False(t, IsReportID(nil))
}

func TestProtocolErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ProtocolError{FeatureIndex: 0x05, Function: 2, Code: ErrCodeOutOfRange}
	require.Contains(t, err.Error(), "out of range")
	require.Contains(t, err.Error(), "0x05")
}
