// Package hidpp implements the Logitech HID++ protocol family: the
// shared report framing plus the register-based 1.0 and feature-based
// 2.0 drivers.
//
// HID++ uses two report shapes on the wire:
//   - short (report ID 0x10): 7 bytes
//     [id, device index, sub-id, p0, p1, p2, reserved]
//   - long (report ID 0x11): 20 bytes
//     [id, device index, sub-id, address, 16 param bytes]
package hidpp

import "fmt"

const (
	ReportIDShort byte = 0x10
	ReportIDLong  byte = 0x11

	ShortReportLen = 7
	LongReportLen  = 20

	// Error sub-IDs. A short report carrying 0x8F, or a long report
	// carrying 0xFF in the sub-id position, is an in-protocol error.
	ErrSubIDShort byte = 0x8F
	ErrSubIDLong  byte = 0xFF

	// Well-known device indices.
	DeviceIdxWired    byte = 0x00
	DeviceIdxReceiver byte = 0xFF

	// The Root feature is always at index 0.
	RootFeatureIndex         byte = 0x00
	RootFnGetFeature         byte = 0x00
	RootFnGetProtocolVersion byte = 0x01
)

// HID++ 2.0 feature pages.
const (
	PageDeviceName         uint16 = 0x0005
	PageSpecialKeysButtons uint16 = 0x1B04
	PageAdjustableDpi      uint16 = 0x2201
	PageReportRate         uint16 = 0x8060
	PageColorLedEffects    uint16 = 0x8070
	PageRgbEffects         uint16 = 0x8071
	PageOnboardProfiles    uint16 = 0x8100
)

// Report is a parsed HID++ frame.
type Report struct {
	Long        bool
	DeviceIndex byte
	SubID       byte
	Address     byte // long reports only
	// Params holds 16 bytes for long reports; short reports use the
	// first 3.
	Params [16]byte
}

// ParseReport decodes a raw buffer. The second return is false when
// the buffer is too short or the leading byte is not a HID++ report
// ID; that is transport noise, not an error.
func ParseReport(buf []byte) (Report, bool) {
	if len(buf) < ShortReportLen {
		return Report{}, false
	}
	switch buf[0] {
	case ReportIDShort:
		r := Report{
			DeviceIndex: buf[1],
			SubID:       buf[2],
		}
		copy(r.Params[:3], buf[3:6])
		return r, true
	case ReportIDLong:
		if len(buf) < LongReportLen {
			return Report{}, false
		}
		r := Report{
			Long:        true,
			DeviceIndex: buf[1],
			SubID:       buf[2],
			Address:     buf[3],
		}
		copy(r.Params[:], buf[4:20])
		return r, true
	default:
		return Report{}, false
	}
}

// IsError reports whether this is an in-protocol error response.
func (r Report) IsError() bool {
	if r.Long {
		return r.SubID == ErrSubIDLong
	}
	return r.SubID == ErrSubIDShort
}

// Matches reports whether this frame is addressed from the given
// device index with the given sub-id (a feature index for 2.0).
func (r Report) Matches(deviceIndex, subID byte) bool {
	return r.DeviceIndex == deviceIndex && r.SubID == subID
}

// ErrorCode extracts the HID++ error code when this report is an error
// response for the given device and feature index. Long errors carry
// the feature index in the address byte and the code in the second
// param; short (1.0-style) errors carry the errored sub-id in the
// first param and the code in the third.
func (r Report) ErrorCode(deviceIndex, featureIndex byte) (byte, bool) {
	if r.DeviceIndex != deviceIndex {
		return 0, false
	}
	if r.Long && r.SubID == ErrSubIDLong && r.Address == featureIndex {
		return r.Params[1], true
	}
	if !r.Long && r.SubID == ErrSubIDShort && r.Params[0] == featureIndex {
		return r.Params[2], true
	}
	return 0, false
}

// BuildShort builds a 7-byte short report.
func BuildShort(deviceIndex, subID byte, params [3]byte) []byte {
	return []byte{ReportIDShort, deviceIndex, subID, params[0], params[1], params[2], 0x00}
}

// BuildRequest builds a 20-byte HID++ 2.0 feature request:
// [0x11, device index, feature index, function<<4|swID, params...].
func BuildRequest(deviceIndex, featureIndex, function, swID byte, params []byte) []byte {
	buf := make([]byte, LongReportLen)
	buf[0] = ReportIDLong
	buf[1] = deviceIndex
	buf[2] = featureIndex
	buf[3] = (function << 4) | (swID & 0x0F)
	if len(params) > 16 {
		params = params[:16]
	}
	copy(buf[4:], params)
	return buf
}

// IsReportID reports whether the leading byte of buf marks a HID++
// frame. Used as the transport's noise filter.
func IsReportID(buf []byte) bool {
	return len(buf) > 0 && (buf[0] == ReportIDShort || buf[0] == ReportIDLong)
}

// HID++ 2.0 error codes.
const (
	ErrCodeNoError             byte = 0x00
	ErrCodeUnknown             byte = 0x01
	ErrCodeInvalidArgument     byte = 0x02
	ErrCodeOutOfRange          byte = 0x03
	ErrCodeHwError             byte = 0x04
	ErrCodeLogitechInternal    byte = 0x05
	ErrCodeInvalidFeatureIndex byte = 0x06
	ErrCodeInvalidFunctionID   byte = 0x07
	ErrCodeBusy                byte = 0x08
	ErrCodeUnsupported         byte = 0x09
)

// ErrorName gives the human-readable name of a HID++ 2.0 error code.
func ErrorName(code byte) string {
	switch code {
	case ErrCodeNoError:
		return "no error"
	case ErrCodeUnknown:
		return "unknown"
	case ErrCodeInvalidArgument:
		return "invalid argument"
	case ErrCodeOutOfRange:
		return "out of range"
	case ErrCodeHwError:
		return "hardware error"
	case ErrCodeLogitechInternal:
		return "internal error"
	case ErrCodeInvalidFeatureIndex:
		return "invalid feature index"
	case ErrCodeInvalidFunctionID:
		return "invalid function"
	case ErrCodeBusy:
		return "busy"
	case ErrCodeUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("0x%02x", code)
	}
}

// ProtocolError is a decoded in-protocol HID++ error response. It is
// surfaced to the caller immediately and never retried.
type ProtocolError struct {
	FeatureIndex byte
	Function     byte
	Code         byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("HID++ error %s (0x%02x) for feature 0x%02x fn=%d",
		ErrorName(e.Code), e.Code, e.FeatureIndex, e.Function)
}
