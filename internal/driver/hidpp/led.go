package hidpp

import (
	"encoding/binary"

	"github.com/seagrayinc/mouserd/internal/device"
)

// Hardware LED effect identifiers used by the 0x8070/0x8071 features.
const (
	ledHwOff       byte = 0x00
	ledHwFixed     byte = 0x01
	ledHwCycle     byte = 0x03
	ledHwColorWave byte = 0x04
	ledHwStarlight byte = 0x05
	ledHwTriColor  byte = 0x06
	ledHwBreathing byte = 0x0A
)

// ledPayloadLen is the effect block within a get/set LED request:
// one mode byte plus ten mode-specific bytes.
const ledPayloadLen = 11

// decodeLed fills l from an 11-byte effect payload. Unknown hardware
// modes decode as Off so a stale profile cannot wedge the model.
func decodeLed(p []byte, l *device.Led) {
	if len(p) < ledPayloadLen {
		l.Mode = device.LedOff
		return
	}
	switch p[0] {
	case ledHwFixed:
		l.Mode = device.LedSolid
		l.Color = device.Color{Red: p[1], Green: p[2], Blue: p[3]}
	case ledHwCycle:
		l.Mode = device.LedCycle
		l.EffectDuration = uint32(binary.BigEndian.Uint16(p[6:8]))
		l.Brightness = percentToByte(p[8])
	case ledHwColorWave:
		l.Mode = device.LedColorWave
		l.EffectDuration = uint32(binary.BigEndian.Uint16(p[6:8]))
		l.Brightness = percentToByte(p[8])
	case ledHwStarlight:
		l.Mode = device.LedStarlight
		l.Color = device.Color{Red: p[1], Green: p[2], Blue: p[3]}
		l.SecondaryColor = device.Color{Red: p[4], Green: p[5], Blue: p[6]}
	case ledHwTriColor:
		l.Mode = device.LedTriColor
		l.Color = device.Color{Red: p[1], Green: p[2], Blue: p[3]}
		l.SecondaryColor = device.Color{Red: p[4], Green: p[5], Blue: p[6]}
		l.TertiaryColor = device.Color{Red: p[7], Green: p[8], Blue: p[9]}
	case ledHwBreathing:
		l.Mode = device.LedBreathing
		l.Color = device.Color{Red: p[1], Green: p[2], Blue: p[3]}
		l.EffectDuration = uint32(binary.BigEndian.Uint16(p[4:6]))
		l.Brightness = percentToByte(p[7])
	default:
		l.Mode = device.LedOff
	}
}

// encodeLed renders l into an 11-byte effect payload.
func encodeLed(l *device.Led) []byte {
	p := make([]byte, ledPayloadLen)
	switch l.Mode {
	case device.LedSolid:
		p[0] = ledHwFixed
		p[1], p[2], p[3] = l.Color.Red, l.Color.Green, l.Color.Blue
	case device.LedCycle:
		p[0] = ledHwCycle
		binary.BigEndian.PutUint16(p[6:8], uint16(l.EffectDuration))
		p[8] = byteToPercent(l.Brightness)
	case device.LedColorWave:
		p[0] = ledHwColorWave
		binary.BigEndian.PutUint16(p[6:8], uint16(l.EffectDuration))
		p[8] = byteToPercent(l.Brightness)
	case device.LedStarlight:
		p[0] = ledHwStarlight
		p[1], p[2], p[3] = l.Color.Red, l.Color.Green, l.Color.Blue
		p[4], p[5], p[6] = l.SecondaryColor.Red, l.SecondaryColor.Green, l.SecondaryColor.Blue
	case device.LedTriColor:
		p[0] = ledHwTriColor
		p[1], p[2], p[3] = l.Color.Red, l.Color.Green, l.Color.Blue
		p[4], p[5], p[6] = l.SecondaryColor.Red, l.SecondaryColor.Green, l.SecondaryColor.Blue
		p[7], p[8], p[9] = l.TertiaryColor.Red, l.TertiaryColor.Green, l.TertiaryColor.Blue
	case device.LedBreathing:
		p[0] = ledHwBreathing
		p[1], p[2], p[3] = l.Color.Red, l.Color.Green, l.Color.Blue
		binary.BigEndian.PutUint16(p[4:6], uint16(l.EffectDuration))
		p[7] = byteToPercent(l.Brightness)
	default:
		p[0] = ledHwOff
	}
	return p
}

// The wire carries brightness as a 0-100 percentage; the model uses
// the 0-255 range clients expect.
func percentToByte(pct byte) uint32 {
	if pct > 100 {
		pct = 100
	}
	return uint32(pct) * 255 / 100
}

func byteToPercent(v uint32) byte {
	if v > 255 {
		v = 255
	}
	return byte(v * 100 / 255)
}
