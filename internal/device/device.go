// Package device holds the in-memory model of a connected mouse: its
// identity and the ordered profile tree that drivers populate from
// hardware and the IPC layer mutates on behalf of clients.
package device

import (
	"fmt"
	"sync"
)

// BusType identifies the bus a device is attached through.
type BusType string

const (
	BusUSB       BusType = "usb"
	BusBluetooth BusType = "bluetooth"
)

// BusTypeFromNumber translates the numeric bustype from a HID_ID
// attribute into a BusType.
func BusTypeFromNumber(bustype uint16) BusType {
	switch bustype {
	case 0x03:
		return BusUSB
	case 0x05:
		return BusBluetooth
	default:
		return BusType(fmt.Sprintf("%04x", bustype))
	}
}

// ActionKind is the kind of action a button is bound to.
type ActionKind uint32

const (
	ActionNone    ActionKind = 0
	ActionButton  ActionKind = 1
	ActionSpecial ActionKind = 2
	ActionKey     ActionKind = 3
	ActionMacro   ActionKind = 4
	ActionUnknown ActionKind = 1000
)

// LedMode is the effect an LED zone is running.
type LedMode uint32

const (
	LedOff LedMode = iota
	LedSolid
	LedCycle
	LedBreathing
	LedColorWave
	LedStarlight
	LedTriColor
)

// Color is an RGB triplet.
type Color struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

// Dpi is a resolution value, either unified or independent per axis.
type Dpi struct {
	X uint32
	Y uint32
}

// UnifiedDpi returns a Dpi with the same value on both axes.
func UnifiedDpi(v uint32) Dpi { return Dpi{X: v, Y: v} }

// Unified reports whether both axes carry the same value.
func (d Dpi) Unified() bool { return d.X == d.Y }

// MacroEvent is one step of a button macro: a key code plus direction
// (press or release).
type MacroEvent struct {
	KeyCode uint32
	Release bool
}

// Info is the full device state synced from hardware.
type Info struct {
	Sysname         string
	Name            string
	Model           string
	FirmwareVersion string
	Profiles        []Profile
}

// Profile is one onboard configuration slot. Index is hardware-assigned
// and stable for the lifetime of the Info.
type Profile struct {
	Index     uint32
	Name      string
	IsActive  bool
	IsEnabled bool
	// IsDirty is set by any IPC-layer mutation and cleared only after a
	// successful commit of this profile.
	IsDirty bool

	ReportRate  uint32 // Hz
	ReportRates []uint32

	// -1 means the protocol does not support the setting.
	AngleSnapping int32
	Debounce      int32
	Debounces     []uint32

	Resolutions []Resolution
	Buttons     []Button
	Leds        []Led
}

// Resolution is one DPI slot within a profile.
type Resolution struct {
	Index      uint32
	Dpi        Dpi
	DpiList    []uint32
	IsActive   bool
	IsDefault  bool
	IsDisabled bool
}

// Button is one physical button's binding.
type Button struct {
	Index        uint32
	Action       ActionKind
	ActionKinds  []ActionKind
	MappingValue uint32
	Macro        []MacroEvent
}

// Led is one LED zone's state.
type Led struct {
	Index          uint32
	Mode           LedMode
	Modes          []LedMode
	Color          Color
	SecondaryColor Color
	TertiaryColor  Color
	ColorDepth     uint32
	EffectDuration uint32 // ms
	Brightness     uint32 // 0-255
}

// ActiveProfile returns the profile flagged active, or nil.
func (i *Info) ActiveProfile() *Profile {
	for idx := range i.Profiles {
		if i.Profiles[idx].IsActive {
			return &i.Profiles[idx]
		}
	}
	return nil
}

// Clone returns a deep copy of the info tree.
func (i *Info) Clone() Info {
	out := *i
	out.Profiles = make([]Profile, len(i.Profiles))
	for pi, p := range i.Profiles {
		cp := p
		cp.ReportRates = append([]uint32(nil), p.ReportRates...)
		cp.Debounces = append([]uint32(nil), p.Debounces...)
		cp.Resolutions = make([]Resolution, len(p.Resolutions))
		for ri, r := range p.Resolutions {
			cr := r
			cr.DpiList = append([]uint32(nil), r.DpiList...)
			cp.Resolutions[ri] = cr
		}
		cp.Buttons = make([]Button, len(p.Buttons))
		for bi, b := range p.Buttons {
			cb := b
			cb.ActionKinds = append([]ActionKind(nil), b.ActionKinds...)
			cb.Macro = append([]MacroEvent(nil), b.Macro...)
			cp.Buttons[bi] = cb
		}
		cp.Leds = make([]Led, len(p.Leds))
		for li, l := range p.Leds {
			cl := l
			cl.Modes = append([]LedMode(nil), l.Modes...)
			cp.Leds[li] = cl
		}
		out.Profiles[pi] = cp
	}
	return out
}

// State guards an Info with a read-write lock. The actor takes the
// writer side after hardware reads; IPC property setters take it to
// stage pending changes; IPC getters share the reader side. Hardware
// access is serialized by the actor instead, which is a deliberately
// separate discipline.
type State struct {
	mu   sync.RWMutex
	info Info
}

func NewState(info Info) *State {
	return &State{info: info}
}

// View runs f with shared (read) access to the info.
func (s *State) View(f func(*Info)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f(&s.info)
}

// Update runs f with exclusive (write) access to the info.
func (s *State) Update(f func(*Info)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.info)
}

// Snapshot returns a deep copy taken under the read lock.
func (s *State) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.Clone()
}
