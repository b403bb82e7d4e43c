// Package testdev implements a synthetic device loaded from a JSON
// description. It exercises the whole daemon path (catalog, actor,
// commit lifecycle) without hardware: the driver keeps its "EEPROM"
// in memory.
package testdev

import (
	"context"
	"encoding/json"
	"os"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// Spec is the JSON description of a synthetic device.
type Spec struct {
	Name     string        `json:"name"`
	Profiles []ProfileSpec `json:"profiles"`
}

type ProfileSpec struct {
	Active      bool             `json:"active"`
	Disabled    bool             `json:"disabled"`
	ReportRate  uint32           `json:"report_rate"`
	ReportRates []uint32         `json:"report_rates"`
	Resolutions []ResolutionSpec `json:"resolutions"`
	Buttons     []ButtonSpec     `json:"buttons"`
	Leds        []LedSpec        `json:"leds"`
}

type ResolutionSpec struct {
	Dpi      uint32   `json:"dpi"`
	DpiList  []uint32 `json:"dpi_list"`
	Default  bool     `json:"default"`
	Disabled bool     `json:"disabled"`
}

type ButtonSpec struct {
	Action   string `json:"action"` // none, button, special, key, macro
	Value    uint32 `json:"value"`
	Disabled bool   `json:"disabled"`
}

type LedSpec struct {
	Mode       string   `json:"mode"` // off, solid, cycle, breathing, color-wave, starlight
	Color      [3]uint8 `json:"color"`
	Brightness uint32   `json:"brightness"`
	Duration   uint32   `json:"duration_ms"`
}

// Load reads and validates a spec file.
func Load(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read test device spec: %w", err)
	}
	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, xerrors.Errorf("parse test device spec: %w", err)
	}
	if len(s.Profiles) == 0 {
		return nil, xerrors.New("test device spec has no profiles")
	}
	return &s, nil
}

var defaultReportRates = []uint32{125, 250, 500, 1000}

// Info renders the spec into a device model, applying defaults: the
// first profile is active unless one is flagged, the first resolution
// is the default unless one is flagged, missing rate sets fall back
// to the common HID rates.
func (s *Spec) Info(sysname string) device.Info {
	info := device.Info{
		Sysname:         sysname,
		Name:            s.Name,
		FirmwareVersion: "synthetic",
	}
	if info.Name == "" {
		info.Name = "Test Device"
	}

	anyActive := false
	for _, ps := range s.Profiles {
		anyActive = anyActive || ps.Active
	}
	for pi, ps := range s.Profiles {
		p := device.Profile{
			Index:         uint32(pi),
			IsActive:      ps.Active || (!anyActive && pi == 0),
			IsEnabled:     !ps.Disabled,
			ReportRate:    ps.ReportRate,
			ReportRates:   ps.ReportRates,
			AngleSnapping: -1,
			Debounce:      -1,
		}
		if len(p.ReportRates) == 0 {
			p.ReportRates = append([]uint32(nil), defaultReportRates...)
		}

		anyDefault := false
		for _, rs := range ps.Resolutions {
			anyDefault = anyDefault || rs.Default
		}
		for ri, rs := range ps.Resolutions {
			r := device.Resolution{
				Index:      uint32(ri),
				Dpi:        device.UnifiedDpi(rs.Dpi),
				DpiList:    rs.DpiList,
				IsDefault:  rs.Default || (!anyDefault && ri == 0),
				IsDisabled: rs.Disabled,
			}
			r.IsActive = r.IsDefault && !r.IsDisabled
			p.Resolutions = append(p.Resolutions, r)
		}

		for bi, bs := range ps.Buttons {
			b := device.Button{
				Index:        uint32(bi),
				MappingValue: bs.Value,
				ActionKinds: []device.ActionKind{
					device.ActionNone, device.ActionButton,
					device.ActionSpecial, device.ActionKey, device.ActionMacro,
				},
			}
			if bs.Disabled {
				b.Action = device.ActionNone
			} else {
				b.Action = actionKind(bs.Action)
			}
			p.Buttons = append(p.Buttons, b)
		}

		for li, ls := range ps.Leds {
			p.Leds = append(p.Leds, device.Led{
				Index:          uint32(li),
				Mode:           ledMode(ls.Mode),
				Color:          device.Color{Red: ls.Color[0], Green: ls.Color[1], Blue: ls.Color[2]},
				Brightness:     ls.Brightness,
				EffectDuration: ls.Duration,
				ColorDepth:     24,
				Modes: []device.LedMode{
					device.LedOff, device.LedSolid, device.LedCycle,
					device.LedBreathing, device.LedColorWave, device.LedStarlight,
				},
			})
		}
		info.Profiles = append(info.Profiles, p)
	}
	return info
}

func actionKind(s string) device.ActionKind {
	switch s {
	case "", "none":
		return device.ActionNone
	case "button":
		return device.ActionButton
	case "special":
		return device.ActionSpecial
	case "key":
		return device.ActionKey
	case "macro":
		return device.ActionMacro
	default:
		return device.ActionUnknown
	}
}

func ledMode(s string) device.LedMode {
	switch s {
	case "solid":
		return device.LedSolid
	case "cycle":
		return device.LedCycle
	case "breathing":
		return device.LedBreathing
	case "color-wave":
		return device.LedColorWave
	case "starlight":
		return device.LedStarlight
	default:
		return device.LedOff
	}
}

// New builds the synthetic driver for a spec.
func New(s *Spec) driver.Driver {
	return &testDriver{spec: s}
}

// testDriver persists commits in memory so a reload observes exactly
// what the last commit wrote.
type testDriver struct {
	spec      *Spec
	committed *device.Info
}

func (d *testDriver) Name() string { return "test" }

func (d *testDriver) Probe(context.Context, *transport.Transport) error { return nil }

func (d *testDriver) LoadProfiles(_ context.Context, _ *transport.Transport, info *device.Info) error {
	source := d.spec.Info(info.Sysname)
	if d.committed != nil {
		source = d.committed.Clone()
	}
	info.Name = source.Name
	info.FirmwareVersion = source.FirmwareVersion
	for pi := range source.Profiles {
		if pi < len(info.Profiles) && info.Profiles[pi].IsDirty {
			continue
		}
		if pi < len(info.Profiles) {
			info.Profiles[pi] = source.Profiles[pi]
		} else {
			info.Profiles = append(info.Profiles, source.Profiles[pi])
		}
	}
	if len(info.Profiles) > len(source.Profiles) {
		info.Profiles = info.Profiles[:len(source.Profiles)]
	}
	return nil
}

func (d *testDriver) Commit(_ context.Context, _ *transport.Transport, info *device.Info) error {
	for pi := range info.Profiles {
		info.Profiles[pi].IsDirty = false
	}
	snap := info.Clone()
	d.committed = &snap
	return nil
}
