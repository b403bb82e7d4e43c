// Package devicedb is the static catalog of supported devices: which
// driver handles a given (bus, vendor, product) triple and the
// per-model quirks the protocol cannot discover on its own.
package devicedb

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
)

// DpiRange describes a sensor whose resolutions form an arithmetic
// range rather than a discrete list.
type DpiRange struct {
	Min  uint32
	Max  uint32
	Step uint32
}

// List expands the range into explicit values.
func (r DpiRange) List() []uint32 {
	if r.Step == 0 || r.Max < r.Min {
		return nil
	}
	out := make([]uint32, 0, (r.Max-r.Min)/r.Step+1)
	for v := r.Min; v <= r.Max; v += r.Step {
		out = append(out, v)
	}
	return out
}

// DriverConfig carries the catalog hints a driver seeds its model
// from before talking to hardware. Zero counts mean "not specified";
// drivers fall back to what the protocol reports.
type DriverConfig struct {
	Profiles uint32
	Buttons  uint32
	Leds     uint32
	Dpis     uint32
	DpiRange *DpiRange

	// Wireless devices may enumerate before the link is up; drivers
	// treat a probe timeout on these as "not ready" instead of an error.
	Wireless bool
}

// Match is one (bus, vendor, product) triple an entry claims.
type Match struct {
	Bus     device.BusType
	Vendor  uint16
	Product uint16
}

func (m Match) String() string {
	return fmt.Sprintf("%s:%04x:%04x", m.Bus, m.Vendor, m.Product)
}

// ParseMatch parses a "bus:vvvv:pppp" pattern.
func ParseMatch(s string) (Match, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Match{}, xerrors.Errorf("malformed device match %q", s)
	}
	vid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return Match{}, xerrors.Errorf("bad vendor id in %q: %w", s, err)
	}
	pid, err := strconv.ParseUint(parts[2], 16, 16)
	if err != nil {
		return Match{}, xerrors.Errorf("bad product id in %q: %w", s, err)
	}
	return Match{Bus: device.BusType(parts[0]), Vendor: uint16(vid), Product: uint16(pid)}, nil
}

// MustMatch is ParseMatch for static catalog entries.
func MustMatch(s string) Match {
	m, err := ParseMatch(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Entry is one catalog record.
type Entry struct {
	Name    string
	Driver  string
	Matches []Match
	Config  DriverConfig
}

// DB indexes entries by match triple.
type DB struct {
	entries map[Match]*Entry
}

func New() *DB {
	return &DB{entries: make(map[Match]*Entry)}
}

// Add registers an entry under each of its matches. Later entries win
// on conflict.
func (db *DB) Add(e *Entry) {
	for _, m := range e.Matches {
		db.entries[m] = e
	}
}

// Lookup finds the entry claiming the triple, if any.
func (db *DB) Lookup(bus device.BusType, vendor, product uint16) (*Entry, bool) {
	e, ok := db.entries[Match{Bus: bus, Vendor: vendor, Product: product}]
	return e, ok
}

// Len returns the number of distinct entries.
func (db *DB) Len() int {
	seen := make(map[*Entry]struct{}, len(db.entries))
	for _, e := range db.entries {
		seen[e] = struct{}{}
	}
	return len(seen)
}

// NewInfo seeds a device model from a catalog entry: empty profiles
// sized per the entry, to be filled in by the driver's first hardware
// sync.
func NewInfo(sysname, name string, e *Entry) device.Info {
	if e.Name != "" {
		name = e.Name
	}
	profiles := e.Config.Profiles
	if profiles == 0 {
		profiles = 1
	}
	dpis := e.Config.Dpis
	if dpis == 0 {
		dpis = 1
	}

	info := device.Info{
		Sysname:  sysname,
		Name:     name,
		Profiles: make([]device.Profile, profiles),
	}
	var dpiList []uint32
	if e.Config.DpiRange != nil {
		dpiList = e.Config.DpiRange.List()
	}
	for pi := range info.Profiles {
		p := &info.Profiles[pi]
		p.Index = uint32(pi)
		p.IsEnabled = true
		p.AngleSnapping = -1
		p.Debounce = -1
		p.Resolutions = make([]device.Resolution, dpis)
		for ri := range p.Resolutions {
			p.Resolutions[ri].Index = uint32(ri)
			p.Resolutions[ri].DpiList = append([]uint32(nil), dpiList...)
		}
		p.Buttons = make([]device.Button, e.Config.Buttons)
		for bi := range p.Buttons {
			p.Buttons[bi].Index = uint32(bi)
		}
		p.Leds = make([]device.Led, e.Config.Leds)
		for li := range p.Leds {
			p.Leds[li].Index = uint32(li)
		}
	}
	info.Profiles[0].IsActive = true
	return info
}
