// Package hotplug feeds device arrival and removal events to the
// daemon. The portable implementation polls USB HID enumeration and
// diffs the result; platforms with a native event source can provide
// their own Watcher.
package hotplug

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/karalabe/usb"
	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
)

// EventKind says whether a device appeared or went away.
type EventKind int

const (
	Arrived EventKind = iota
	Removed
)

// Event describes one attachment change. Removal events carry only
// the sysname.
type Event struct {
	Kind    EventKind
	Sysname string
	Path    string
	Name    string
	Bus     device.BusType
	Vendor  uint16
	Product uint16
}

// Watcher is a source of attachment events.
type Watcher interface {
	Events() <-chan Event
	Close() error
}

// Attachment is one enumerated device, as seen by a poll.
type Attachment struct {
	Path    string
	Name    string
	Vendor  uint16
	Product uint16
}

// EnumerateFunc lists the currently attached candidate devices.
type EnumerateFunc func() ([]Attachment, error)

// USBEnumerate lists all attached USB HID devices.
func USBEnumerate() ([]Attachment, error) {
	infos, err := usb.EnumerateHid(0, 0)
	if err != nil {
		return nil, xerrors.Errorf("usb enumerate: %w", err)
	}
	out := make([]Attachment, 0, len(infos))
	for _, info := range infos {
		out = append(out, Attachment{
			Path:    info.Path,
			Name:    info.Product,
			Vendor:  info.VendorID,
			Product: info.ProductID,
		})
	}
	return out, nil
}

// DefaultPollInterval is how often the poller re-enumerates.
const DefaultPollInterval = 2 * time.Second

// eventBuffer bounds the event channel; events beyond it are dropped
// rather than stalling the poll loop.
const eventBuffer = 16

// PollerConfig configures a Poller. Zero values take defaults; a nil
// Enumerate uses the USB HID enumeration.
type PollerConfig struct {
	Interval  time.Duration
	Clock     quartz.Clock
	Enumerate EnumerateFunc
}

// Poller is the enumeration-diffing Watcher.
type Poller struct {
	events chan Event
	cancel context.CancelFunc
	ticker quartz.Waiter

	enumerate EnumerateFunc
	known     map[string]Attachment
}

// NewPoller starts polling immediately and emits an Arrived event for
// every device present at startup.
func NewPoller(ctx context.Context, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Enumerate == nil {
		cfg.Enumerate = USBEnumerate
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		events:    make(chan Event, eventBuffer),
		cancel:    cancel,
		enumerate: cfg.Enumerate,
		known:     make(map[string]Attachment),
	}
	p.poll()
	p.ticker = cfg.Clock.TickerFunc(ctx, cfg.Interval, func() error {
		p.poll()
		return nil
	}, "hotplug")
	return p
}

func (p *Poller) Events() <-chan Event { return p.events }

// Close stops polling. The event channel stays open but quiet.
func (p *Poller) Close() error {
	p.cancel()
	if p.ticker != nil {
		_ = p.ticker.Wait()
	}
	return nil
}

func (p *Poller) poll() {
	attached, err := p.enumerate()
	if err != nil {
		slog.Warn("device enumeration failed", slog.Any("error", err))
		return
	}

	current := make(map[string]Attachment, len(attached))
	for _, a := range attached {
		if a.Path == "" {
			continue
		}
		current[a.Path] = a
	}

	for path, a := range current {
		if _, ok := p.known[path]; ok {
			continue
		}
		p.emit(Event{
			Kind:    Arrived,
			Sysname: Sysname(path),
			Path:    path,
			Name:    a.Name,
			Bus:     device.BusUSB,
			Vendor:  a.Vendor,
			Product: a.Product,
		})
	}
	for path := range p.known {
		if _, ok := current[path]; !ok {
			p.emit(Event{Kind: Removed, Sysname: Sysname(path)})
		}
	}
	p.known = current
}

func (p *Poller) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("hotplug event dropped", slog.String("sysname", ev.Sysname))
	}
}

// Sysname derives a stable identifier from an enumeration path.
func Sysname(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 && i+1 < len(path) {
		path = path[i+1:]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.', r == ':':
			return r
		default:
			return '-'
		}
	}, path)
}

func (k EventKind) String() string {
	switch k {
	case Arrived:
		return "arrived"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}
