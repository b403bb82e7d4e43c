// Package daemon wires the pieces together: it consumes hotplug
// events, matches devices against the catalog, spawns an actor per
// device and announces them to the IPC layer.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/actor"
	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/hid"
	"github.com/seagrayinc/mouserd/internal/hotplug"
	"github.com/seagrayinc/mouserd/internal/ipc"
	"github.com/seagrayinc/mouserd/internal/testdev"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// DefaultSpawnTimeout bounds probe plus initial profile sync for one
// device. A wedged device must not stall the event loop forever.
const DefaultSpawnTimeout = 30 * time.Second

// Config assembles a Manager's collaborators. Zero values fall back
// to the built-in catalog and the logging publisher.
type Config struct {
	Catalog      *devicedb.DB
	HID          hid.Manager
	Publisher    ipc.Publisher
	SpawnTimeout time.Duration
}

// Manager owns the daemon's device table.
type Manager struct {
	catalog      *devicedb.DB
	hid          hid.Manager
	pub          ipc.Publisher
	spawnTimeout time.Duration

	mu     sync.Mutex
	actors map[string]*actor.Handle
}

func New(cfg Config) (*Manager, error) {
	if cfg.HID == nil {
		return nil, xerrors.New("daemon: HID manager is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = devicedb.Builtin()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = ipc.LogPublisher{}
	}
	if cfg.SpawnTimeout <= 0 {
		cfg.SpawnTimeout = DefaultSpawnTimeout
	}
	return &Manager{
		catalog:      cfg.Catalog,
		hid:          cfg.HID,
		pub:          cfg.Publisher,
		spawnTimeout: cfg.SpawnTimeout,
		actors:       make(map[string]*actor.Handle),
	}, nil
}

// Run processes hotplug events until the context is cancelled or the
// event channel closes, then shuts every device down.
func (m *Manager) Run(ctx context.Context, events <-chan hotplug.Event) error {
	defer m.shutdownAll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hotplug.Arrived:
				m.handleArrival(ctx, ev)
			case hotplug.Removed:
				m.handleRemoval(ev.Sysname)
			}
		}
	}
}

func (m *Manager) handleArrival(ctx context.Context, ev hotplug.Event) {
	m.mu.Lock()
	_, exists := m.actors[ev.Sysname]
	m.mu.Unlock()
	if exists {
		return
	}

	entry, ok := m.catalog.Lookup(ev.Bus, ev.Vendor, ev.Product)
	if !ok {
		slog.Debug("ignoring uncataloged device",
			slog.String("sysname", ev.Sysname),
			slog.String("id", fmt.Sprintf("%s:%04x:%04x", ev.Bus, ev.Vendor, ev.Product)))
		return
	}

	drv, err := driver.New(entry.Driver, entry.Config)
	if err != nil {
		slog.Error("catalog names unknown driver",
			slog.String("driver", entry.Driver), slog.Any("error", err))
		return
	}
	dev, err := m.hid.Open(ev.Path)
	if err != nil {
		slog.Warn("open device",
			slog.String("sysname", ev.Sysname), slog.Any("error", err))
		return
	}

	spawnCtx, cancel := context.WithTimeout(ctx, m.spawnTimeout)
	defer cancel()
	h, err := actor.Spawn(spawnCtx, actor.Config{
		Sysname:   ev.Sysname,
		Driver:    drv,
		Transport: transport.New(dev),
		Seed:      devicedb.NewInfo(ev.Sysname, ev.Name, entry),
	})
	if err != nil {
		slog.Warn("device setup failed",
			slog.String("sysname", ev.Sysname), slog.Any("error", err))
		return
	}
	m.add(h)
}

// AddTestDevice publishes a synthetic device alongside the real ones.
func (m *Manager) AddTestDevice(ctx context.Context, sysname string, spec *testdev.Spec) error {
	h, err := actor.Spawn(ctx, actor.Config{
		Sysname:   sysname,
		Driver:    testdev.New(spec),
		Transport: transport.New(&hid.FakeDevice{}),
		Seed:      spec.Info(sysname),
	})
	if err != nil {
		return xerrors.Errorf("spawn test device: %w", err)
	}
	m.add(h)
	return nil
}

func (m *Manager) add(h *actor.Handle) {
	m.mu.Lock()
	m.actors[h.Sysname()] = h
	m.mu.Unlock()
	m.pub.DeviceAdded(h)
}

func (m *Manager) handleRemoval(sysname string) {
	m.mu.Lock()
	h, ok := m.actors[sysname]
	delete(m.actors, sysname)
	m.mu.Unlock()
	if !ok {
		return
	}
	h.Shutdown()
	m.pub.DeviceRemoved(sysname)
}

func (m *Manager) shutdownAll() {
	m.mu.Lock()
	actors := m.actors
	m.actors = make(map[string]*actor.Handle)
	m.mu.Unlock()
	for sysname, h := range actors {
		h.Shutdown()
		m.pub.DeviceRemoved(sysname)
	}
}

// Get returns the actor for a sysname, if the device is present.
func (m *Manager) Get(sysname string) (*actor.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.actors[sysname]
	return h, ok
}

// Sysnames lists the present devices, sorted.
func (m *Manager) Sysnames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.actors))
	for s := range m.actors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
