// Package driver defines the protocol-driver contract and the registry
// drivers self-register into.
//
// A driver translates between the wire protocol of one device family
// and the shared device model. Drivers own no goroutines and no
// locking: every method is invoked from the owning device's actor,
// one call at a time.
package driver

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// Driver is the per-device-family protocol implementation.
type Driver interface {
	// Name returns the registry name the driver was created under.
	Name() string

	// Probe establishes that the expected protocol is actually spoken
	// on the other end of the transport. It must not mutate info-level
	// state; a device can be probed and rejected without side effects.
	Probe(ctx context.Context, t *transport.Transport) error

	// LoadProfiles populates info from hardware. Profiles carrying
	// uncommitted client changes (IsDirty) are left untouched so a
	// reload cannot silently discard staged work.
	LoadProfiles(ctx context.Context, t *transport.Transport, info *device.Info) error

	// Commit writes every dirty profile back to hardware and clears the
	// dirty flags that were written successfully.
	Commit(ctx context.Context, t *transport.Transport, info *device.Info) error
}

// Factory builds a driver instance from the catalog hints for one
// device model.
type Factory func(cfg devicedb.DriverConfig) Driver

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under name. Drivers call this
// from init; a duplicate name is a programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	registry[name] = f
}

// New instantiates the named driver.
func New(name string, cfg devicedb.DriverConfig) (Driver, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, xerrors.Errorf("unknown driver %q", name)
	}
	return f(cfg), nil
}

// Names lists the registered driver names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
