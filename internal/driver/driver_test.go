package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/transport"
)

type nopDriver struct{ cfg devicedb.DriverConfig }

func (d *nopDriver) Name() string { return "nop" }
func (d *nopDriver) Probe(context.Context, *transport.Transport) error {
	return nil
}
func (d *nopDriver) LoadProfiles(context.Context, *transport.Transport, *device.Info) error {
	return nil
}
func (d *nopDriver) Commit(context.Context, *transport.Transport, *device.Info) error {
	return nil
}

func TestRegistry(t *testing.T) {
	driver.Register("nop", func(cfg devicedb.DriverConfig) driver.Driver {
		return &nopDriver{cfg: cfg}
	})

	d, err := driver.New("nop", devicedb.DriverConfig{Buttons: 6})
	require.NoError(t, err)
	require.Equal(t, "nop", d.Name())
	require.Equal(t, uint32(6), d.(*nopDriver).cfg.Buttons)

	_, err = driver.New("missing", devicedb.DriverConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown driver")

	require.Contains(t, driver.Names(), "nop")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	driver.Register("dup", func(devicedb.DriverConfig) driver.Driver { return &nopDriver{} })
	require.Panics(t, func() {
		driver.Register("dup", func(devicedb.DriverConfig) driver.Driver { return &nopDriver{} })
	})
}
