package hidpp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/hid"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// fakeRegisterMouse emulates a register-protocol device behind a
// receiver: it answers on device index 0xFF only.
type fakeRegisterMouse struct {
	mu   sync.Mutex
	regs map[byte][2]byte
}

func (f *fakeRegisterMouse) handle(report []byte) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(report) < 7 || report[0] != 0x10 || report[1] != 0xFF {
		return nil
	}
	sub, reg := report[2], report[3]
	switch sub {
	case 0x81: // get register
		v, ok := f.regs[reg]
		if !ok {
			return [][]byte{{0x10, 0xFF, 0x8F, sub, reg, 0x01, 0x00}}
		}
		return [][]byte{{0x10, 0xFF, sub, reg, v[0], v[1], 0x00}}
	case 0x80: // set register
		if _, ok := f.regs[reg]; !ok {
			return [][]byte{{0x10, 0xFF, 0x8F, sub, reg, 0x01, 0x00}}
		}
		f.regs[reg] = [2]byte{report[4], report[5]}
		return [][]byte{{0x10, 0xFF, sub, reg, 0x00, 0x00, 0x00}}
	}
	return nil
}

func (f *fakeRegisterMouse) register(reg byte) [2]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

func newRegisterRig(t *testing.T, f *fakeRegisterMouse, cfg devicedb.DriverConfig) (driver.Driver, *transport.Transport) {
	t.Helper()
	dev := &hid.FakeDevice{}
	if f != nil {
		dev.Handler = f.handle
	}
	tr := transport.New(dev)
	tr.ReadBudget = 200 * time.Millisecond
	tr.ReadTimeout = 10 * time.Millisecond
	d, err := driver.New("hidpp10", cfg)
	require.NoError(t, err)
	return d, tr
}

func TestHidpp10ProbeAndProfileSwitch(t *testing.T) {
	t.Parallel()

	f := &fakeRegisterMouse{regs: map[byte][2]byte{
		0x0F: {1, 0}, // current profile
	}}
	cfg := devicedb.DriverConfig{Profiles: 3, Buttons: 10, Dpis: 1}
	d, tr := newRegisterRig(t, f, cfg)

	ctx := context.Background()
	require.NoError(t, d.Probe(ctx, tr),
		"an invalid-sub-id answer still proves a register-protocol device")

	info := seedInfo(cfg)
	require.NoError(t, d.LoadProfiles(ctx, tr, &info))
	require.False(t, info.Profiles[0].IsActive)
	require.True(t, info.Profiles[1].IsActive, "hardware reports profile 1 active")

	// Switch the active profile and commit.
	info.Profiles[1].IsActive = false
	info.Profiles[2].IsActive = true
	info.Profiles[2].IsDirty = true
	require.NoError(t, d.Commit(ctx, tr, &info))
	require.Equal(t, [2]byte{2, 0}, f.register(0x0F))
	require.False(t, info.Profiles[2].IsDirty)
}

func TestHidpp10LoadSkipsWhenDirty(t *testing.T) {
	t.Parallel()

	f := &fakeRegisterMouse{regs: map[byte][2]byte{
		0x0F: {0, 0},
	}}
	cfg := devicedb.DriverConfig{Profiles: 2, Dpis: 1}
	d, tr := newRegisterRig(t, f, cfg)

	ctx := context.Background()
	require.NoError(t, d.Probe(ctx, tr))

	info := seedInfo(cfg)
	info.Profiles[0].IsActive = false
	info.Profiles[1].IsActive = true
	info.Profiles[1].IsDirty = true

	require.NoError(t, d.LoadProfiles(ctx, tr, &info))
	require.True(t, info.Profiles[1].IsActive, "staged selection must survive a reload")
}

func TestHidpp10ProbeTimeoutOnWired(t *testing.T) {
	t.Parallel()

	cfg := devicedb.DriverConfig{Profiles: 1, Dpis: 1}
	d, tr := newRegisterRig(t, nil, cfg)
	tr.ReadBudget = 30 * time.Millisecond
	tr.ReadTimeout = 10 * time.Millisecond

	require.Error(t, d.Probe(context.Background(), tr))
}
