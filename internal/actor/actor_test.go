package actor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seagrayinc/mouserd/internal/actor"
	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/hid"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// scriptDriver lets each test script the driver's behavior.
type scriptDriver struct {
	probeErr error
	loads    atomic.Int32
	commitFn func(ctx context.Context, t *transport.Transport, info *device.Info) error
}

func (d *scriptDriver) Name() string { return "script" }

func (d *scriptDriver) Probe(context.Context, *transport.Transport) error {
	return d.probeErr
}

func (d *scriptDriver) LoadProfiles(_ context.Context, _ *transport.Transport, info *device.Info) error {
	d.loads.Add(1)
	return nil
}

func (d *scriptDriver) Commit(ctx context.Context, t *transport.Transport, info *device.Info) error {
	if d.commitFn != nil {
		return d.commitFn(ctx, t, info)
	}
	return nil
}

func seed() device.Info {
	return device.Info{
		Sysname:  "hidraw0",
		Name:     "Scripted Mouse",
		Profiles: []device.Profile{{Index: 0, IsActive: true, IsEnabled: true}},
	}
}

func spawn(t *testing.T, d *scriptDriver) (*actor.Handle, *hid.FakeDevice) {
	t.Helper()
	dev := &hid.FakeDevice{}
	h, err := actor.Spawn(context.Background(), actor.Config{
		Sysname:   "hidraw0",
		Driver:    d,
		Transport: transport.New(dev),
		Seed:      seed(),
	})
	require.NoError(t, err)
	return h, dev
}

func TestCommitsNeverInterleave(t *testing.T) {
	t.Parallel()

	var id atomic.Uint32
	d := &scriptDriver{
		commitFn: func(_ context.Context, tr *transport.Transport, _ *device.Info) error {
			n := byte(id.Add(1))
			if err := tr.WriteReport([]byte{n, 0x00}); err != nil {
				return err
			}
			time.Sleep(10 * time.Millisecond)
			return tr.WriteReport([]byte{n, 0x01})
		},
	}
	h, dev := spawn(t, d)
	defer h.Shutdown()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Commit(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	writes := dev.Writes()
	require.Len(t, writes, 4)
	require.Equal(t, writes[0][0], writes[1][0], "first commit's writes must be adjacent")
	require.Equal(t, writes[2][0], writes[3][0], "second commit's writes must be adjacent")
	require.NotEqual(t, writes[0][0], writes[2][0])
}

func TestCommitErrorPropagates(t *testing.T) {
	t.Parallel()

	want := &transport.TimeoutError{Attempts: 3}
	d := &scriptDriver{
		commitFn: func(context.Context, *transport.Transport, *device.Info) error {
			return want
		},
	}
	h, _ := spawn(t, d)
	defer h.Shutdown()

	err := h.Commit(context.Background())
	require.ErrorAs(t, err, new(*transport.TimeoutError))
}

func TestSpawnRunsInitialLoad(t *testing.T) {
	t.Parallel()

	d := &scriptDriver{}
	h, _ := spawn(t, d)
	defer h.Shutdown()

	require.Equal(t, int32(1), d.loads.Load())
	require.Equal(t, "Scripted Mouse", h.Snapshot().Name)

	require.NoError(t, h.Reload(context.Background()))
	require.Equal(t, int32(2), d.loads.Load())
}

func TestSpawnProbeFailureClosesTransport(t *testing.T) {
	t.Parallel()

	dev := &hid.FakeDevice{}
	_, err := actor.Spawn(context.Background(), actor.Config{
		Sysname:   "hidraw0",
		Driver:    &scriptDriver{probeErr: &transport.TimeoutError{Attempts: 3}},
		Transport: transport.New(dev),
		Seed:      seed(),
	})
	require.Error(t, err)
	require.True(t, dev.Closed())
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	d := &scriptDriver{}
	h, dev := spawn(t, d)

	h.Shutdown()
	require.True(t, dev.Closed())
	require.ErrorIs(t, h.Commit(context.Background()), actor.ErrShutdown)

	// Idempotent.
	h.Shutdown()
}

func TestCommitHonorsContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	d := &scriptDriver{
		commitFn: func(context.Context, *transport.Transport, *device.Info) error {
			<-block
			return nil
		},
	}
	h, _ := spawn(t, d)
	defer func() {
		close(block)
		h.Shutdown()
	}()

	// First commit occupies the actor; the second gives up waiting.
	go h.Commit(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Commit(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
