// Package actor gives each physical device a single goroutine that
// owns its transport. Every hardware operation funnels through the
// actor's queue, so at most one operation is in flight per device.
// The transport is one file handle and cannot be shared.
//
// The device state record follows a different discipline: it sits
// behind a read-write lock and is read and staged concurrently by the
// IPC-facing layer, while the actor takes the writer side around
// hardware synchronization.
package actor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// DefaultQueueSize bounds the command queue. Senders block (or honor
// their context) when the actor falls behind.
const DefaultQueueSize = 16

// ErrShutdown is returned for commands sent after the actor stopped.
var ErrShutdown = xerrors.New("device actor has shut down")

type cmdKind int

const (
	cmdCommit cmdKind = iota
	cmdReload
)

type command struct {
	kind  cmdKind
	ctx   context.Context
	reply chan error
}

// Config assembles everything a spawned actor owns.
type Config struct {
	Sysname   string
	Driver    driver.Driver
	Transport *transport.Transport

	// Seed is the catalog-derived state the first hardware sync
	// refines.
	Seed device.Info

	QueueSize int
}

// Handle is the caller-side end of an actor. All methods are safe for
// concurrent use.
type Handle struct {
	sysname string
	state   *device.State

	mu     sync.RWMutex
	closed bool
	cmds   chan command
	done   chan struct{}
}

// Spawn opens the actor lifecycle: probe the protocol, run the first
// profile sync, then start the command loop. The transport is closed
// on spawn failure and on shutdown; the caller hands over ownership.
func Spawn(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Driver.Probe(ctx, cfg.Transport); err != nil {
		cfg.Transport.Close()
		return nil, xerrors.Errorf("probe %s: %w", cfg.Sysname, err)
	}
	info := cfg.Seed
	if err := cfg.Driver.LoadProfiles(ctx, cfg.Transport, &info); err != nil {
		cfg.Transport.Close()
		return nil, xerrors.Errorf("load profiles %s: %w", cfg.Sysname, err)
	}

	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	h := &Handle{
		sysname: cfg.Sysname,
		state:   device.NewState(info),
		cmds:    make(chan command, queue),
		done:    make(chan struct{}),
	}
	go h.loop(cfg)
	slog.Info("device actor started",
		slog.String("sysname", cfg.Sysname),
		slog.String("driver", cfg.Driver.Name()))
	return h, nil
}

func (h *Handle) loop(cfg Config) {
	defer close(h.done)
	defer cfg.Transport.Close()

	// Commands are processed strictly in submission order. Closing the
	// queue is the shutdown signal; the current operation finishes,
	// nothing further is drained.
	for cmd := range h.cmds {
		var err error
		switch cmd.kind {
		case cmdCommit:
			// Running the driver under the writer side makes a commit
			// atomic with respect to IPC setters: the dirty flags the
			// driver clears are exactly the changes it wrote.
			h.state.Update(func(info *device.Info) {
				err = cfg.Driver.Commit(cmd.ctx, cfg.Transport, info)
			})
		case cmdReload:
			h.state.Update(func(info *device.Info) {
				err = cfg.Driver.LoadProfiles(cmd.ctx, cfg.Transport, info)
			})
		}
		if err != nil {
			slog.Error("device operation failed",
				slog.String("sysname", h.sysname), slog.Any("error", err))
		}
		cmd.reply <- err
	}
	slog.Info("device actor stopped", slog.String("sysname", h.sysname))
}

// Sysname identifies the device this actor drives.
func (h *Handle) Sysname() string { return h.sysname }

// State exposes the shared device record for the IPC layer.
func (h *Handle) State() *device.State { return h.state }

// Snapshot returns a deep copy of the current device state.
func (h *Handle) Snapshot() device.Info { return h.state.Snapshot() }

// Commit writes all staged (dirty) profile changes to hardware. The
// result arrives through a reply channel scoped to this one call;
// concurrent commits are serialized by the queue.
func (h *Handle) Commit(ctx context.Context) error {
	return h.send(ctx, cmdCommit)
}

// Reload re-synchronizes state from hardware. Profiles with staged
// changes are left untouched.
func (h *Handle) Reload(ctx context.Context) error {
	return h.send(ctx, cmdReload)
}

func (h *Handle) send(ctx context.Context, kind cmdKind) error {
	reply := make(chan error, 1)

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrShutdown
	}
	select {
	case h.cmds <- command{kind: kind, ctx: ctx, reply: reply}:
		h.mu.RUnlock()
	case <-ctx.Done():
		h.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the actor after its current operation and waits for
// the loop to exit and the transport to close. Safe to call twice.
func (h *Handle) Shutdown() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.cmds)
	}
	h.mu.Unlock()
	<-h.done
}
