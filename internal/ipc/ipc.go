// Package ipc is the boundary to the object-tree interface clients
// talk to. The daemon core only needs to announce devices coming and
// going; the per-field getters and setters live on the other side of
// the Publisher and work directly against the shared device state.
package ipc

import (
	"log/slog"

	"github.com/seagrayinc/mouserd/internal/actor"
)

// Publisher is notified as devices are added to and removed from the
// object tree. Implementations must tolerate repeated removals for
// the same sysname.
type Publisher interface {
	DeviceAdded(h *actor.Handle)
	DeviceRemoved(sysname string)
}

// LogPublisher is the no-op object tree: it only logs announcements.
// Used when the daemon runs headless and as the test default.
type LogPublisher struct{}

func (LogPublisher) DeviceAdded(h *actor.Handle) {
	info := h.Snapshot()
	slog.Info("device published",
		slog.String("sysname", h.Sysname()),
		slog.String("name", info.Name),
		slog.Int("profiles", len(info.Profiles)))
}

func (LogPublisher) DeviceRemoved(sysname string) {
	slog.Info("device unpublished", slog.String("sysname", sysname))
}
