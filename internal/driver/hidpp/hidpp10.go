package hidpp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// HID++ 1.0 register access sub-IDs.
const (
	subIDSetRegister byte = 0x80
	subIDGetRegister byte = 0x81

	regProtocolVersion byte = 0x00
	regCurrentProfile  byte = 0x0F

	// A 1.0 device answers the protocol-version read with this error:
	// the register predates the versioning scheme.
	err10InvalidSubID byte = 0x01
)

func init() {
	driver.Register("hidpp10", func(cfg devicedb.DriverConfig) driver.Driver {
		return &hidpp10{cfg: cfg}
	})
}

// hidpp10 drives the register-based first-generation protocol. The
// register map is sparse on mice: profile selection is the only
// broadly supported setting, everything else comes from the catalog.
type hidpp10 struct {
	cfg devicedb.DriverConfig

	deviceIndex byte
	ready       bool
}

func (d *hidpp10) Name() string { return "hidpp10" }

// getRegister reads a short register. The reply echoes the register
// address in the first param byte.
func (d *hidpp10) getRegister(ctx context.Context, t *transport.Transport, idx, reg byte) ([3]byte, error) {
	req := BuildShort(idx, subIDGetRegister, [3]byte{reg})
	return transport.Request(ctx, t, req, 3, func(buf []byte) ([3]byte, bool) {
		r, ok := ParseReport(buf)
		if !ok {
			return [3]byte{}, false
		}
		if code, isErr := r.ErrorCode(idx, subIDGetRegister); isErr && r.Params[1] == reg {
			return [3]byte{ErrSubIDShort, reg, code}, true
		}
		if r.Matches(idx, subIDGetRegister) && r.Params[0] == reg {
			return [3]byte{r.Params[0], r.Params[1], r.Params[2]}, true
		}
		return [3]byte{}, false
	})
}

func (d *hidpp10) setRegister(ctx context.Context, t *transport.Transport, idx, reg byte, params [2]byte) error {
	req := BuildShort(idx, subIDSetRegister, [3]byte{reg, params[0], params[1]})
	var protoErr error
	_, err := transport.Request(ctx, t, req, 3, func(buf []byte) (struct{}, bool) {
		r, ok := ParseReport(buf)
		if !ok {
			return struct{}{}, false
		}
		if code, isErr := r.ErrorCode(idx, subIDSetRegister); isErr && r.Params[1] == reg {
			protoErr = &ProtocolError{FeatureIndex: reg, Function: subIDSetRegister, Code: code}
			return struct{}{}, true
		}
		if r.Matches(idx, subIDSetRegister) && r.Params[0] == reg {
			return struct{}{}, true
		}
		return struct{}{}, false
	})
	if err != nil {
		return err
	}
	return protoErr
}

// Probe confirms a 1.0 endpoint by reading the protocol-version
// register on the receiver index, then the wired index. Either a
// well-formed reply or an "invalid sub id" error counts: both prove a
// register-protocol speaker on the other end.
func (d *hidpp10) Probe(ctx context.Context, t *transport.Transport) error {
	t.Filter = IsReportID

	var lastErr error
	for _, idx := range []byte{DeviceIdxReceiver, DeviceIdxWired} {
		reply, err := d.getRegister(ctx, t, idx, regProtocolVersion)
		if err != nil {
			lastErr = err
			continue
		}
		if reply[0] == ErrSubIDShort && reply[2] != err10InvalidSubID {
			lastErr = &ProtocolError{FeatureIndex: regProtocolVersion, Function: subIDGetRegister, Code: reply[2]}
			continue
		}
		d.deviceIndex = idx
		d.ready = true
		slog.Debug("probed HID++ 1.0 endpoint", slog.String("index", fmt.Sprintf("0x%02x", idx)))
		return nil
	}

	var timeout *transport.TimeoutError
	if d.cfg.Wireless && errors.As(lastErr, &timeout) {
		// Enumerated but not connected; retried on the next commit.
		slog.Info("wireless device not reachable, deferring probe")
		d.ready = false
		return nil
	}
	return xerrors.Errorf("probe: %w", lastErr)
}

func (d *hidpp10) LoadProfiles(ctx context.Context, t *transport.Transport, info *device.Info) error {
	if !d.ready {
		return nil
	}
	if info.FirmwareVersion == "" {
		info.FirmwareVersion = "HID++ 1.0"
	}

	for pi := range info.Profiles {
		if info.Profiles[pi].IsDirty {
			// Client changes staged but not committed; a hardware
			// refresh must not clobber them.
			return nil
		}
	}

	reply, err := d.getRegister(ctx, t, d.deviceIndex, regCurrentProfile)
	if err != nil {
		return xerrors.Errorf("read current profile: %w", err)
	}
	if reply[0] == ErrSubIDShort {
		// Single-profile device without the register; leave the
		// catalog-seeded default active.
		return nil
	}
	active := uint32(reply[1])
	if int(active) < len(info.Profiles) {
		for pi := range info.Profiles {
			info.Profiles[pi].IsActive = info.Profiles[pi].Index == active
		}
	}
	return nil
}

func (d *hidpp10) Commit(ctx context.Context, t *transport.Transport, info *device.Info) error {
	if !d.ready {
		if err := d.Probe(ctx, t); err != nil {
			return err
		}
		if !d.ready {
			return xerrors.New("device not ready")
		}
	}

	active := info.ActiveProfile()
	if active == nil {
		return xerrors.New("no active profile")
	}
	if err := d.setRegister(ctx, t, d.deviceIndex, regCurrentProfile, [2]byte{byte(active.Index)}); err != nil {
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			return xerrors.Errorf("select profile %d: %w", active.Index, err)
		}
		// Devices without profile slots reject the register; nothing
		// else to persist over this protocol.
		slog.Debug("profile register rejected", slog.Any("error", err))
	}
	for pi := range info.Profiles {
		info.Profiles[pi].IsDirty = false
	}
	return nil
}
