package hidpp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"strings"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/device"
	"github.com/seagrayinc/mouserd/internal/devicedb"
	"github.com/seagrayinc/mouserd/internal/driver"
	"github.com/seagrayinc/mouserd/internal/transport"
)

// Software ID stamped into every request so replies can be told apart
// from other hosts' traffic.
const swID byte = 0x04

// Device name (0x0005) functions.
const (
	fnNameCount byte = 0x00
	fnNameRead  byte = 0x01
)

// Adjustable DPI (0x2201) functions.
const (
	fnDpiList byte = 0x01
	fnDpiGet  byte = 0x02
	fnDpiSet  byte = 0x03

	// List entries at or above this value encode a step for an
	// arithmetic range instead of a discrete DPI.
	dpiRangeMarker uint16 = 0xE000
)

// Report rate (0x8060) functions. Rates ride the wire as millisecond
// intervals; the model uses Hz.
const (
	fnRateList byte = 0x00
	fnRateGet  byte = 0x01
	fnRateSet  byte = 0x02
)

// Color LED effects (0x8070) functions.
const (
	fnLedGet byte = 0x01
	fnLedSet byte = 0x02
)

// Onboard profiles (0x8100) functions.
const (
	fnOnbDesc         byte = 0x00
	fnOnbSetMode      byte = 0x01
	fnOnbGetMode      byte = 0x02
	fnOnbMemRead      byte = 0x04
	fnOnbMemAddrWrite byte = 0x05
	fnOnbMemWrite     byte = 0x06
	fnOnbMemWriteEnd  byte = 0x07

	onbModeOnboard byte = 0x01
	onbModeHost    byte = 0x02

	directorySector uint16 = 0x0000
	sectorChunk            = 16
	defaultSectorSize      = 0x0100

	// Offsets within a profile sector.
	profOffRate       = 0
	profOffDefaultDpi = 1
	profOffDpis       = 3
	profDpiSlots      = 5
	profOffButtons    = 32
	profButtonRecLen  = 4
)

// Profile button binding types and HID subtypes.
const (
	btnTypeMacro    byte = 0x00
	btnTypeHid      byte = 0x80
	btnTypeSpecial  byte = 0x90
	btnTypeDisabled byte = 0xFF

	btnSubtypeMouse    byte = 0x01
	btnSubtypeKeyboard byte = 0x02
	btnSubtypeConsumer byte = 0x03
)

// Flaky EEPROM writes are retried as a whole with a linearly growing
// pause between attempts.
const (
	sectorWriteAttempts = 3
	sectorWriteBackoff  = 15 * time.Millisecond
)

// ErrUnsupportedFeature is returned when a device does not expose a
// requested feature page (the Root feature resolves it to index 0).
var ErrUnsupportedFeature = xerrors.New("feature not supported by device")

func init() {
	driver.Register("hidpp20", func(cfg devicedb.DriverConfig) driver.Driver {
		return &hidpp20{cfg: cfg, features: make(map[uint16]byte)}
	})
}

// hidpp20 drives the feature-based protocol generation. Settings live
// in two places: the live feature registers (what the sensor is doing
// right now) and the onboard-profiles EEPROM (what survives a power
// cycle); commit keeps both in sync.
type hidpp20 struct {
	cfg devicedb.DriverConfig

	deviceIndex byte
	ready       bool

	protoMajor byte
	protoMinor byte

	// Feature page -> feature index, as resolved by the Root feature.
	// Index 0 is cached too: it means the page is absent.
	features map[uint16]byte

	sectorSize   uint16
	profileCount int

	// profileSectors maps profile ordinal to its EEPROM sector. Filled
	// from the directory, or ordinal+1 when the directory is corrupt.
	profileSectors map[uint32]uint16

	// needRepair is set when the directory failed its checksum; the
	// next commit rewrites it.
	needRepair bool
}

func (d *hidpp20) Name() string { return "hidpp20" }

// featureRequest performs one request/response exchange against a
// feature index. In-protocol errors come back as *ProtocolError.
func (d *hidpp20) featureRequest(ctx context.Context, t *transport.Transport, idx, featureIndex, fn byte, params []byte) ([16]byte, error) {
	req := BuildRequest(idx, featureIndex, fn, swID, params)
	var protoErr *ProtocolError
	want := fn<<4 | swID
	res, err := transport.Request(ctx, t, req, 3, func(buf []byte) ([16]byte, bool) {
		r, ok := ParseReport(buf)
		if !ok {
			return [16]byte{}, false
		}
		if code, isErr := r.ErrorCode(idx, featureIndex); isErr {
			protoErr = &ProtocolError{FeatureIndex: featureIndex, Function: fn, Code: code}
			return [16]byte{}, true
		}
		if r.Long && r.Matches(idx, featureIndex) && r.Address == want {
			return r.Params, true
		}
		// Some devices answer a long request with a short report; the
		// two payload bytes land at the front, the rest reads as zero.
		if !r.Long && r.Matches(idx, featureIndex) && r.Params[0] == want {
			var out [16]byte
			copy(out[:2], r.Params[1:3])
			return out, true
		}
		return [16]byte{}, false
	})
	if err != nil {
		return [16]byte{}, err
	}
	if protoErr != nil {
		return [16]byte{}, protoErr
	}
	return res, nil
}

// feature resolves a feature page to its index, caching the result.
func (d *hidpp20) feature(ctx context.Context, t *transport.Transport, page uint16) (byte, error) {
	if idx, ok := d.features[page]; ok {
		if idx == 0 {
			return 0, ErrUnsupportedFeature
		}
		return idx, nil
	}
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], page)
	res, err := d.featureRequest(ctx, t, d.deviceIndex, RootFeatureIndex, RootFnGetFeature, p[:])
	if err != nil {
		return 0, err
	}
	idx := res[0]
	d.features[page] = idx
	if idx == 0 {
		return 0, ErrUnsupportedFeature
	}
	return idx, nil
}

// Probe pings the Root feature on the receiver index, then the wired
// index. A 1.0 device answers the ping with a short error instead.
func (d *hidpp20) Probe(ctx context.Context, t *transport.Transport) error {
	t.Filter = IsReportID

	var lastErr error
	for _, idx := range []byte{DeviceIdxReceiver, DeviceIdxWired} {
		res, err := d.featureRequest(ctx, t, idx, RootFeatureIndex, RootFnGetProtocolVersion, []byte{0x00, 0x00, 0xAA})
		if err != nil {
			lastErr = err
			continue
		}
		if res[2] != 0xAA {
			lastErr = xerrors.Errorf("ping echo mismatch on index 0x%02x", idx)
			continue
		}
		d.deviceIndex = idx
		d.protoMajor, d.protoMinor = res[0], res[1]
		d.ready = true
		slog.Debug("probed HID++ 2.0 endpoint",
			slog.String("index", fmt.Sprintf("0x%02x", idx)),
			slog.String("version", fmt.Sprintf("%d.%d", res[0], res[1])))
		return nil
	}

	var timeout *transport.TimeoutError
	if d.cfg.Wireless && errors.As(lastErr, &timeout) {
		// The receiver enumerates the device before the link is up.
		// Leave the catalog defaults in place and retry on commit.
		slog.Info("wireless device not reachable, deferring probe")
		d.ready = false
		return nil
	}
	return xerrors.Errorf("probe: %w", lastErr)
}

func (d *hidpp20) LoadProfiles(ctx context.Context, t *transport.Transport, info *device.Info) error {
	if !d.ready {
		return nil
	}
	info.FirmwareVersion = fmt.Sprintf("HID++ %d.%d", d.protoMajor, d.protoMinor)
	if name, err := d.readName(ctx, t); err == nil && name != "" {
		info.Name = name
	}

	dirty := make(map[uint32]bool)
	for pi := range info.Profiles {
		if info.Profiles[pi].IsDirty {
			dirty[info.Profiles[pi].Index] = true
		}
	}

	if err := d.loadOnboard(ctx, t, info, dirty); err != nil {
		if !errors.Is(err, ErrUnsupportedFeature) {
			return err
		}
	}

	if info.ActiveProfile() == nil && len(info.Profiles) > 0 {
		info.Profiles[0].IsActive = true
	}
	for pi := range info.Profiles {
		p := &info.Profiles[pi]
		if p.Name == "" {
			p.Name = fmt.Sprintf("Profile %d", p.Index+1)
		}
	}

	// Live feature state reflects the profile the device is running.
	active := info.ActiveProfile()
	if active == nil || dirty[active.Index] {
		return nil
	}
	// A device missing an individual feature is still usable; partial
	// reads degrade that one setting, not the whole device.
	if err := d.readDpi(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
		slog.Warn("read dpi state", slog.Any("error", err))
	}
	if err := d.readRate(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
		slog.Warn("read report rate", slog.Any("error", err))
	}
	if err := d.readLeds(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
		slog.Warn("read led state", slog.Any("error", err))
	}
	return nil
}

func (d *hidpp20) Commit(ctx context.Context, t *transport.Transport, info *device.Info) error {
	if !d.ready {
		if err := d.Probe(ctx, t); err != nil {
			return err
		}
		if !d.ready {
			return xerrors.New("device not ready")
		}
	}

	var dirtyAny bool
	for pi := range info.Profiles {
		if info.Profiles[pi].IsDirty {
			dirtyAny = true
		}
	}

	onbIdx, onbErr := d.feature(ctx, t, PageOnboardProfiles)
	if onbErr == nil && (dirtyAny || d.needRepair) {
		if err := d.commitOnboard(ctx, t, onbIdx, info); err != nil {
			return err
		}
	} else if onbErr != nil && !errors.Is(onbErr, ErrUnsupportedFeature) {
		return onbErr
	}

	// Push the active profile's settings into the live registers so the
	// change takes effect without a mode cycle.
	if active := info.ActiveProfile(); active != nil && active.IsDirty {
		if err := d.writeDpi(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
			return xerrors.Errorf("write dpi: %w", err)
		}
		if err := d.writeRate(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
			return xerrors.Errorf("write report rate: %w", err)
		}
		if err := d.writeLeds(ctx, t, active); err != nil && !errors.Is(err, ErrUnsupportedFeature) {
			return xerrors.Errorf("write leds: %w", err)
		}
	}

	if onbErr == nil {
		// Leave the device running its onboard profiles so the settings
		// just written are the ones in charge.
		if _, err := d.featureRequest(ctx, t, d.deviceIndex, onbIdx, fnOnbSetMode, []byte{onbModeOnboard}); err != nil {
			return xerrors.Errorf("restore onboard mode: %w", err)
		}
	}

	for pi := range info.Profiles {
		info.Profiles[pi].IsDirty = false
	}
	return nil
}

// ----- device name (0x0005) -----

func (d *hidpp20) readName(ctx context.Context, t *transport.Transport) (string, error) {
	idx, err := d.feature(ctx, t, PageDeviceName)
	if err != nil {
		return "", err
	}
	res, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnNameCount, nil)
	if err != nil {
		return "", err
	}
	count := int(res[0])
	raw := make([]byte, 0, count)
	for off := 0; off < count; off += 16 {
		res, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnNameRead, []byte{byte(off)})
		if err != nil {
			return "", err
		}
		raw = append(raw, res[:]...)
	}
	if len(raw) > count {
		raw = raw[:count]
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// ----- adjustable dpi (0x2201) -----

// parseDpiList expands the wire-format DPI list: big-endian values
// terminated by zero, where a range-marker entry turns its neighbours
// into an arithmetic range.
func parseDpiList(params [16]byte) []uint32 {
	var raw []uint16
	for off := 1; off+1 < len(params); off += 2 {
		v := binary.BigEndian.Uint16(params[off : off+2])
		if v == 0 {
			break
		}
		raw = append(raw, v)
	}
	var out []uint32
	for i := 0; i < len(raw); i++ {
		v := raw[i]
		if v >= dpiRangeMarker {
			step := uint32(v & 0x1FFF)
			if step == 0 || i == 0 || i+1 >= len(raw) || len(out) == 0 {
				continue
			}
			next := uint32(raw[i+1])
			for dpi := out[len(out)-1] + step; dpi < next; dpi += step {
				out = append(out, dpi)
			}
			continue
		}
		out = append(out, uint32(v))
	}
	return out
}

func (d *hidpp20) readDpi(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	idx, err := d.feature(ctx, t, PageAdjustableDpi)
	if err != nil {
		return err
	}
	listRes, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnDpiList, []byte{0x00})
	if err != nil {
		return err
	}
	list := parseDpiList(listRes)

	curRes, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnDpiGet, []byte{0x00})
	if err != nil {
		return err
	}
	current := uint32(binary.BigEndian.Uint16(curRes[1:3]))

	anyActive := false
	for ri := range p.Resolutions {
		r := &p.Resolutions[ri]
		if len(list) > 0 {
			r.DpiList = append([]uint32(nil), list...)
		}
		r.IsActive = r.Dpi.X == current && current != 0 && !anyActive
		anyActive = anyActive || r.IsActive
	}
	if !anyActive {
		for ri := range p.Resolutions {
			if p.Resolutions[ri].IsDefault {
				p.Resolutions[ri].IsActive = true
				break
			}
		}
	}
	return nil
}

func (d *hidpp20) writeDpi(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	idx, err := d.feature(ctx, t, PageAdjustableDpi)
	if err != nil {
		return err
	}
	for ri := range p.Resolutions {
		r := &p.Resolutions[ri]
		if !r.IsActive || r.IsDisabled {
			continue
		}
		var params [3]byte
		binary.BigEndian.PutUint16(params[1:3], uint16(r.Dpi.X))
		if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnDpiSet, params[:]); err != nil {
			return err
		}
	}
	return nil
}

// ----- report rate (0x8060) -----

func (d *hidpp20) readRate(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	idx, err := d.feature(ctx, t, PageReportRate)
	if err != nil {
		return err
	}
	listRes, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnRateList, nil)
	if err != nil {
		return err
	}
	// Bit n of the bitmap advertises a report interval of n+1 ms.
	var rates []uint32
	for n := 0; n < 8; n++ {
		if listRes[0]&(1<<n) != 0 {
			rates = append(rates, 1000/uint32(n+1))
		}
	}
	p.ReportRates = rates

	curRes, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnRateGet, nil)
	if err != nil {
		return err
	}
	if iv := uint32(curRes[0]); iv > 0 {
		p.ReportRate = 1000 / iv
	}
	return nil
}

func (d *hidpp20) writeRate(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	if p.ReportRate == 0 {
		return nil
	}
	idx, err := d.feature(ctx, t, PageReportRate)
	if err != nil {
		return err
	}
	_, err = d.featureRequest(ctx, t, d.deviceIndex, idx, fnRateSet, []byte{byte(1000 / p.ReportRate)})
	return err
}

// ----- color led effects (0x8070) -----

// ledFeature resolves the LED feature index: color LED effects when
// present, the newer RGB effects page otherwise. Both speak the same
// 11-byte effect payload.
func (d *hidpp20) ledFeature(ctx context.Context, t *transport.Transport) (byte, error) {
	idx, err := d.feature(ctx, t, PageColorLedEffects)
	if errors.Is(err, ErrUnsupportedFeature) {
		return d.feature(ctx, t, PageRgbEffects)
	}
	return idx, err
}

func (d *hidpp20) readLeds(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	idx, err := d.ledFeature(ctx, t)
	if err != nil {
		return err
	}
	for li := range p.Leds {
		l := &p.Leds[li]
		res, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnLedGet, []byte{byte(l.Index)})
		if err != nil {
			return err
		}
		decodeLed(res[1:1+ledPayloadLen], l)
		if len(l.Modes) == 0 {
			l.Modes = []device.LedMode{
				device.LedOff, device.LedSolid, device.LedCycle,
				device.LedBreathing, device.LedColorWave, device.LedStarlight,
			}
		}
		if l.ColorDepth == 0 {
			l.ColorDepth = 24
		}
	}
	return nil
}

func (d *hidpp20) writeLeds(ctx context.Context, t *transport.Transport, p *device.Profile) error {
	idx, err := d.ledFeature(ctx, t)
	if err != nil {
		return err
	}
	for li := range p.Leds {
		l := &p.Leds[li]
		params := append([]byte{byte(l.Index)}, encodeLed(l)...)
		if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnLedSet, params); err != nil {
			return err
		}
	}
	return nil
}

// ----- onboard profiles (0x8100) -----

func (d *hidpp20) loadOnboard(ctx context.Context, t *transport.Transport, info *device.Info, dirty map[uint32]bool) error {
	idx, err := d.feature(ctx, t, PageOnboardProfiles)
	if err != nil {
		return err
	}

	desc, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbDesc, nil)
	if err != nil {
		return xerrors.Errorf("onboard description: %w", err)
	}
	d.profileCount = int(desc[3])
	d.sectorSize = binary.BigEndian.Uint16(desc[7:9])
	if d.sectorSize == 0 {
		d.sectorSize = defaultSectorSize
	}
	if d.profileCount == 0 {
		d.profileCount = len(info.Profiles)
	}

	if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbSetMode, []byte{onbModeOnboard}); err != nil {
		return xerrors.Errorf("set onboard mode: %w", err)
	}

	records, err := d.loadDirectory(ctx, t, idx)
	if err != nil {
		return err
	}

	// The directory decides how many profiles actually exist.
	count := len(records)
	if count == 0 || count > d.profileCount {
		count = d.profileCount
	}
	for len(info.Profiles) > count {
		info.Profiles = info.Profiles[:len(info.Profiles)-1]
	}
	for len(info.Profiles) < count {
		seed := devicedb.NewInfo(info.Sysname, info.Name, &devicedb.Entry{Config: d.cfg})
		p := seed.Profiles[0]
		p.Index = uint32(len(info.Profiles))
		p.IsActive = false
		info.Profiles = append(info.Profiles, p)
	}

	d.profileSectors = make(map[uint32]uint16, count)
	for pi := range info.Profiles {
		p := &info.Profiles[pi]
		sector := uint16(p.Index + 1)
		enabled := true
		if pi < len(records) {
			sector = records[pi].sector
			enabled = records[pi].enabled
		}
		d.profileSectors[p.Index] = sector
		if dirty[p.Index] {
			continue
		}
		p.IsEnabled = enabled
		data, err := d.readSector(ctx, t, idx, sector)
		if err != nil {
			slog.Warn("read profile sector",
				slog.Uint64("sector", uint64(sector)), slog.Any("error", err))
			continue
		}
		if !verifySector(sector, data) {
			d.needRepair = true
		}
		decodeProfileSector(data, p)
	}
	return nil
}

type dirRecord struct {
	sector  uint16
	enabled bool
}

// loadDirectory reads and parses sector 0. A corrupt directory is
// recovered by assuming the factory layout (profile n in sector n+1)
// and flagging a rewrite.
func (d *hidpp20) loadDirectory(ctx context.Context, t *transport.Transport, idx byte) ([]dirRecord, error) {
	data, err := d.readSector(ctx, t, idx, directorySector)
	if err != nil {
		return nil, xerrors.Errorf("read profile directory: %w", err)
	}
	if !verifySector(directorySector, data) {
		slog.Warn("profile directory checksum mismatch, assuming factory layout")
		d.needRepair = true
		records := make([]dirRecord, d.profileCount)
		for i := range records {
			records[i] = dirRecord{sector: uint16(i + 1), enabled: true}
		}
		return records, nil
	}

	var records []dirRecord
	for off := 0; off+4 <= len(data)-2 && len(records) < d.profileCount; off += 4 {
		sector := binary.BigEndian.Uint16(data[off : off+2])
		if sector == 0xFFFF {
			break
		}
		records = append(records, dirRecord{sector: sector, enabled: data[off+2] != 0})
	}
	return records, nil
}

// buildDirectory renders the directory sector: one record per profile,
// a terminator, 0xFF padding, checksum in the trailing two bytes.
func (d *hidpp20) buildDirectory(info *device.Info) []byte {
	data := make([]byte, d.sectorSize)
	for i := range data {
		data[i] = 0xFF
	}
	off := 0
	for pi := range info.Profiles {
		p := &info.Profiles[pi]
		binary.BigEndian.PutUint16(data[off:off+2], d.sectorFor(p.Index))
		enabled := byte(0)
		if p.IsEnabled {
			enabled = 1
		}
		data[off+2] = enabled
		data[off+3] = 0x00
		off += 4
	}
	data[off], data[off+1], data[off+2], data[off+3] = 0xFF, 0xFF, 0x00, 0x00
	binary.BigEndian.PutUint16(data[len(data)-2:], Checksum(data[:len(data)-2]))
	return data
}

func (d *hidpp20) sectorFor(profileIndex uint32) uint16 {
	if s, ok := d.profileSectors[profileIndex]; ok {
		return s
	}
	return uint16(profileIndex + 1)
}

func (d *hidpp20) commitOnboard(ctx context.Context, t *transport.Transport, idx byte, info *device.Info) error {
	if d.sectorSize == 0 {
		desc, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbDesc, nil)
		if err != nil {
			return xerrors.Errorf("onboard description: %w", err)
		}
		d.sectorSize = binary.BigEndian.Uint16(desc[7:9])
		if d.sectorSize == 0 {
			d.sectorSize = defaultSectorSize
		}
	}

	// The firmware rejects memory writes while running onboard
	// profiles; all sector writes happen in host mode.
	if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbSetMode, []byte{onbModeHost}); err != nil {
		return xerrors.Errorf("enter host mode: %w", err)
	}
	defer func() {
		// The device must come back to onboard mode even when a write
		// failed, or it stays wedged in host mode until replug.
		if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbSetMode, []byte{onbModeOnboard}); err != nil {
			slog.Warn("restore onboard mode", slog.Any("error", err))
		}
	}()

	for pi := range info.Profiles {
		p := &info.Profiles[pi]
		// A raised repair flag rewrites every sector, dirty or not, so
		// a corrupt checksum cannot survive the commit.
		if !p.IsDirty && !d.needRepair {
			continue
		}
		sector := d.sectorFor(p.Index)
		data, err := d.readSector(ctx, t, idx, sector)
		if err != nil {
			return xerrors.Errorf("read sector 0x%04x: %w", sector, err)
		}
		encodeProfileSector(data, p)
		binary.BigEndian.PutUint16(data[len(data)-2:], Checksum(data[:len(data)-2]))
		if err := d.writeSector(ctx, t, idx, sector, data); err != nil {
			return xerrors.Errorf("write sector 0x%04x: %w", sector, err)
		}
	}

	dir := d.buildDirectory(info)
	if err := d.writeSector(ctx, t, idx, directorySector, dir); err != nil {
		return xerrors.Errorf("write profile directory: %w", err)
	}
	d.needRepair = false
	return nil
}

// readSector fetches one EEPROM sector in 16-byte chunks. The memory
// read rejects offsets past the end, so the final partial chunk is
// read at (size - 16) and only its tail kept.
func (d *hidpp20) readSector(ctx context.Context, t *transport.Transport, idx byte, sector uint16) ([]byte, error) {
	size := int(d.sectorSize)
	data := make([]byte, 0, size)
	for off := 0; off < size; off += sectorChunk {
		n := sectorChunk
		eff := off
		if off+sectorChunk > size {
			n = size - off
			eff = size - sectorChunk
		}
		var p [4]byte
		binary.BigEndian.PutUint16(p[0:2], sector)
		binary.BigEndian.PutUint16(p[2:4], uint16(eff))
		res, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbMemRead, p[:])
		if err != nil {
			return nil, err
		}
		data = append(data, res[sectorChunk-n:sectorChunk]...)
	}
	return data, nil
}

func verifySector(sector uint16, data []byte) bool {
	if len(data) < 2 {
		return false
	}
	stored := binary.BigEndian.Uint16(data[len(data)-2:])
	computed := Checksum(data[:len(data)-2])
	if stored != computed {
		slog.Warn("sector checksum mismatch",
			slog.Uint64("sector", uint64(sector)),
			slog.String("stored", fmt.Sprintf("0x%04x", stored)),
			slog.String("computed", fmt.Sprintf("0x%04x", computed)))
		return false
	}
	return true
}

// writeSector performs the three-phase write (address, data chunks,
// end marker). Any phase failing restarts the whole sequence.
func (d *hidpp20) writeSector(ctx context.Context, t *transport.Transport, idx byte, sector uint16, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= sectorWriteAttempts; attempt++ {
		if lastErr = d.writeSectorOnce(ctx, t, idx, sector, data); lastErr == nil {
			return nil
		}
		slog.Warn("sector write failed",
			slog.Uint64("sector", uint64(sector)),
			slog.Int("attempt", attempt), slog.Any("error", lastErr))
		if attempt < sectorWriteAttempts {
			if err := sleepCtx(ctx, t.Clock, time.Duration(attempt)*sectorWriteBackoff); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (d *hidpp20) writeSectorOnce(ctx context.Context, t *transport.Transport, idx byte, sector uint16, data []byte) error {
	var addr [6]byte
	binary.BigEndian.PutUint16(addr[0:2], sector)
	binary.BigEndian.PutUint16(addr[2:4], 0)
	binary.BigEndian.PutUint16(addr[4:6], uint16(len(data)))
	if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbMemAddrWrite, addr[:]); err != nil {
		return xerrors.Errorf("start write: %w", err)
	}
	for off := 0; off < len(data); off += sectorChunk {
		end := off + sectorChunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbMemWrite, data[off:end]); err != nil {
			return xerrors.Errorf("write chunk at 0x%04x: %w", off, err)
		}
	}
	if _, err := d.featureRequest(ctx, t, d.deviceIndex, idx, fnOnbMemWriteEnd, nil); err != nil {
		return xerrors.Errorf("finish write: %w", err)
	}
	return nil
}

// decodeProfileSector fills p from a profile sector's fixed layout.
// Button records past the end of a small sector are simply absent.
func decodeProfileSector(data []byte, p *device.Profile) {
	if len(data) < profOffDpis+2*profDpiSlots {
		return
	}
	if iv := uint32(data[profOffRate]); iv > 0 {
		p.ReportRate = 1000 / iv
	}
	defaultIdx := uint32(data[profOffDefaultDpi])

	for len(p.Resolutions) < profDpiSlots {
		p.Resolutions = append(p.Resolutions, device.Resolution{Index: uint32(len(p.Resolutions))})
	}
	for i := 0; i < profDpiSlots; i++ {
		r := &p.Resolutions[i]
		dpi := uint32(binary.LittleEndian.Uint16(data[profOffDpis+2*i : profOffDpis+2*i+2]))
		r.Dpi = device.UnifiedDpi(dpi)
		r.IsDisabled = dpi == 0
		r.IsDefault = uint32(i) == defaultIdx
		r.IsActive = r.IsDefault && !r.IsDisabled
	}

	for bi := range p.Buttons {
		off := profOffButtons + bi*profButtonRecLen
		if off+profButtonRecLen > len(data) {
			break
		}
		decodeButton(data[off:off+profButtonRecLen], &p.Buttons[bi])
	}
}

// encodeProfileSector patches p's settings into an existing sector
// image, leaving bytes this build does not model untouched.
func encodeProfileSector(data []byte, p *device.Profile) {
	if len(data) < profOffDpis+2*profDpiSlots {
		return
	}
	if p.ReportRate > 0 {
		data[profOffRate] = byte(1000 / p.ReportRate)
	}
	for i := 0; i < profDpiSlots && i < len(p.Resolutions); i++ {
		r := &p.Resolutions[i]
		if r.IsDefault {
			data[profOffDefaultDpi] = byte(i)
		}
		binary.LittleEndian.PutUint16(data[profOffDpis+2*i:profOffDpis+2*i+2], uint16(r.Dpi.X))
	}
	for bi := range p.Buttons {
		off := profOffButtons + bi*profButtonRecLen
		if off+profButtonRecLen > len(data) {
			break
		}
		// Bindings this build cannot re-encode keep their stored record.
		if a := p.Buttons[bi].Action; a == device.ActionMacro || a == device.ActionUnknown {
			continue
		}
		rec := encodeButton(&p.Buttons[bi])
		copy(data[off:off+profButtonRecLen], rec[:])
	}
}

// decodeButton maps a 4-byte binding record onto the model. Mouse
// buttons ride as a big-endian bitmask with bit n-1 meaning button n.
func decodeButton(rec []byte, b *device.Button) {
	if len(b.ActionKinds) == 0 {
		b.ActionKinds = []device.ActionKind{
			device.ActionNone, device.ActionButton,
			device.ActionSpecial, device.ActionKey,
		}
	}
	switch rec[0] {
	case btnTypeMacro:
		// The record points at macro storage; the events themselves are
		// not read back.
		b.Action = device.ActionMacro
		b.MappingValue = uint32(binary.BigEndian.Uint16(rec[2:4]))
	case btnTypeHid:
		switch rec[1] {
		case btnSubtypeMouse:
			mask := binary.BigEndian.Uint16(rec[2:4])
			if mask == 0 {
				b.Action = device.ActionNone
				b.MappingValue = 0
				return
			}
			b.Action = device.ActionButton
			b.MappingValue = uint32(bits.TrailingZeros16(mask)) + 1
		case btnSubtypeKeyboard:
			b.Action = device.ActionKey
			b.MappingValue = uint32(rec[3])
		case btnSubtypeConsumer:
			b.Action = device.ActionKey
			b.MappingValue = uint32(binary.BigEndian.Uint16(rec[2:4]))
		default:
			b.Action = device.ActionUnknown
		}
	case btnTypeSpecial:
		b.Action = device.ActionSpecial
		b.MappingValue = uint32(binary.BigEndian.Uint16(rec[2:4]))
	case btnTypeDisabled:
		b.Action = device.ActionNone
		b.MappingValue = 0
	default:
		b.Action = device.ActionUnknown
	}
}

func encodeButton(b *device.Button) [4]byte {
	var rec [4]byte
	switch b.Action {
	case device.ActionButton:
		rec[0], rec[1] = btnTypeHid, btnSubtypeMouse
		if b.MappingValue >= 1 && b.MappingValue <= 16 {
			binary.BigEndian.PutUint16(rec[2:4], 1<<(b.MappingValue-1))
		}
	case device.ActionKey:
		rec[0], rec[1] = btnTypeHid, btnSubtypeKeyboard
		rec[3] = byte(b.MappingValue)
	case device.ActionSpecial:
		rec[0] = btnTypeSpecial
		binary.BigEndian.PutUint16(rec[2:4], uint16(b.MappingValue))
	default:
		rec[0] = btnTypeDisabled
		rec[1], rec[2], rec[3] = 0xFF, 0xFF, 0xFF
	}
	return rec
}

func sleepCtx(ctx context.Context, clk quartz.Clock, d time.Duration) error {
	tmr := clk.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
