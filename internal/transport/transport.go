// Package transport correlates request/response pairs over a shared,
// interleaved HID report stream.
//
// A single hidraw node carries both protocol replies and unrelated
// device telemetry (a wireless receiver keeps forwarding mouse motion
// reports while a configuration reply is pending), so the core
// primitive here is "send and match": write a report, then keep
// reading and discarding until a caller-supplied predicate recognises
// the reply or the time budget runs out.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"github.com/seagrayinc/mouserd/internal/hid"
)

const (
	// DefaultReadBudget bounds each attempt's read loop. The loop is
	// time-based, not count-based: irrelevant traffic can arrive at
	// arbitrarily high rates, so a fixed read count could be exhausted
	// before the real reply appears.
	DefaultReadBudget = 2 * time.Second

	// DefaultReadTimeout bounds each individual read so a single
	// stalled read cannot block past the attempt's deadline.
	DefaultReadTimeout = 500 * time.Millisecond

	// MaxReportLen is a safe ceiling covering any current HID report.
	MaxReportLen = 4096
)

// TimeoutError is returned when every attempt's budget expires without
// a matching reply.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hardware timed out after %d attempt(s)", e.Attempts)
}

// ErrFeatureUnsupported is returned by the feature-report helpers when
// the underlying backend has no feature-report access.
var ErrFeatureUnsupported = xerrors.New("backend does not support feature reports")

// Transport owns an open HID device handle. All reads and writes for
// one device funnel through a single Transport, which is in turn owned
// by that device's actor.
type Transport struct {
	dev hid.Device

	// Clock is used for budget arithmetic. Swapped for a mock in tests.
	Clock quartz.Clock

	ReadBudget  time.Duration
	ReadTimeout time.Duration

	// Filter reports whether an inbound buffer can possibly be a
	// protocol report, keyed on its leading byte. Buffers rejected here
	// are dropped without reaching the match predicate. A nil Filter
	// accepts everything.
	Filter func([]byte) bool
}

func New(dev hid.Device) *Transport {
	return &Transport{
		dev:         dev,
		Clock:       quartz.NewReal(),
		ReadBudget:  DefaultReadBudget,
		ReadTimeout: DefaultReadTimeout,
	}
}

// WriteReport sends a raw HID report.
func (t *Transport) WriteReport(buf []byte) error {
	if _, err := t.dev.Write(buf); err != nil {
		return xerrors.Errorf("write report: %w", err)
	}
	slog.Debug("TX", slog.Int("len", len(buf)), slog.String("data", fmt.Sprintf("%02x", buf)))
	return nil
}

// ReadReport reads a single HID report, waiting at most timeout.
// Returns 0 bytes with a nil error when the timeout expires quietly.
func (t *Transport) ReadReport(buf []byte, timeout time.Duration) (int, error) {
	n, err := t.dev.ReadTimeout(buf, timeout)
	if err != nil {
		return 0, xerrors.Errorf("read report: %w", err)
	}
	if n > 0 {
		slog.Debug("RX", slog.Int("len", n), slog.String("data", fmt.Sprintf("%02x", buf[:n])))
	}
	return n, nil
}

// SendFeature sets a feature report (buf[0] is the report ID).
func (t *Transport) SendFeature(buf []byte) error {
	f, ok := t.dev.(hid.Feature)
	if !ok {
		return ErrFeatureUnsupported
	}
	if _, err := f.SendFeatureReport(buf); err != nil {
		return xerrors.Errorf("set feature report: %w", err)
	}
	return nil
}

// GetFeature fetches a feature report (buf[0] must hold the report ID).
func (t *Transport) GetFeature(buf []byte) (int, error) {
	f, ok := t.dev.(hid.Feature)
	if !ok {
		return 0, ErrFeatureUnsupported
	}
	n, err := f.GetFeatureReport(buf)
	if err != nil {
		return 0, xerrors.Errorf("get feature report: %w", err)
	}
	return n, nil
}

func (t *Transport) Close() error {
	return t.dev.Close()
}

// Request sends a report and waits for a reply that the match
// predicate recognises. The predicate receives each inbound buffer
// that passes the transport's Filter and returns (result, true) on a
// match, or false to keep waiting.
//
// Each attempt writes the report once and then reads until the budget
// expires; all attempts failing yields a *TimeoutError. A predicate
// that recognises an in-protocol error should return it as a match so
// the caller can propagate it; retrying a rejected command rarely
// succeeds.
func Request[T any](ctx context.Context, t *Transport, report []byte, maxAttempts int, match func([]byte) (T, bool)) (T, error) {
	var zero T

	budget := t.ReadBudget
	if budget <= 0 {
		budget = DefaultReadBudget
	}
	perRead := t.ReadTimeout
	if perRead <= 0 {
		perRead = DefaultReadTimeout
	}

	buf := make([]byte, MaxReportLen)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if err := t.WriteReport(report); err != nil {
			return zero, err
		}

		deadline := t.Clock.Now().Add(budget)
	readLoop:
		for {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			remaining := deadline.Sub(t.Clock.Now())
			if remaining <= 0 {
				slog.Debug("read budget expired", slog.Int("attempt", attempt))
				break
			}
			readTimeout := perRead
			if remaining < readTimeout {
				readTimeout = remaining
			}

			n, err := t.ReadReport(buf, readTimeout)
			switch {
			case err != nil:
				slog.Warn("read error", slog.Int("attempt", attempt), slog.Any("error", err))
				break readLoop
			case n == 0:
				// Quiet timeout on a single read: no more data coming,
				// retry with a fresh write.
				slog.Debug("read timeout", slog.Int("attempt", attempt))
				break readLoop
			}

			// Skip reports that cannot belong to the protocol (mouse
			// movement, keyboard, other telemetry).
			if t.Filter != nil && !t.Filter(buf[:n]) {
				continue
			}
			if result, ok := match(buf[:n]); ok {
				return result, nil
			}
		}
	}

	return zero, &TimeoutError{Attempts: maxAttempts}
}
