// mouserd discovers supported gaming mice, keeps their configuration
// state in sync and serves it to clients.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seagrayinc/mouserd/internal/daemon"
	"github.com/seagrayinc/mouserd/internal/hid"
	"github.com/seagrayinc/mouserd/internal/hotplug"
	"github.com/seagrayinc/mouserd/internal/testdev"

	_ "github.com/seagrayinc/mouserd/internal/driver/hidpp"
)

func main() {
	backend := flag.String("hid-backend", "hidapi", "HID backend: hidapi or usbhid")
	interval := flag.Duration("poll-interval", hotplug.DefaultPollInterval, "device enumeration interval")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	testDevice := flag.String("test-device", "", "path to a synthetic device JSON spec")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", slog.String("value", *logLevel))
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	mgr, err := hid.NewManager(*backend)
	if err != nil {
		slog.Error("initialize HID backend", slog.Any("error", err))
		os.Exit(1)
	}

	m, err := daemon.New(daemon.Config{HID: mgr})
	if err != nil {
		slog.Error("initialize daemon", slog.Any("error", err))
		os.Exit(1)
	}

	if *testDevice != "" {
		spec, err := testdev.Load(*testDevice)
		if err != nil {
			slog.Error("load test device", slog.Any("error", err))
			os.Exit(1)
		}
		if err := m.AddTestDevice(ctx, "test0", spec); err != nil {
			slog.Error("add test device", slog.Any("error", err))
			os.Exit(1)
		}
	}

	poller := hotplug.NewPoller(ctx, hotplug.PollerConfig{Interval: *interval})
	defer poller.Close()

	slog.Info("mouserd started", slog.String("backend", *backend))
	if err := m.Run(ctx, poller.Events()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon exited", slog.Any("error", err))
		os.Exit(1)
	}
}
