// Command ssp-bridge is the daemon entrypoint: parses flags, opens the
// serial line, brings the hopper and validator up through the SSP session
// state machine, then runs the event loop until shutdown (spec §6).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocx/ssp-bridge/internal/bus"
	"github.com/ocx/ssp-bridge/internal/config"
	"github.com/ocx/ssp-bridge/internal/daemon"
	"github.com/ocx/ssp-bridge/internal/device"
	"github.com/ocx/ssp-bridge/internal/sspproto"
	"github.com/ocx/ssp-bridge/internal/transport"
)

// Addresses are fixed by this daemon's wiring: both peripherals share one
// serial line and are distinguished by SSP address byte. The preshared key
// provisioning mechanism is outside this spec's scope (see DESIGN.md); both
// devices start from a zero preshared key until a real provisioning path is
// specified.
const (
	hopperAddr    byte   = 0x00
	validatorAddr byte   = 0x02
	presharedKey  uint64 = 0
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := newLogger(cfg.LogToStderr)

	line, err := transport.Open(cfg.Device)
	if err != nil {
		logger.Error("opening serial device", "device", cfg.Device, "error", err)
		return 1
	}

	negotiator := device.DHKeyNegotiator{}
	hopper := device.New("hopper", "Coin Hopper", device.KindHopper, line, hopperAddr, presharedKey)
	validator := device.New("validator", "Note Validator", device.KindValidator, line, validatorAddr, presharedKey)

	ctx := context.Background()
	if err := bringUp(ctx, hopper, negotiator, logger); err != nil {
		logger.Error("bringing up hopper", "error", err)
		hopper.SetAvailable(false)
	} else if err := configureHopper(ctx, hopper, negotiator, cfg.AllowCoins); err != nil {
		logger.Warn("configuring hopper channels", "error", err)
	}

	if err := bringUp(ctx, validator, negotiator, logger); err != nil {
		logger.Error("bringing up validator", "error", err)
		validator.SetAvailable(false)
	} else {
		if err := enablePayout(ctx, validator, negotiator); err != nil {
			logger.Error("enabling validator payout", "error", err)
			validator.SetAvailable(false)
		} else {
			configureValidator(ctx, validator, negotiator, logger)
		}
	}

	redisBus, err := bus.NewRedisBus(ctx, cfg.Addr())
	if err != nil {
		logger.Error("connecting to bus", "addr", cfg.Addr(), "error", err)
		return 1
	}
	defer redisBus.Close()

	d := daemon.New(redisBus, hopper, validator, negotiator, logger, cfg.AllowCoins, line)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("termination signal received")
		cancel()
	}()

	if err := d.Run(runCtx); err != nil {
		logger.Error("event loop exited with error", "error", err)
		return 1
	}
	return 0
}

func newLogger(toStderr bool) *slog.Logger {
	var w io.Writer = os.Stdout
	if toStderr {
		w = io.MultiWriter(os.Stdout, os.Stderr)
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

// bringUp runs a device through Fresh->Synced->Protocol6->SetupKnown->Enabled
// (spec §4.2 state machine).
func bringUp(ctx context.Context, dev *device.Device, negotiator sspproto.KeyNegotiator, logger *slog.Logger) error {
	sess := dev.Session()

	if err := mustOK(sess.Do(ctx, negotiator, sspproto.CmdSync, sspproto.EncodeSync())); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	sess.Advance(sspproto.StateSynced)

	if err := mustOK(sess.Do(ctx, negotiator, sspproto.CmdHostProtocol, sspproto.EncodeHostProtocol(sspproto.HostProtocolVersion))); err != nil {
		return fmt.Errorf("host_protocol: %w", err)
	}
	sess.Advance(sspproto.StateProtocol6)

	status, payload, err := sess.Do(ctx, negotiator, sspproto.CmdSetupRequest, sspproto.EncodeSetupRequest())
	if err != nil {
		return fmt.Errorf("setup_request: %w", err)
	}
	if !status.IsOK() {
		return fmt.Errorf("setup_request: %w", status.AsError())
	}
	setup, err := sspproto.DecodeSetupResponse(payload)
	if err != nil {
		return fmt.Errorf("setup_request: decoding response: %w", err)
	}
	dev.SetSetup(setup)
	sess.Advance(sspproto.StateSetupKnown)

	if err := mustOK(sess.Do(ctx, negotiator, sspproto.CmdEnable, sspproto.EncodeEnable())); err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	sess.Advance(sspproto.StateEnabled)

	logger.Info("device enabled", "device", dev.Name, "unit_type", setup.UnitType, "channels", len(setup.Channels))
	return nil
}

func enablePayout(ctx context.Context, dev *device.Device, negotiator sspproto.KeyNegotiator) error {
	return mustOK(dev.Session().Do(ctx, negotiator, sspproto.CmdEnablePayout, sspproto.EncodeEnablePayout(dev.UnitType())))
}

// allChannels is the channel-string grammar's full digit range (spec §4.7:
// "digits 1..8").
const allChannels = "12345678"

func configureHopper(ctx context.Context, dev *device.Device, negotiator sspproto.KeyNegotiator, allowCoins bool) error {
	if allowCoins {
		return dev.EnableChannels(ctx, negotiator, allChannels)
	}
	return dev.InhibitChannels(ctx, negotiator, allChannels)
}

// validatorRoutes maps note value (minor units) to destination, per spec §6
// startup hardware configuration.
var validatorRoutes = []struct {
	amount uint32
	route  sspproto.Route
}{
	{500, sspproto.RouteCashbox},
	{1000, sspproto.RouteCashbox},
	{2000, sspproto.RouteCashbox},
	{5000, sspproto.RouteStorage},
	{10000, sspproto.RouteStorage},
	{20000, sspproto.RouteStorage},
	{50000, sspproto.RouteStorage},
}

func configureValidator(ctx context.Context, dev *device.Device, negotiator sspproto.KeyNegotiator, logger *slog.Logger) {
	cc, _ := sspproto.NewCurrency("EUR")
	sess := dev.Session()
	for _, r := range validatorRoutes {
		if err := mustOK(sess.Do(ctx, negotiator, sspproto.CmdSetRoute, sspproto.EncodeSetRoute(r.amount, cc, r.route))); err != nil {
			logger.Warn("set_route failed", "amount", r.amount, "error", err)
		}
	}

	if err := mustOK(sess.Do(ctx, negotiator, sspproto.CmdSetRefillMode, sspproto.EncodeSetRefillMode())); err != nil {
		logger.Warn("set_refill_mode failed (non-fatal)", "error", err)
	}

	// Initial channel-inhibits are all-disabled (spec §6).
	if err := dev.InhibitChannels(ctx, negotiator, allChannels); err != nil {
		logger.Warn("initial inhibit-channels failed", "error", err)
	}
}

func mustOK(status sspproto.Status, _ []byte, err error) error {
	if err != nil {
		return err
	}
	return status.AsError()
}
