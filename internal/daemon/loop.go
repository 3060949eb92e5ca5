package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocx/ssp-bridge/internal/bus"
	"github.com/ocx/ssp-bridge/internal/device"
	"github.com/ocx/ssp-bridge/internal/pollevents"
	"github.com/ocx/ssp-bridge/internal/sspproto"
)

const (
	pollPeriod          = time.Second
	shutdownTickPeriod  = 500 * time.Millisecond
	hardwareRecoveryGap = 300 * time.Millisecond
	busDispatchGap      = 300 * time.Millisecond
)

// Run is the cooperative single-threaded event loop (spec §4.5): it owns
// the only goroutine that ever touches the serial transport. ctx
// cancellation (SIGINT/SIGTERM from the caller) and an in-band "quit"
// command both set the same shutdown flag, observed by the next shutdown
// tick.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.subscribe(ctx); err != nil {
		return err
	}
	// Invariant O3: started precedes any response or device event.
	d.publishLifecycle(ctx, "started")

	pollTicker := time.NewTicker(pollPeriod)
	defer pollTicker.Stop()
	shutdownTicker := time.NewTicker(shutdownTickPeriod)
	defer shutdownTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			d.requestShutdown()
		case <-shutdownTicker.C:
			if d.shutdown.Load() {
				break loop
			}
		case <-pollTicker.C:
			d.pollAll(ctx)
		case msg := <-d.requests:
			time.Sleep(busDispatchGap)
			d.handleInbound(ctx, msg)
		}
	}

	if d.Transport != nil {
		if err := d.Transport.Close(); err != nil {
			d.Logger.Warn("closing transport", "error", err)
		}
	}
	// Invariant O4: exiting is the last message the process emits.
	d.publishLifecycle(ctx, "exiting")
	return nil
}

func (d *Daemon) pollAll(ctx context.Context) {
	for _, dev := range []*device.Device{d.Hopper, d.Validator} {
		if dev == nil || !dev.Available() {
			continue
		}
		time.Sleep(hardwareRecoveryGap)
		d.pollDevice(ctx, dev)
	}
}

func (d *Daemon) pollDevice(ctx context.Context, dev *device.Device) {
	_, payload, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdPoll, sspproto.EncodePoll())
	if err != nil {
		d.Logger.Warn("poll failed", "device", dev.Name, "error", err)
		return
	}

	events, err := sspproto.DecodePollEvents(payload)
	if err != nil {
		d.Logger.Warn("decoding poll response", "device", dev.Name, "error", err)
		return
	}

	eventTopic := bus.TopicHopperEvent
	if dev.Kind == device.KindValidator {
		eventTopic = bus.TopicValidatorEvent
	}

	// Invariant O1: published strictly in the order the device returned
	// them.
	for _, ev := range events {
		translated := pollevents.Translate(dev.Kind, pollevents.Event{
			Opcode:   pollevents.Opcode(ev.Opcode),
			Data1:    ev.Data1,
			Data2:    ev.Data2,
			Currency: ev.Currency.String(),
		}, dev.ChannelFaceValue)

		if translated.RequiresProtocolResync {
			d.resyncProtocol(ctx, dev)
		}
		if translated.RequiresCalibrationRun {
			d.runCalibration(ctx, dev)
		}

		raw, err := json.Marshal(translated.JSON)
		if err != nil {
			d.Logger.Error("marshal poll event", "device", dev.Name, "error", err)
			continue
		}
		if err := d.Bus.Publish(ctx, eventTopic, raw); err != nil {
			d.Logger.Error("publish poll event", "device", dev.Name, "error", err)
		}
	}
}

// resyncProtocol implements invariant I2 and testable property 3: after a
// "unit reset" poll event the session drops straight to Fresh and the very
// next command sent is HOST_PROTOCOL(0x06), not SYNC.
func (d *Daemon) resyncProtocol(ctx context.Context, dev *device.Device) {
	sess := dev.Session()
	sess.ResetToFresh()
	status, _, err := sess.Do(ctx, d.Negotiator, sspproto.CmdHostProtocol, sspproto.EncodeHostProtocol(sspproto.HostProtocolVersion))
	if err != nil {
		d.Logger.Warn("protocol resync after unit reset failed", "device", dev.Name, "error", err)
		return
	}
	if status.IsOK() {
		sess.Advance(sspproto.StateProtocol6)
	}
}

func (d *Daemon) runCalibration(ctx context.Context, dev *device.Device) {
	if _, _, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdRunCalibration, sspproto.EncodeRunCalibration()); err != nil {
		d.Logger.Warn("run-calibration failed", "device", dev.Name, "error", err)
	}
}
