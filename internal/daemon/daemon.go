// Package daemon is the cooperative single-threaded event loop and bus
// request handler described in spec §4.5 and §4.7: it is the only thing in
// this repository allowed to touch the serial transport.
package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/ocx/ssp-bridge/internal/bus"
	"github.com/ocx/ssp-bridge/internal/device"
	"github.com/ocx/ssp-bridge/internal/sspproto"
)

// eurCurrency is the fixed currency the vendor protocol round-trips
// unchanged (spec §4.3).
var eurCurrency, _ = sspproto.NewCurrency("EUR")

// inboundMessage is a bus request handed from a Bus.Subscribe callback
// goroutine to the loop goroutine. The Bus contract runs handlers on a
// goroutine it owns, not the loop's own goroutine, so this channel is what
// preserves the single-threaded hardware-access invariant (spec §5).
type inboundMessage struct {
	topic   string
	payload []byte
}

// Daemon bundles everything the event loop needs: the bus, the two
// devices, the key negotiator, and the shutdown/request plumbing.
type Daemon struct {
	Bus        bus.Bus
	Hopper     *device.Device
	Validator  *device.Device
	Negotiator sspproto.KeyNegotiator
	Logger     *slog.Logger
	AllowCoins bool

	// Transport is closed once the loop exits (spec §5: "after loop exit
	// the transport is closed"). Both devices share one physical line, so
	// this is stored once rather than once per device.
	Transport io.Closer

	shutdown atomic.Bool
	requests chan inboundMessage
}

// New constructs a Daemon ready to Run.
func New(b bus.Bus, hopper, validator *device.Device, negotiator sspproto.KeyNegotiator, logger *slog.Logger, allowCoins bool, transport io.Closer) *Daemon {
	return &Daemon{
		Bus:        b,
		Hopper:     hopper,
		Validator:  validator,
		Negotiator: negotiator,
		Logger:     logger,
		AllowCoins: allowCoins,
		Transport:  transport,
		requests:   make(chan inboundMessage, 8),
	}
}

func (d *Daemon) subscribe(ctx context.Context) error {
	if err := d.Bus.Subscribe(ctx, bus.TopicHopperRequest, d.enqueue(bus.TopicHopperRequest)); err != nil {
		return err
	}
	if err := d.Bus.Subscribe(ctx, bus.TopicValidatorRequest, d.enqueue(bus.TopicValidatorRequest)); err != nil {
		return err
	}
	// metacash is reserved but left with no defined behavior (spec §9 open
	// question); subscribing with a no-op handler drains it without acting.
	return d.Bus.Subscribe(ctx, bus.TopicMetacash, func([]byte) {})
}

func (d *Daemon) enqueue(topic string) func([]byte) {
	return func(payload []byte) {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		d.requests <- inboundMessage{topic: topic, payload: cp}
	}
}

func (d *Daemon) requestShutdown() {
	d.shutdown.Store(true)
}

func (d *Daemon) publishLifecycle(ctx context.Context, event string) {
	raw, err := json.Marshal(map[string]any{"event": event})
	if err != nil {
		d.Logger.Error("marshal lifecycle event", "error", err)
		return
	}
	if err := d.Bus.Publish(ctx, bus.TopicPayoutEvent, raw); err != nil {
		d.Logger.Error("publish lifecycle event", "event", event, "error", err)
	}
}

func (d *Daemon) publishResponse(ctx context.Context, topic string, v bus.Value) {
	raw, err := v.Marshal()
	if err != nil {
		d.Logger.Error("marshal response", "error", err)
		return
	}
	if err := d.Bus.Publish(ctx, topic, raw); err != nil {
		d.Logger.Error("publish response", "topic", topic, "error", err)
	}
}

func (d *Daemon) deviceFor(topic string) (*device.Device, string) {
	switch topic {
	case bus.TopicHopperRequest:
		return d.Hopper, bus.TopicHopperResponse
	case bus.TopicValidatorRequest:
		return d.Validator, bus.TopicValidatorResponse
	default:
		return nil, ""
	}
}
