package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/ssp-bridge/internal/bus"
	"github.com/ocx/ssp-bridge/internal/device"
	"github.com/ocx/ssp-bridge/internal/sspproto"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopNegotiator struct{}

func (noopNegotiator) Negotiate(context.Context, *sspproto.Session) error { return nil }

// fakeTransport replays a fixed sequence of already-framed wire replies and
// records every outbound write, independent of the scriptedTransport in
// sspproto's own tests (unexported there).
type fakeTransport struct {
	writes  [][]byte
	replies [][]byte
	idx     int
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)
	return len(p), nil
}

func (f *fakeTransport) Read(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	if f.idx >= len(f.replies) {
		return nil, sspproto.ErrReadTimeout
	}
	r := f.replies[f.idx]
	f.idx++
	return r, nil
}

func mustFrame(t *testing.T, status sspproto.Status, extra ...byte) []byte {
	t.Helper()
	payload := append([]byte{byte(status)}, extra...)
	frame, err := sspproto.EncodeFrame(0x00, 0, payload)
	require.NoError(t, err)
	return frame
}

func newTestDevice(kind device.Kind, replies ...[]byte) (*device.Device, *fakeTransport) {
	tr := &fakeTransport{replies: replies}
	dev := device.New("dev", "Dev", kind, tr, 0x00, 0)
	return dev, tr
}

func newTestDaemon(hopper, validator *device.Device) *Daemon {
	return New(bus.NewFakeBus(), hopper, validator, noopNegotiator{}, discardLogger(), false, nil)
}

func TestDispatchConfigureBezelHappyPath(t *testing.T) {
	dev, tr := newTestDevice(device.KindHopper, mustFrame(t, sspproto.StatusOK))
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "configure-bezel", "A",
		map[string]any{"r": 255.0, "g": 0.0, "b": 0.0, "type": 1.0})

	assert.Equal(t, "ok", resp["result"])
	assert.Equal(t, "A", resp["correlId"])
	assert.Len(t, tr.writes, 1)
}

func TestDispatchConfigureBezelMissingPropertyNeverTransmits(t *testing.T) {
	dev, tr := newTestDevice(device.KindHopper)
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "configure-bezel", "B",
		map[string]any{"r": 255.0, "g": 0.0, "b": 0.0})

	assert.Equal(t, "Property 'type' missing or of wrong type", resp["error"])
	assert.Equal(t, "B", resp["correlId"])
	assert.Empty(t, tr.writes)
}

func TestDispatchPayoutCannotPayExactAmount(t *testing.T) {
	dev, _ := newTestDevice(device.KindValidator, mustFrame(t, sspproto.StatusCommandNotProcessed, 0x02))
	d := newTestDaemon(nil, dev)

	resp := d.dispatch(context.Background(), dev, "do-payout", "C", map[string]any{"amount": 1234.0})

	assert.Equal(t, "can't pay exact amount", resp["error"])
	assert.Equal(t, "C", resp["correlId"])
}

func TestDispatchUnknownCommand(t *testing.T) {
	dev, _ := newTestDevice(device.KindHopper)
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "nope", "D", map[string]any{})

	assert.Equal(t, "unknown command", resp["error"])
	assert.Equal(t, "nope", resp["cmd"])
	assert.Equal(t, "D", resp["correlId"])
}

func TestDispatchHardwareUnavailableBlocksAllButTestAndQuit(t *testing.T) {
	dev, tr := newTestDevice(device.KindHopper)
	dev.SetAvailable(false)
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "empty", "E", map[string]any{})
	assert.Equal(t, "hardware unavailable", resp["error"])
	assert.Empty(t, tr.writes)

	resp = d.dispatch(context.Background(), dev, "test", "F", map[string]any{})
	assert.Equal(t, "ok", resp["result"])
}

func TestDispatchQuitSetsShutdownFlag(t *testing.T) {
	dev, _ := newTestDevice(device.KindHopper)
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "quit", "G", map[string]any{})
	assert.Equal(t, "ok", resp["result"])
	assert.True(t, d.shutdown.Load())
}

func TestHandleGetAllLevelsEmptyProducesEmptyArray(t *testing.T) {
	dev, _ := newTestDevice(device.KindHopper, mustFrame(t, sspproto.StatusOK, 0x00))
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "get-all-levels", "H", map[string]any{})

	levels, ok := resp["levels"].([]map[string]any)
	require.True(t, ok)
	assert.Empty(t, levels)
}

func TestHandleCashboxPayoutOperationDataAlwaysAppendsTrailingObject(t *testing.T) {
	dev, _ := newTestDevice(device.KindHopper, mustFrame(t, sspproto.StatusOK, 0x00, 0x00, 0x00, 0x00))
	d := newTestDaemon(dev, nil)

	resp := d.dispatch(context.Background(), dev, "cashbox-payout-operation-data", "I", map[string]any{})

	levels, ok := resp["levels"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, levels, 1)
	assert.Equal(t, 0, levels[0]["value"])
}

func TestHandleInboundMalformedJSONHasNoCorrelID(t *testing.T) {
	dev, _ := newTestDevice(device.KindHopper)
	fb := bus.NewFakeBus()
	d := New(fb, dev, nil, noopNegotiator{}, discardLogger(), false, nil)

	d.handleInbound(context.Background(), inboundMessage{topic: bus.TopicHopperRequest, payload: []byte("{not json")})

	require.Len(t, fb.Published, 1)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(fb.Published[0].Payload, &decoded))
	_, hasCorrelID := decoded["correlId"]
	assert.False(t, hasCorrelID)
	assert.Equal(t, "could not parse json", decoded["error"])
}

func TestLifecycleStartedPrecedesExiting(t *testing.T) {
	fb := bus.NewFakeBus()
	d := New(fb, nil, nil, noopNegotiator{}, discardLogger(), false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Run(ctx))

	require.GreaterOrEqual(t, len(fb.Published), 2)
	assert.Equal(t, bus.TopicPayoutEvent, fb.Published[0].Topic)
	assert.Contains(t, string(fb.Published[0].Payload), "started")
	last := fb.Published[len(fb.Published)-1]
	assert.Equal(t, bus.TopicPayoutEvent, last.Topic)
	assert.Contains(t, string(last.Payload), "exiting")
}
