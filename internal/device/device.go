// Package device holds per-peripheral session state and the typed
// operations the request handler and event loop drive it through (spec
// §4.4 Device Session, §3 Device data model).
package device

import (
	"context"
	"fmt"

	"github.com/ocx/ssp-bridge/internal/sspproto"
)

// Kind distinguishes the two peripheral families this daemon talks to;
// poll-event translation and startup configuration diverge by kind.
type Kind int

const (
	KindHopper Kind = iota
	KindValidator
)

func (k Kind) String() string {
	if k == KindValidator {
		return "validator"
	}
	return "hopper"
}

// Device bundles identity, session, configuration snapshot, and runtime
// state for one peripheral (spec §3 Device).
type Device struct {
	Name  string // logical name, e.g. "hopper"
	Label string
	Kind  Kind

	session *sspproto.Session

	unitType byte
	channels []sspproto.ChannelEntry

	available    bool
	inhibitLow   byte
	inhibitHigh  byte
}

// New constructs a Device wrapping a fresh (unsynced) session.
func New(name, label string, kind Kind, transport sspproto.Transport, addr byte, presharedKey uint64) *Device {
	return &Device{
		Name:        name,
		Label:       label,
		Kind:        kind,
		session:     sspproto.NewSession(transport, addr, presharedKey),
		available:   true,
		inhibitLow:  0xFF,
		inhibitHigh: 0xFF,
	}
}

// Session exposes the underlying SSP session for the event loop (polling)
// and the negotiator.
func (d *Device) Session() *sspproto.Session { return d.session }

// Available reports whether the loop should poll and accept commands for
// this device (spec §4.5 Poll tick: "for each device whose available flag
// is set").
func (d *Device) Available() bool { return d.available }

// SetAvailable flips the availability flag, e.g. after a fatal transport
// error.
func (d *Device) SetAvailable(v bool) { d.available = v }

// Channels returns the cached setup-table channel list (spec §3
// configuration snapshot).
func (d *Device) Channels() []sspproto.ChannelEntry { return d.channels }

// ChannelFaceValue returns the face value of the given 1-based channel, or
// 0 if unknown. Used by Poll Event Translation (spec §4.6) to compute
// amount = channel_value x 100 for validator credit/read events.
func (d *Device) ChannelFaceValue(channel int) uint32 {
	for _, c := range d.channels {
		if c.Channel == channel {
			return c.FaceValue
		}
	}
	return 0
}

// SetSetup caches the setup_request response (Protocol6->SetupKnown
// transition, spec §4.2).
func (d *Device) SetSetup(resp *sspproto.SetupResponse) {
	d.unitType = resp.UnitType
	d.channels = resp.Channels
}

func (d *Device) UnitType() byte { return d.unitType }

// parseChannelSet implements the channel-string grammar from spec §4.7 and
// §8 property 8: digits '1'..'8' select that channel (1-based); all other
// characters, including '9' and 'A', are ignored.
func parseChannelSet(channels string) map[int]bool {
	set := make(map[int]bool)
	for _, r := range channels {
		if r >= '1' && r <= '8' {
			set[int(r-'0')] = true
		}
	}
	return set
}

// bitmapFor turns a 1-based channel set into the low/high inhibit bytes
// (bit i = channel i+1 enabled, spec §3 runtime).
func bitmapFor(set map[int]bool) (low, high byte) {
	for ch := range set {
		bit := byte(1) << uint((ch-1)%8)
		if ch <= 8 {
			low |= bit
		} else {
			high |= bit
		}
	}
	return low, high
}

func (d *Device) commitInhibits(ctx context.Context, negotiator sspproto.KeyNegotiator, low, high byte) error {
	status, _, err := d.session.Do(ctx, negotiator, sspproto.CmdSetInhibits, sspproto.EncodeSetInhibits(low, high))
	if err != nil {
		return err
	}
	if !status.IsOK() {
		return status.AsError()
	}
	// Invariant I3: the host-held bitmap matches the last value the
	// hardware acknowledged, so it is only updated here, after OK.
	d.inhibitLow, d.inhibitHigh = low, high
	return nil
}

// InhibitChannels sets the bitmap absolutely, starting from all-enabled
// and clearing the named channels (spec §4.4: "inhibit-channels is
// absolute (starts from all-enabled 0xFF)"). Calling it twice with the
// same channels string is idempotent and sends identical set_inhibits
// command bytes; only the frame's SEQ bit differs (spec §8 property 5).
func (d *Device) InhibitChannels(ctx context.Context, negotiator sspproto.KeyNegotiator, channels string) error {
	set := parseChannelSet(channels)
	inhibitLow, inhibitHigh := bitmapFor(set)
	return d.commitInhibits(ctx, negotiator, 0xFF&^inhibitLow, 0xFF&^inhibitHigh)
}

// EnableChannels ORs the named channels into the current bitmap (spec
// §4.4).
func (d *Device) EnableChannels(ctx context.Context, negotiator sspproto.KeyNegotiator, channels string) error {
	set := parseChannelSet(channels)
	orLow, orHigh := bitmapFor(set)
	return d.commitInhibits(ctx, negotiator, d.inhibitLow|orLow, d.inhibitHigh|orHigh)
}

// DisableChannels ANDs the complement of the named channels into the
// current bitmap (spec §4.4).
func (d *Device) DisableChannels(ctx context.Context, negotiator sspproto.KeyNegotiator, channels string) error {
	set := parseChannelSet(channels)
	andLow, andHigh := bitmapFor(set)
	return d.commitInhibits(ctx, negotiator, d.inhibitLow&^andLow, d.inhibitHigh&^andHigh)
}

// InhibitBitmap returns the host-held inhibit bytes, for tests and
// diagnostics.
func (d *Device) InhibitBitmap() (low, high byte) { return d.inhibitLow, d.inhibitHigh }

// RequireSetup enforces invariant I1: a device may only serve a command
// after a successful setup-request.
func (d *Device) RequireSetup() error {
	if d.session.State() < sspproto.StateSetupKnown {
		return fmt.Errorf("%w: %s", sspproto.ErrNotSetup, d.Name)
	}
	return nil
}
