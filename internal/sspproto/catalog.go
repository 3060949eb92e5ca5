package sspproto

import (
	"encoding/binary"
	"fmt"
)

// Command is an SSP command byte (spec §4.3 SSP Command Catalog). Values
// match the vendor's published opcode table; they are opaque magic numbers
// from this repo's point of view.
type Command byte

const (
	CmdSync                      Command = 0x11
	CmdHostProtocol              Command = 0x06
	CmdPoll                      Command = 0x07
	CmdSetupRequest              Command = 0x05
	CmdEnable                    Command = 0x0A
	CmdDisable                   Command = 0x09
	CmdEnablePayout              Command = 0x5C
	CmdSetInhibits               Command = 0x02
	CmdSetCoinInhibits           Command = 0x40
	CmdSetRoute                  Command = 0x3B
	CmdPayout                    Command = 0x33
	CmdFloat                     Command = 0x3A
	CmdEmpty                     Command = 0x3F
	CmdSmartEmpty                Command = 0x52
	CmdSetDenominationLevel      Command = 0x34
	CmdSetCashboxPayoutLimit     Command = 0x3D
	CmdGetAllLevels              Command = 0x22
	CmdCashboxPayoutOperationData Command = 0x53
	CmdLastRejectNote            Command = 0x17
	CmdGetFirmwareVersion        Command = 0x20
	CmdGetDatasetVersion         Command = 0x21
	CmdConfigureBezel            Command = 0x54
	CmdSetRefillMode             Command = 0x30
	CmdChannelSecurity           Command = 0x0F
	CmdRunCalibration            Command = 0x16
	CmdKeyExchange               Command = 0x4C
)

// EncodeKeyExchange builds the payload for the one-shot key negotiation
// command: the host's 32-byte Diffie-Hellman-style public value (spec
// §4.2 "Key negotiation").
func EncodeKeyExchange(hostPublic [32]byte) []byte {
	out := make([]byte, 32)
	copy(out, hostPublic[:])
	return out
}

// DecodeKeyExchange extracts the device's 32-byte public value from a
// key-exchange response.
func DecodeKeyExchange(payload []byte) ([32]byte, error) {
	var pub [32]byte
	if len(payload) < 32 {
		return pub, fmt.Errorf("ssp: key exchange response too short")
	}
	copy(pub[:], payload[:32])
	return pub, nil
}

// Payout/float option bytes, specified bit-exact by the vendor protocol
// (spec §4.3): "round-trip unchanged."
const (
	OptionTest byte = 0x19
	OptionDo   byte = 0x58
)

// Route is the destination for set_route / setup-time routing.
type Route byte

const (
	RouteCashbox Route = 0x00
	RouteStorage Route = 0x01
)

// Currency is a fixed 3-byte ASCII code, e.g. "EUR".
type Currency [3]byte

func NewCurrency(code string) (Currency, error) {
	var c Currency
	if len(code) != 3 {
		return c, fmt.Errorf("ssp: currency code %q is not 3 characters", code)
	}
	copy(c[:], code)
	return c, nil
}

func (c Currency) String() string { return string(c[:]) }

// --- sync / host_protocol / setup_request / enable / disable -----------

// EncodeSync builds the payload for the sync command (empty body).
func EncodeSync() []byte { return nil }

// EncodeHostProtocol builds the payload for host_protocol(version).
func EncodeHostProtocol(version byte) []byte { return []byte{version} }

// EncodeSetupRequest builds the payload for setup_request (empty body).
func EncodeSetupRequest() []byte { return nil }

// ChannelEntry is one row of a device's setup-table channel list.
type ChannelEntry struct {
	Channel   int
	FaceValue uint32
	Currency  Currency
}

// SetupResponse is the decoded setup_request reply (spec §3 configuration
// snapshot: "unit type, channel table").
type SetupResponse struct {
	UnitType byte
	Channels []ChannelEntry
}

// DecodeSetupResponse decodes a setup_request response. The exact vendor
// layout is {unit_type byte, channel_count byte, channel_count x u32-le
// face value, currency_count byte, currency_count x {3-char cc}} for the
// validator shape; the minimal shape we rely on here pairs one currency
// per channel, which covers both device families this repo talks to.
func DecodeSetupResponse(payload []byte) (*SetupResponse, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("ssp: setup_request response too short")
	}
	resp := &SetupResponse{UnitType: payload[0]}
	count := int(payload[1])
	offset := 2
	values := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		if offset+4 > len(payload) {
			return nil, fmt.Errorf("ssp: setup_request response truncated in channel values")
		}
		values = append(values, binary.LittleEndian.Uint32(payload[offset:offset+4]))
		offset += 4
	}
	if offset >= len(payload) {
		return nil, fmt.Errorf("ssp: setup_request response missing currency count")
	}
	ccCount := int(payload[offset])
	offset++
	currencies := make([]Currency, 0, ccCount)
	for i := 0; i < ccCount; i++ {
		if offset+3 > len(payload) {
			return nil, fmt.Errorf("ssp: setup_request response truncated in currency codes")
		}
		var cc Currency
		copy(cc[:], payload[offset:offset+3])
		currencies = append(currencies, cc)
		offset += 3
	}
	for i, v := range values {
		entry := ChannelEntry{Channel: i + 1, FaceValue: v}
		if i < len(currencies) {
			entry.Currency = currencies[i]
		} else if len(currencies) > 0 {
			entry.Currency = currencies[0]
		}
		resp.Channels = append(resp.Channels, entry)
	}
	return resp, nil
}

// EncodeEnable builds the payload for enable (empty body).
func EncodeEnable() []byte { return nil }

// EncodeDisable builds the payload for disable (empty body).
func EncodeDisable() []byte { return nil }

// EncodeEnablePayout builds the payload for enable_payout(unit_type).
func EncodeEnablePayout(unitType byte) []byte { return []byte{unitType} }

// --- inhibits / routing --------------------------------------------------

// EncodeSetInhibits builds the payload for set_inhibits(low, high).
func EncodeSetInhibits(low, high byte) []byte { return []byte{low, high} }

// EncodeSetCoinInhibits builds the payload for
// set_coin_inhibits(value, cc, state).
func EncodeSetCoinInhibits(value uint16, cc Currency, state byte) []byte {
	out := make([]byte, 0, 6)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], value)
	out = append(out, v[:]...)
	out = append(out, cc[:]...)
	out = append(out, state)
	return out
}

// EncodeSetRoute builds the payload for set_route(amount, cc, route).
func EncodeSetRoute(amount uint32, cc Currency, route Route) []byte {
	out := make([]byte, 0, 8)
	var a [4]byte
	binary.LittleEndian.PutUint32(a[:], amount)
	out = append(out, a[:]...)
	out = append(out, cc[:]...)
	out = append(out, byte(route))
	return out
}

// --- payout / float --------------------------------------------------

// EncodePayout builds the payload for payout(amount, cc, option).
func EncodePayout(amount uint32, cc Currency, option byte) []byte {
	out := make([]byte, 0, 8)
	var a [4]byte
	binary.LittleEndian.PutUint32(a[:], amount)
	out = append(out, a[:]...)
	out = append(out, cc[:]...)
	out = append(out, option)
	return out
}

// EncodeFloat builds the payload for float(min, keep_amount, cc, option).
// The vendor default minimum is 100 (spec §4.3: "min=100").
func EncodeFloat(minAmount uint16, keepAmount uint32, cc Currency, option byte) []byte {
	out := make([]byte, 0, 10)
	var m [2]byte
	binary.LittleEndian.PutUint16(m[:], minAmount)
	out = append(out, m[:]...)
	var k [4]byte
	binary.LittleEndian.PutUint32(k[:], keepAmount)
	out = append(out, k[:]...)
	out = append(out, cc[:]...)
	out = append(out, option)
	return out
}

// --- empty / smart_empty / denomination levels -------------------------

// EncodeEmpty builds the payload for empty (empty body).
func EncodeEmpty() []byte { return nil }

// EncodeSmartEmpty builds the payload for smart_empty (empty body).
func EncodeSmartEmpty() []byte { return nil }

// EncodeSetDenominationLevel builds the payload for
// set_denomination_level(level, amount, cc).
func EncodeSetDenominationLevel(level uint16, amount uint32, cc Currency) []byte {
	out := make([]byte, 0, 9)
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], level)
	out = append(out, l[:]...)
	var a [4]byte
	binary.LittleEndian.PutUint32(a[:], amount)
	out = append(out, a[:]...)
	out = append(out, cc[:]...)
	return out
}

// EncodeSetCashboxPayoutLimit builds the payload for
// set_cashbox_payout_limit(count=1, limit, denom, cc). Per the open
// question recorded in DESIGN.md, the wire order is fixed as
// { count, u16 limit, u32 denomination, cc } regardless of the JSON
// field names the caller used to reach this function.
func EncodeSetCashboxPayoutLimit(limit uint16, denomination uint32, cc Currency) []byte {
	out := make([]byte, 0, 10)
	out = append(out, 0x01)
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], limit)
	out = append(out, l[:]...)
	var d [4]byte
	binary.LittleEndian.PutUint32(d[:], denomination)
	out = append(out, d[:]...)
	out = append(out, cc[:]...)
	return out
}

// LevelEntry is one counted denomination in a get_all_levels /
// cashbox_payout_operation_data response.
type LevelEntry struct {
	Level    uint16
	Value    uint32
	Currency Currency
}

// EncodeGetAllLevels builds the payload for get_all_levels (empty body).
func EncodeGetAllLevels() []byte { return nil }

// DecodeLevels decodes the count + count x {u16, u32, 3-char} shape shared
// by get_all_levels and cashbox_payout_operation_data.
func DecodeLevels(payload []byte) ([]LevelEntry, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("ssp: levels response missing count")
	}
	count := int(payload[0])
	offset := 1
	entries := make([]LevelEntry, 0, count)
	for i := 0; i < count; i++ {
		if offset+9 > len(payload) {
			return nil, fmt.Errorf("ssp: levels response truncated at entry %d", i)
		}
		e := LevelEntry{
			Level: binary.LittleEndian.Uint16(payload[offset : offset+2]),
			Value: binary.LittleEndian.Uint32(payload[offset+2 : offset+6]),
		}
		copy(e.Currency[:], payload[offset+6:offset+9])
		entries = append(entries, e)
		offset += 9
	}
	return entries, nil
}

// EncodeCashboxPayoutOperationData builds the payload for
// cashbox_payout_operation_data (empty body).
func EncodeCashboxPayoutOperationData() []byte { return nil }

// DecodeCashboxPayoutOperationData decodes the levels list plus the
// trailing u24 unknown-coin count (spec §4.3: "same as above plus trailing
// u24 unknown-coin count").
func DecodeCashboxPayoutOperationData(payload []byte) ([]LevelEntry, uint32, error) {
	levels, err := DecodeLevels(payload)
	if err != nil {
		return nil, 0, err
	}
	count := int(payload[0])
	offset := 1 + count*9
	if offset+3 > len(payload) {
		return nil, 0, fmt.Errorf("ssp: cashbox_payout_operation_data response missing unknown-coin count")
	}
	unknown := uint32(payload[offset]) | uint32(payload[offset+1])<<8 | uint32(payload[offset+2])<<16
	return levels, unknown, nil
}

// --- last_reject_note / firmware / dataset / bezel / refill / security --

// EncodeLastRejectNote builds the payload for last_reject_note (empty body).
func EncodeLastRejectNote() []byte { return nil }

// DecodeLastRejectNote decodes the single reason byte.
func DecodeLastRejectNote(payload []byte) (LastRejectReason, error) {
	if len(payload) < 1 {
		return 0, fmt.Errorf("ssp: last_reject_note response missing reason byte")
	}
	return LastRejectReason(payload[0]), nil
}

// EncodeGetFirmwareVersion builds the payload (empty body).
func EncodeGetFirmwareVersion() []byte { return nil }

// DecodeASCIIVersion trims trailing NUL/space padding from a fixed-width
// ASCII version field (used for both firmware and dataset versions).
func DecodeASCIIVersion(payload []byte) string {
	end := len(payload)
	for end > 0 && (payload[end-1] == 0x00 || payload[end-1] == ' ') {
		end--
	}
	return string(payload[:end])
}

// EncodeGetDatasetVersion builds the payload (empty body).
func EncodeGetDatasetVersion() []byte { return nil }

// BezelVolatility and BezelType are vendor-specified constants for
// configure_bezel; both are round-tripped unchanged (spec §4.3).
type BezelVolatility byte
type BezelType byte

const (
	BezelVolatile    BezelVolatility = 0x00
	BezelNonVolatile BezelVolatility = 0x01
)

const (
	BezelTypeSolid  BezelType = 0x00
	BezelTypePulse  BezelType = 0x01
)

// EncodeConfigureBezel builds the payload for
// configure_bezel(r,g,b,volatility,type).
func EncodeConfigureBezel(r, g, b byte, volatility BezelVolatility, kind BezelType) []byte {
	return []byte{r, g, b, byte(volatility), byte(kind)}
}

// refillModeMagic is the fixed 8-byte vendor magic for set_refill_mode
// (spec §4.3: "fixed 8-byte vendor magic").
var refillModeMagic = [8]byte{0x05, 0x81, 0x10, 0x11, 0x01, 0x01, 0x01, 0x00}

// EncodeSetRefillMode builds the payload for set_refill_mode.
func EncodeSetRefillMode() []byte {
	out := make([]byte, len(refillModeMagic))
	copy(out, refillModeMagic[:])
	return out
}

// EncodeChannelSecurity builds the payload for channel_security, a
// diagnostic command with no reply body (empty request body).
func EncodeChannelSecurity() []byte { return nil }

// EncodeRunCalibration builds the payload for the synchronous
// run-calibration command issued when a poll event reports
// CALIBRATION_FAIL with sub-code COMMAND_RECAL (spec §4.6).
func EncodeRunCalibration() []byte { return nil }

// --- poll -----------------------------------------------------------

// PollEvent is one device-originated asynchronous notification (spec §3
// Poll Event). internal/pollevents converts this wire-shaped struct into
// the published JSON document.
type PollEvent struct {
	Opcode   byte
	Data1    uint32
	Data2    uint32
	Currency Currency
}

// pollEventSize is the fixed per-event wire size: opcode + two u32 data
// fields + 3-byte currency.
const pollEventSize = 1 + 4 + 4 + 3

// EncodePoll builds the payload for poll (empty body).
func EncodePoll() []byte { return nil }

// DecodePollEvents decodes a poll response into its ordered list of events
// (spec §3: "A poll response carries an ordered list of such events and
// must be consumed in order").
func DecodePollEvents(payload []byte) ([]PollEvent, error) {
	if len(payload)%pollEventSize != 0 {
		return nil, fmt.Errorf("ssp: poll response length %d not a multiple of %d", len(payload), pollEventSize)
	}
	events := make([]PollEvent, 0, len(payload)/pollEventSize)
	for offset := 0; offset < len(payload); offset += pollEventSize {
		e := PollEvent{
			Opcode: payload[offset],
			Data1:  binary.LittleEndian.Uint32(payload[offset+1 : offset+5]),
			Data2:  binary.LittleEndian.Uint32(payload[offset+5 : offset+9]),
		}
		copy(e.Currency[:], payload[offset+9:offset+12])
		events = append(events, e)
	}
	return events, nil
}
