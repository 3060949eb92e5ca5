package daemon

import (
	"context"
	"encoding/json"

	"github.com/ocx/ssp-bridge/internal/bus"
	"github.com/ocx/ssp-bridge/internal/device"
	"github.com/ocx/ssp-bridge/internal/sspproto"
)

func (d *Daemon) handleInbound(ctx context.Context, msg inboundMessage) {
	dev, responseTopic := d.deviceFor(msg.topic)
	if dev == nil {
		d.Logger.Error("inbound message on unrecognized topic", "topic", msg.topic)
		return
	}

	var req map[string]any
	if err := json.Unmarshal(msg.payload, &req); err != nil {
		// No correlId is available for unparseable JSON (spec §7).
		d.publishResponse(ctx, responseTopic, bus.ParseError(err.Error(), 1))
		return
	}

	msgID, ok := stringField(req, "msgId")
	if !ok {
		d.publishResponse(ctx, responseTopic, bus.Error("", "Property 'msgId' missing or of wrong type"))
		return
	}
	cmd, ok := stringField(req, "cmd")
	if !ok {
		d.publishResponse(ctx, responseTopic, bus.Error(msgID, "Property 'cmd' missing or of wrong type"))
		return
	}

	d.publishResponse(ctx, responseTopic, d.dispatch(ctx, dev, cmd, msgID, req))
}

// dispatch implements the command table in spec §4.7.
func (d *Daemon) dispatch(ctx context.Context, dev *device.Device, cmd, msgID string, req map[string]any) bus.Value {
	// Testable property 7: when unavailable, no command but test/quit
	// writes a serial byte.
	if cmd != "test" && cmd != "quit" && !dev.Available() {
		return bus.Error(msgID, "hardware unavailable")
	}

	switch cmd {
	case "test":
		return bus.OK(msgID)
	case "quit":
		d.requestShutdown()
		return bus.OK(msgID)
	case "configure-bezel":
		return d.handleConfigureBezel(ctx, dev, msgID, req)
	case "empty":
		return d.runSimple(ctx, dev, msgID, sspproto.CmdEmpty, sspproto.EncodeEmpty())
	case "smart-empty":
		return d.runSimple(ctx, dev, msgID, sspproto.CmdSmartEmpty, sspproto.EncodeSmartEmpty())
	case "enable":
		return d.runSimple(ctx, dev, msgID, sspproto.CmdEnable, sspproto.EncodeEnable())
	case "disable":
		return d.runSimple(ctx, dev, msgID, sspproto.CmdDisable, sspproto.EncodeDisable())
	case "enable-channels":
		return d.handleChannelSet(ctx, dev, msgID, req, dev.EnableChannels)
	case "disable-channels":
		return d.handleChannelSet(ctx, dev, msgID, req, dev.DisableChannels)
	case "inhibit-channels":
		return d.handleChannelSet(ctx, dev, msgID, req, dev.InhibitChannels)
	case "set-denomination-level":
		return d.handleSetDenominationLevel(ctx, dev, msgID, req)
	case "set-cashbox-payout-limit":
		return d.handleSetCashboxPayoutLimit(ctx, dev, msgID, req)
	case "get-all-levels":
		return d.handleGetAllLevels(ctx, dev, msgID)
	case "cashbox-payout-operation-data":
		return d.handleCashboxPayoutOperationData(ctx, dev, msgID)
	case "get-firmware-version":
		return d.handleVersion(ctx, dev, msgID, sspproto.CmdGetFirmwareVersion, sspproto.EncodeGetFirmwareVersion())
	case "get-dataset-version":
		return d.handleVersion(ctx, dev, msgID, sspproto.CmdGetDatasetVersion, sspproto.EncodeGetDatasetVersion())
	case "last-reject-note":
		return d.handleLastRejectNote(ctx, dev, msgID)
	case "test-payout":
		return d.handlePayout(ctx, dev, msgID, req, sspproto.OptionTest)
	case "do-payout":
		return d.handlePayout(ctx, dev, msgID, req, sspproto.OptionDo)
	case "test-float":
		return d.handleFloat(ctx, dev, msgID, req, sspproto.OptionTest)
	case "do-float":
		return d.handleFloat(ctx, dev, msgID, req, sspproto.OptionDo)
	case "channel-security-data":
		return d.runSimple(ctx, dev, msgID, sspproto.CmdChannelSecurity, sspproto.EncodeChannelSecurity())
	default:
		return bus.Response(msgID, bus.Value{"error": "unknown command", "cmd": cmd})
	}
}

func intField(req map[string]any, key string) (int, bool) {
	v, ok := req[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func stringField(req map[string]any, key string) (string, bool) {
	v, ok := req[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d *Daemon) runSimple(ctx context.Context, dev *device.Device, msgID string, cmd sspproto.Command, payload []byte) bus.Value {
	_, _, err := dev.Session().Do(ctx, d.Negotiator, cmd, payload)
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.OK(msgID)
}

// handleConfigureBezel validates every field before encoding, so an
// invalid or missing r/g/b/type never reaches the transport (spec §8
// property 6).
func (d *Daemon) handleConfigureBezel(ctx context.Context, dev *device.Device, msgID string, req map[string]any) bus.Value {
	r, ok := intField(req, "r")
	if !ok {
		return bus.Error(msgID, "Property 'r' missing or of wrong type")
	}
	g, ok := intField(req, "g")
	if !ok {
		return bus.Error(msgID, "Property 'g' missing or of wrong type")
	}
	b, ok := intField(req, "b")
	if !ok {
		return bus.Error(msgID, "Property 'b' missing or of wrong type")
	}
	kind, ok := intField(req, "type")
	if !ok {
		return bus.Error(msgID, "Property 'type' missing or of wrong type")
	}
	payload := sspproto.EncodeConfigureBezel(byte(r), byte(g), byte(b), sspproto.BezelNonVolatile, sspproto.BezelType(kind))
	return d.runSimple(ctx, dev, msgID, sspproto.CmdConfigureBezel, payload)
}

func (d *Daemon) handleChannelSet(ctx context.Context, dev *device.Device, msgID string, req map[string]any, apply func(context.Context, sspproto.KeyNegotiator, string) error) bus.Value {
	channels, ok := stringField(req, "channels")
	if !ok {
		return bus.Error(msgID, "Property 'channels' missing or of wrong type")
	}
	if err := apply(ctx, d.Negotiator, channels); err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.OK(msgID)
}

// handleSetDenominationLevel preserves the vendor double-issue quirk (spec
// §9): when level>0, first clear with level=0, then add the requested
// level, since the command is additive except at level=0.
func (d *Daemon) handleSetDenominationLevel(ctx context.Context, dev *device.Device, msgID string, req map[string]any) bus.Value {
	level, ok := intField(req, "level")
	if !ok {
		return bus.Error(msgID, "Property 'level' missing or of wrong type")
	}
	amount, ok := intField(req, "amount")
	if !ok {
		return bus.Error(msgID, "Property 'amount' missing or of wrong type")
	}

	if level > 0 {
		if _, _, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdSetDenominationLevel, sspproto.EncodeSetDenominationLevel(0, uint32(amount), eurCurrency)); err != nil {
			return bus.SSPError(msgID, err.Error())
		}
	}
	if _, _, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdSetDenominationLevel, sspproto.EncodeSetDenominationLevel(uint16(level), uint32(amount), eurCurrency)); err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.OK(msgID)
}

// handleSetCashboxPayoutLimit preserves the JSON/wire field swap recorded
// as an open question in spec §9: JSON level maps to wire limit, JSON
// amount maps to wire denomination.
func (d *Daemon) handleSetCashboxPayoutLimit(ctx context.Context, dev *device.Device, msgID string, req map[string]any) bus.Value {
	level, ok := intField(req, "level")
	if !ok {
		return bus.Error(msgID, "Property 'level' missing or of wrong type")
	}
	amount, ok := intField(req, "amount")
	if !ok {
		return bus.Error(msgID, "Property 'amount' missing or of wrong type")
	}
	payload := sspproto.EncodeSetCashboxPayoutLimit(uint16(level), uint32(amount), eurCurrency)
	return d.runSimple(ctx, dev, msgID, sspproto.CmdSetCashboxPayoutLimit, payload)
}

func levelsToJSON(levels []sspproto.LevelEntry) []map[string]any {
	out := make([]map[string]any, 0, len(levels))
	for _, l := range levels {
		out = append(out, map[string]any{"level": l.Level, "value": l.Value, "cc": l.Currency.String()})
	}
	return out
}

func (d *Daemon) handleGetAllLevels(ctx context.Context, dev *device.Device, msgID string) bus.Value {
	_, payload, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdGetAllLevels, sspproto.EncodeGetAllLevels())
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	levels, err := sspproto.DecodeLevels(payload)
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.Response(msgID, bus.Value{"levels": levelsToJSON(levels)})
}

// handleCashboxPayoutOperationData always appends one trailing
// unknown-coin object, even when zero counters are present (spec §8
// property 11).
func (d *Daemon) handleCashboxPayoutOperationData(ctx context.Context, dev *device.Device, msgID string) bus.Value {
	_, payload, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdCashboxPayoutOperationData, sspproto.EncodeCashboxPayoutOperationData())
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	levels, unknown, err := sspproto.DecodeCashboxPayoutOperationData(payload)
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	out := levelsToJSON(levels)
	out = append(out, map[string]any{"value": 0, "level": unknown})
	return bus.Response(msgID, bus.Value{"levels": out})
}

func (d *Daemon) handleVersion(ctx context.Context, dev *device.Device, msgID string, cmd sspproto.Command, payload []byte) bus.Value {
	_, resp, err := dev.Session().Do(ctx, d.Negotiator, cmd, payload)
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.Response(msgID, bus.Value{"version": sspproto.DecodeASCIIVersion(resp)})
}

func (d *Daemon) handleLastRejectNote(ctx context.Context, dev *device.Device, msgID string) bus.Value {
	_, payload, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdLastRejectNote, sspproto.EncodeLastRejectNote())
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	reason, err := sspproto.DecodeLastRejectNote(payload)
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.Response(msgID, bus.Value{"reason": reason.Phrase(), "code": byte(reason)})
}

func (d *Daemon) handlePayout(ctx context.Context, dev *device.Device, msgID string, req map[string]any, option byte) bus.Value {
	amount, ok := intField(req, "amount")
	if !ok {
		return bus.Error(msgID, "Property 'amount' missing or of wrong type")
	}
	status, resp, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdPayout, sspproto.EncodePayout(uint32(amount), eurCurrency, option))
	// COMMAND_NOT_PROCESSED carries a sub-error byte and is reported as a
	// command-specific error, not a generic sspError; check it ahead of err,
	// since Session.Do wraps every non-OK status (including this one) in a
	// non-nil error.
	if status == sspproto.StatusCommandNotProcessed {
		return bus.Error(msgID, payoutSubErrorPhrase(resp))
	}
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.OK(msgID)
}

// handleFloat uses the vendor default minimum of 100 (spec §4.3).
func (d *Daemon) handleFloat(ctx context.Context, dev *device.Device, msgID string, req map[string]any, option byte) bus.Value {
	amount, ok := intField(req, "amount")
	if !ok {
		return bus.Error(msgID, "Property 'amount' missing or of wrong type")
	}
	status, resp, err := dev.Session().Do(ctx, d.Negotiator, sspproto.CmdFloat, sspproto.EncodeFloat(100, uint32(amount), eurCurrency, option))
	if status == sspproto.StatusCommandNotProcessed {
		return bus.Error(msgID, payoutSubErrorPhrase(resp))
	}
	if err != nil {
		return bus.SSPError(msgID, err.Error())
	}
	return bus.OK(msgID)
}

func payoutSubErrorPhrase(resp []byte) string {
	var sub sspproto.PayoutSubError
	if len(resp) > 0 {
		sub = sspproto.PayoutSubError(resp[0])
	}
	return sub.Phrase()
}
