// Package pollevents maps SSP poll-event opcodes to the JSON documents
// published on a device's event topic (spec §4.6 Poll Event Translation).
package pollevents

import (
	"fmt"

	"github.com/ocx/ssp-bridge/internal/device"
)

// Opcode identifies one poll-event kind (spec §3 Poll Event).
type Opcode byte

const (
	OpReset              Opcode = 0xF1
	OpRead               Opcode = 0xEF
	OpCredit             Opcode = 0xEE
	OpDispensing         Opcode = 0xDA
	OpDispensed          Opcode = 0xD2
	OpCoinCredit         Opcode = 0xEC
	OpFloating           Opcode = 0xD4
	OpFloated            Opcode = 0xD5
	OpCashboxPaid        Opcode = 0xD6
	OpEmpty              Opcode = 0xE8
	OpEmptying           Opcode = 0xE7
	OpJammed             Opcode = 0xE9
	OpDisabled           Opcode = 0xE6
	OpSmartEmptying      Opcode = 0xD1
	OpSmartEmptied       Opcode = 0xD3
	OpIncompletePayout   Opcode = 0xDC
	OpIncompleteFloat    Opcode = 0xDD
	OpStacking           Opcode = 0xCC
	OpStored             Opcode = 0xCD
	OpStacked            Opcode = 0xCE
	OpRejecting          Opcode = 0xEB
	OpRejected           Opcode = 0xEA
	OpSafeJam            Opcode = 0xC9
	OpUnsafeJam          Opcode = 0xC8
	OpStackerFull        Opcode = 0xCA
	OpCashBoxRemoved     Opcode = 0xC7
	OpCashBoxReplaced    Opcode = 0xC6
	OpClearedFromFront   Opcode = 0xC5
	OpClearedIntoCashbox Opcode = 0xC4
	OpFraudAttempt       Opcode = 0xC3
	OpCalibrationFail    Opcode = 0xC2
)

// CalibrationSubError is the first data byte of a CALIBRATION_FAIL event.
type CalibrationSubError byte

const (
	SubNoError        CalibrationSubError = 0x00
	SubSensorFlap     CalibrationSubError = 0x01
	SubSensorExit     CalibrationSubError = 0x02
	SubSensorCoil1    CalibrationSubError = 0x03
	SubSensorCoil2    CalibrationSubError = 0x04
	SubNotInitialized CalibrationSubError = 0x05
	SubChecksumError  CalibrationSubError = 0x06
	SubCommandRecal   CalibrationSubError = 0xFF
)

var calibrationSubErrorWords = map[CalibrationSubError]string{
	SubNoError:        "no error",
	SubSensorFlap:     "sensor flap",
	SubSensorExit:     "sensor exit",
	SubSensorCoil1:    "sensor coil 1",
	SubSensorCoil2:    "sensor coil 2",
	SubNotInitialized: "not initialized",
	SubChecksumError:  "checksum error",
}

func (s CalibrationSubError) word() string {
	if w, ok := calibrationSubErrorWords[s]; ok {
		return w
	}
	return fmt.Sprintf("unrecognized(0x%02X)", byte(s))
}

// Event is one SSP poll event (spec §3 Poll Event).
type Event struct {
	Opcode   Opcode
	Data1    uint32
	Data2    uint32
	Currency string
}

// Document is the JSON document to publish for one event, plus whether the
// caller must also internally rerun HOST_PROTOCOL(6) (RESET) or
// synchronously issue run-calibration (CALIBRATION_FAIL/COMMAND_RECAL).
type Document struct {
	JSON                   map[string]any
	RequiresProtocolResync bool
	RequiresCalibrationRun bool
}

// Translate maps one poll event to its JSON document, branching on device
// kind where the vendor table diverges (spec §4.6).
func Translate(kind device.Kind, ev Event, faceValue func(channel int) uint32) Document {
	switch ev.Opcode {
	case OpReset:
		return Document{JSON: evt("unit reset"), RequiresProtocolResync: true}

	case OpRead:
		if ev.Data1 == 0 {
			return Document{JSON: evt("reading")}
		}
		doc := evt("read")
		doc["channel"] = ev.Data1
		if kind == device.KindValidator {
			doc["amount"] = faceValue(int(ev.Data1)) * 100
		}
		return Document{JSON: doc}

	case OpCredit:
		doc := evt("credit")
		doc["channel"] = ev.Data1
		if kind == device.KindValidator {
			doc["amount"] = faceValue(int(ev.Data1)) * 100
		} else {
			doc["cc"] = ev.Currency
		}
		return Document{JSON: doc}

	case OpDispensing, OpDispensed:
		if kind != device.KindHopper {
			return unknown(ev)
		}
		doc := evtWord(ev.Opcode)
		doc["amount"] = ev.Data1
		return Document{JSON: doc}

	case OpCoinCredit:
		if kind != device.KindHopper {
			return unknown(ev)
		}
		doc := evt("coin credit")
		doc["amount"] = ev.Data1
		doc["cc"] = ev.Currency
		return Document{JSON: doc}

	case OpFloating, OpFloated, OpCashboxPaid:
		if kind != device.KindHopper {
			return unknown(ev)
		}
		doc := evtWord(ev.Opcode)
		doc["amount"] = ev.Data1
		doc["cc"] = ev.Currency
		return Document{JSON: doc}

	case OpEmpty, OpEmptying, OpJammed, OpDisabled:
		return Document{JSON: evtWord(ev.Opcode)}

	case OpSmartEmptying, OpSmartEmptied:
		doc := evtWord(ev.Opcode)
		if kind == device.KindHopper {
			doc["amount"] = ev.Data1
			doc["cc"] = ev.Currency
		}
		return Document{JSON: doc}

	case OpIncompletePayout, OpIncompleteFloat:
		doc := evtWord(ev.Opcode)
		doc["dispensed"] = ev.Data1
		doc["requested"] = ev.Data2
		doc["cc"] = ev.Currency
		return Document{JSON: doc}

	case OpStacking, OpStored, OpStacked, OpRejecting, OpRejected,
		OpSafeJam, OpUnsafeJam, OpStackerFull,
		OpCashBoxRemoved, OpCashBoxReplaced, OpClearedFromFront, OpClearedIntoCashbox:
		if kind != device.KindValidator {
			return unknown(ev)
		}
		return Document{JSON: evtWord(ev.Opcode)}

	case OpFraudAttempt:
		if kind == device.KindHopper {
			return Document{JSON: evt("fraud attempt")}
		}
		doc := evt("fraud attempt")
		doc["dispensed"] = ev.Data1
		return Document{JSON: doc}

	case OpCalibrationFail:
		sub := CalibrationSubError(ev.Data1)
		if sub == SubCommandRecal {
			return Document{JSON: evt("recalibrating"), RequiresCalibrationRun: true}
		}
		doc := evt("calibration fail")
		doc["error"] = sub.word()
		return Document{JSON: doc}

	default:
		return unknown(ev)
	}
}

func evt(word string) map[string]any {
	return map[string]any{"event": word}
}

func unknown(ev Event) Document {
	doc := map[string]any{"event": "unknown", "id": fmt.Sprintf("0x%02X", byte(ev.Opcode))}
	return Document{JSON: doc}
}

var opcodeWords = map[Opcode]string{
	OpDispensing:         "dispensing",
	OpDispensed:          "dispensed",
	OpFloating:           "floating",
	OpFloated:            "floated",
	OpCashboxPaid:        "cashbox paid",
	OpEmpty:              "empty",
	OpEmptying:           "emptying",
	OpJammed:             "jammed",
	OpDisabled:           "disabled",
	OpSmartEmptying:      "smart emptying",
	OpSmartEmptied:       "smart emptied",
	OpIncompletePayout:   "incomplete payout",
	OpIncompleteFloat:    "incomplete float",
	OpStacking:           "stacking",
	OpStored:             "stored",
	OpStacked:            "stacked",
	OpRejecting:          "rejecting",
	OpRejected:           "rejected",
	OpSafeJam:            "safe jam",
	OpUnsafeJam:          "unsafe jam",
	OpStackerFull:        "stacker full",
	OpCashBoxRemoved:     "cash box removed",
	OpCashBoxReplaced:    "cash box replaced",
	OpClearedFromFront:   "cleared from front",
	OpClearedIntoCashbox: "cleared into cashbox",
}

func evtWord(op Opcode) map[string]any {
	word, ok := opcodeWords[op]
	if !ok {
		word = fmt.Sprintf("unknown(0x%02X)", byte(op))
	}
	return evt(word)
}
