package sspproto

import "fmt"

// Status is the response envelope status byte (spec §3, Response Envelope).
type Status byte

const (
	StatusOK                 Status = 0xF0
	StatusUnknownCommand     Status = 0xF2
	StatusIncorrectParameters Status = 0xF3
	StatusInvalidParameter   Status = 0xF4
	StatusCommandNotProcessed Status = 0xF5
	StatusSoftwareError      Status = 0xF6
	StatusChecksumError      Status = 0xF7
	StatusFailure            Status = 0xF8
	StatusHeaderFailure      Status = 0xF9
	StatusKeyNotSet          Status = 0xFA
	// StatusTimeout is synthesized locally by the framing layer when the
	// retry budget is exhausted; it never appears on the wire.
	StatusTimeout Status = 0x00
)

var statusNames = map[Status]string{
	StatusOK:                  "OK",
	StatusUnknownCommand:      "UNKNOWN_COMMAND",
	StatusIncorrectParameters: "INCORRECT_PARAMETERS",
	StatusInvalidParameter:    "INVALID_PARAMETER",
	StatusCommandNotProcessed: "COMMAND_NOT_PROCESSED",
	StatusSoftwareError:       "SOFTWARE_ERROR",
	StatusChecksumError:       "CHECKSUM_ERROR",
	StatusFailure:             "FAILURE",
	StatusHeaderFailure:       "HEADER_FAILURE",
	StatusKeyNotSet:           "KEY_NOT_SET",
	StatusTimeout:             "TIMEOUT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(s))
}

// IsOK reports whether the status is the success status.
func (s Status) IsOK() bool { return s == StatusOK }

// AsError converts a non-OK status into a *StatusError, or nil if s is OK.
func (s Status) AsError() error {
	if s.IsOK() {
		return nil
	}
	return &StatusError{Status: s}
}

// PayoutSubError is the first payload byte of a COMMAND_NOT_PROCESSED
// response to payout/float (spec §3 Response Envelope invariant).
type PayoutSubError byte

const (
	SubErrorNotEnoughValue  PayoutSubError = 0x01
	SubErrorCannotPayExact  PayoutSubError = 0x02
	SubErrorBusy            PayoutSubError = 0x03
	SubErrorDisabled        PayoutSubError = 0x04
)

var payoutSubErrorPhrases = map[PayoutSubError]string{
	SubErrorNotEnoughValue: "not enough value in device",
	SubErrorCannotPayExact: "can't pay exact amount",
	SubErrorBusy:           "device busy",
	SubErrorDisabled:       "device disabled",
}

// Phrase returns the human-readable phrase for a payout/float sub-error,
// falling back to a generic description for codes outside the documented
// table (spec §3 only documents 0x01-0x04; vendor hardware may return
// others on firmware we haven't characterized).
func (e PayoutSubError) Phrase() string {
	if p, ok := payoutSubErrorPhrases[e]; ok {
		return p
	}
	return fmt.Sprintf("unrecognized sub-error 0x%02X", byte(e))
}

// LastRejectReason is the single payload byte returned by last_reject_note.
type LastRejectReason byte

// rejectReasonPhrases is the 0x00..0x1C vendor table referenced by spec §4.7.
var rejectReasonPhrases = map[LastRejectReason]string{
	0x00: "note accepted",
	0x01: "note length incorrect",
	0x02: "average fail",
	0x03: "coastline fail",
	0x04: "graph fail",
	0x05: "buried fail",
	0x06: "channel inhibited",
	0x07: "second note detected",
	0x08: "reject bar code",
	0x09: "rear sensor 2 fail",
	0x0A: "slot fail 1",
	0x0B: "slot fail 2",
	0x0C: "lens over-sample",
	0x0D: "width detect fail",
	0x0E: "short note detected",
	0x0F: "note payout",
	0x10: "unable to stack note",
	0x11: "note float removed",
	0x12: "note float attempt",
	0x13: "integrity fail",
	0x14: "unknown mode",
	0x15: "calibration fail",
	0x16: "unsafe jam",
	0x17: "safe jam",
	0x18: "unable to channel",
	0x19: "flash download fail",
	0x1A: "manual reject",
	0x1B: "cashbox removed during payout",
	0x1C: "cashbox replaced during payout",
}

// Phrase returns the reject-reason phrase, or a generic fallback for codes
// the vendor table doesn't cover.
func (r LastRejectReason) Phrase() string {
	if p, ok := rejectReasonPhrases[r]; ok {
		return p
	}
	return fmt.Sprintf("unrecognized reject reason 0x%02X", byte(r))
}
