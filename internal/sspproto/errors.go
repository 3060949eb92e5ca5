package sspproto

import "errors"

// Sentinel errors for the internal error kinds named in spec §7. Callers
// use errors.Is against these rather than matching status bytes directly.
var (
	ErrReadTimeout          = errors.New("ssp: read timeout")
	ErrChecksumError        = errors.New("ssp: checksum error")
	ErrKeyNotSet            = errors.New("ssp: key not set")
	ErrHeaderFailure        = errors.New("ssp: header failure")
	ErrSoftwareError        = errors.New("ssp: software error")
	ErrUnknownCommand       = errors.New("ssp: unknown command")
	ErrIncorrectParameters  = errors.New("ssp: incorrect parameters")
	ErrInvalidParameter     = errors.New("ssp: invalid parameter")
	ErrCommandNotProcessed  = errors.New("ssp: command not processed")
	ErrFailure              = errors.New("ssp: failure")
	ErrRetryBudgetExhausted = errors.New("ssp: retry budget exhausted")
	ErrNotSetup             = errors.New("ssp: device not past setup-request (I1)")
	ErrNotCharacterDevice   = errors.New("ssp: not a character device")
	ErrDeviceNotFound       = errors.New("ssp: device not found")
	ErrOpenFailed           = errors.New("ssp: open failed")
)

// StatusError wraps a non-OK response status so callers that need the raw
// byte (to report an sspError phrase on the bus, per spec §7(e)) can reach
// it with errors.As, while everyone else can treat it as one of the
// sentinels above via errors.Is.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "ssp: status " + e.Status.String()
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case StatusChecksumError:
		return ErrChecksumError
	case StatusKeyNotSet:
		return ErrKeyNotSet
	case StatusHeaderFailure:
		return ErrHeaderFailure
	case StatusSoftwareError:
		return ErrSoftwareError
	case StatusUnknownCommand:
		return ErrUnknownCommand
	case StatusIncorrectParameters:
		return ErrIncorrectParameters
	case StatusInvalidParameter:
		return ErrInvalidParameter
	case StatusCommandNotProcessed:
		return ErrCommandNotProcessed
	case StatusFailure:
		return ErrFailure
	case StatusTimeout:
		return ErrReadTimeout
	default:
		return nil
	}
}
