package sspproto

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transport is the minimal contract the framing layer needs from the
// serial line (spec §4.1). internal/transport.Serial implements this.
type Transport interface {
	Write(p []byte) (int, error)
	Read(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error)
}

// SessionState is a device's position in the negotiation state machine
// (spec §4.2).
type SessionState int

const (
	StateFresh SessionState = iota
	StateSynced
	StateProtocol6
	StateSetupKnown
	StateEnabled
)

func (s SessionState) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StateSynced:
		return "Synced"
	case StateProtocol6:
		return "Protocol6"
	case StateSetupKnown:
		return "SetupKnown"
	case StateEnabled:
		return "Enabled"
	default:
		return "Unknown"
	}
}

// HostProtocolVersion is negotiated immediately after Sync (spec §4.2:
// "Synced→Protocol6 on successful HOST_PROTOCOL(0x06)").
const HostProtocolVersion = 0x06

// Exchange is one outbound command plus the policy for sending it (spec §3
// Command Envelope).
type Exchange struct {
	Addr        byte
	Command     Command
	Payload     []byte
	RetryBudget int
	Timeout     time.Duration
}

func defaultExchange(addr byte, cmd Command, payload []byte) Exchange {
	return Exchange{Addr: addr, Command: cmd, Payload: payload, RetryBudget: 3, Timeout: time.Second}
}

// Session tracks one device's framing-layer state: sequence bit, session
// key, and negotiation state (spec §4.2, §3 Device.session).
type Session struct {
	transport Transport

	Addr              byte
	PresharedKey      uint64
	state             SessionState
	seq               byte
	sessionKey        [16]byte
	encryptionEnabled bool
	encryptCounter    uint32
}

// NewSession creates a fresh (unsynced) session for one device address.
func NewSession(transport Transport, addr byte, presharedKey uint64) *Session {
	return &Session{transport: transport, Addr: addr, PresharedKey: presharedKey, state: StateFresh}
}

func (s *Session) State() SessionState { return s.state }

// ResetToFresh implements invariant I2: after an observed "unit reset"
// poll event, or a response of KEY_NOT_SET, the session must renegotiate
// from scratch before the next command.
func (s *Session) ResetToFresh() {
	s.state = StateFresh
	s.seq = 0
	s.encryptionEnabled = false
	s.encryptCounter = 0
}

// buildOutgoingFrame encodes payload as a plaintext or encrypted SSP
// frame, per whichever the session has negotiated.
func (s *Session) buildOutgoingFrame(payload []byte) ([]byte, error) {
	body := payload
	if s.encryptionEnabled {
		enc, err := EncodeEncryptedPayload(s.sessionKey, s.encryptCounter, payload)
		if err != nil {
			return nil, err
		}
		body = enc
	}
	return EncodeFrame(s.Addr, s.seq, body)
}

func (s *Session) parseIncomingFrame(wire []byte) (Status, []byte, error) {
	decoded, err := DecodeFrame(wire)
	if err != nil {
		return 0, nil, err
	}
	payload := decoded.Payload
	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("ssp: response frame has no status byte")
	}
	status := Status(payload[0])
	rest := payload[1:]
	if s.encryptionEnabled && len(rest) > 0 {
		_, inner, derr := DecodeEncryptedPayload(s.sessionKey, rest)
		if derr != nil {
			return status, nil, derr
		}
		rest = inner
	}
	return status, rest, nil
}

// Do runs one command through the full retry/negotiation policy described
// in spec §4.2 and §7, and returns the device's response payload.
//
// KEY_NOT_SET triggers one automatic renegotiation and retry (spec §7);
// CHECKSUM_ERROR and timeouts are retried, reusing the same SEQ bit, up to
// the exchange's retry budget (spec §4.2 Retry policy).
func (s *Session) Do(ctx context.Context, negotiator KeyNegotiator, cmd Command, payload []byte) (Status, []byte, error) {
	ex := defaultExchange(s.Addr, cmd, payload)
	status, resp, err := s.doWithBudget(ctx, ex)
	if err != nil && errors.Is(err, ErrKeyNotSet) {
		if negotiator == nil {
			return status, nil, err
		}
		if negErr := negotiator.Negotiate(ctx, s); negErr != nil {
			return status, nil, fmt.Errorf("ssp: key renegotiation after KEY_NOT_SET: %w", negErr)
		}
		status, resp, err = s.doWithBudget(ctx, ex)
	}
	return status, resp, err
}

// RawExchange sends one command without the KEY_NOT_SET renegotiation
// hook, for use by a KeyNegotiator implementation while it is itself in
// the middle of negotiating (it must not recurse back into Do).
func (s *Session) RawExchange(ctx context.Context, cmd Command, payload []byte) (Status, []byte, error) {
	return s.doWithBudget(ctx, defaultExchange(s.Addr, cmd, payload))
}

func (s *Session) doWithBudget(ctx context.Context, ex Exchange) (Status, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= ex.RetryBudget; attempt++ {
		wire, err := s.buildOutgoingFrame(ex.Payload)
		if err != nil {
			return 0, nil, err
		}
		if _, err := s.transport.Write(wire); err != nil {
			return 0, nil, fmt.Errorf("ssp: writing frame: %w", err)
		}
		reply, err := s.transport.Read(ctx, maxFramePayload*2, ex.Timeout)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			return 0, nil, err
		}
		status, respPayload, err := s.parseIncomingFrame(reply)
		if err != nil {
			if errors.Is(err, ErrChecksumError) {
				lastErr = err
				continue
			}
			return 0, nil, err
		}
		if status == StatusKeyNotSet {
			s.ResetToFresh()
			return status, respPayload, ErrKeyNotSet
		}
		// The device answered with a CRC-valid frame, OK or not, so it has
		// consumed this SEQ bit and will only re-send this same reply if
		// asked again with it. The next distinct command must use the
		// other bit, or the device replays this response instead of
		// executing it.
		s.seq ^= 1
		s.encryptCounter++
		if serr := status.AsError(); serr != nil && !errors.Is(serr, ErrKeyNotSet) {
			return status, respPayload, serr
		}
		return status, respPayload, nil
	}
	if lastErr == nil {
		lastErr = ErrRetryBudgetExhausted
	}
	return StatusTimeout, nil, fmt.Errorf("%w: %v", ErrRetryBudgetExhausted, lastErr)
}

// KeyNegotiator performs the one-shot DH-style key exchange for a session
// (spec §4.2 "Key negotiation"). internal/device wires this to
// GenerateKeyPair/DeriveSessionKey plus the device-specific wire commands
// that carry the public keys.
type KeyNegotiator interface {
	Negotiate(ctx context.Context, session *Session) error
}

// MarkEncrypted records that key negotiation succeeded and future frames
// for this session should be enveloped (spec §4.2: "once established the
// encryption-enabled flag is set").
func (s *Session) MarkEncrypted(key [16]byte) {
	s.sessionKey = key
	s.encryptionEnabled = true
	s.encryptCounter = 0
}

// Advance moves the session forward one state transition once the caller
// has confirmed the corresponding command succeeded (spec §4.2 state
// machine). It does not itself send any command.
func (s *Session) Advance(next SessionState) {
	s.state = next
}
