package sspproto

import (
	"context"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport replays a fixed sequence of frames in response to
// writes, for exercising Session.Do without real hardware.
type scriptedTransport struct {
	written [][]byte
	replies [][]byte
	reads   int
	failN   int // number of ErrReadTimeout to return before replies
}

func (t *scriptedTransport) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	t.written = append(t.written, cp)
	return len(p), nil
}

func (t *scriptedTransport) Read(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	if t.failN > 0 {
		t.failN--
		return nil, ErrReadTimeout
	}
	if t.reads >= len(t.replies) {
		return nil, ErrReadTimeout
	}
	reply := t.replies[t.reads]
	t.reads++
	return reply, nil
}

func okReply(addr, seq byte, payload []byte) []byte {
	body := append([]byte{byte(StatusOK)}, payload...)
	wire, err := EncodeFrame(addr, seq, body)
	if err != nil {
		panic(err)
	}
	return wire
}

func statusReply(addr, seq byte, status Status) []byte {
	wire, err := EncodeFrame(addr, seq, []byte{byte(status)})
	if err != nil {
		panic(err)
	}
	return wire
}

func TestSessionDoSuccessTogglesSeqAndAdvancesEncryptCounter(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{okReply(0x02, 0, nil)}}
	session := NewSession(transport, 0x02, 1234)

	status, _, err := session.Do(context.Background(), nil, CmdSync, EncodeSync())
	require.NoError(t, err)
	assert.True(t, status.IsOK())
	assert.Equal(t, byte(1), session.seq)
	assert.Equal(t, uint32(1), session.encryptCounter)
}

func TestSessionDoRetriesOnReadTimeoutWithinBudget(t *testing.T) {
	transport := &scriptedTransport{
		failN:   2,
		replies: [][]byte{okReply(0x02, 0, nil)},
	}
	session := NewSession(transport, 0x02, 1234)

	status, _, err := session.Do(context.Background(), nil, CmdSync, EncodeSync())
	require.NoError(t, err)
	assert.True(t, status.IsOK())
	assert.Len(t, transport.written, 3) // two timed-out attempts, one success
}

func TestSessionDoExhaustsRetryBudget(t *testing.T) {
	transport := &scriptedTransport{failN: 10}
	session := NewSession(transport, 0x02, 1234)

	_, _, err := session.Do(context.Background(), nil, CmdSync, EncodeSync())
	assert.ErrorIs(t, err, ErrRetryBudgetExhausted)
	assert.Equal(t, byte(0), session.seq) // SEQ never advances on timeout
}

func TestSessionDoSurfacesNonOKStatus(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{statusReply(0x02, 0, StatusInvalidParameter)}}
	session := NewSession(transport, 0x02, 1234)

	status, _, err := session.Do(context.Background(), nil, CmdSetInhibits, EncodeSetInhibits(0xFF, 0xFF))
	assert.Equal(t, StatusInvalidParameter, status)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	// The device delivered a CRC-valid response, so SEQ must still advance:
	// the next distinct command must not reuse the bit this reply answered.
	assert.Equal(t, byte(1), session.seq)
}

type fakeNegotiator struct {
	called bool
}

func (f *fakeNegotiator) Negotiate(ctx context.Context, session *Session) error {
	f.called = true
	var key [16]byte
	copy(key[:], []byte("0123456789abcdef"))
	session.MarkEncrypted(key)
	return nil
}

func TestSessionDoRenegotiatesOnKeyNotSet(t *testing.T) {
	transport := &scriptedTransport{
		replies: [][]byte{
			statusReply(0x02, 0, StatusKeyNotSet),
			okReply(0x02, 0, nil),
		},
	}
	session := NewSession(transport, 0x02, 1234)
	negotiator := &fakeNegotiator{}

	status, _, err := session.Do(context.Background(), negotiator, CmdSync, EncodeSync())
	require.NoError(t, err)
	assert.True(t, negotiator.called)
	assert.True(t, status.IsOK())
}

func TestResetToFreshClearsEncryptionState(t *testing.T) {
	session := NewSession(&scriptedTransport{}, 0x02, 1234)
	session.MarkEncrypted([16]byte{1, 2, 3})
	session.seq = 1
	session.ResetToFresh()

	assert.Equal(t, StateFresh, session.State())
	assert.Equal(t, byte(0), session.seq)
	assert.False(t, session.encryptionEnabled)
}
