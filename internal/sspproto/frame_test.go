package sspproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	wire, err := EncodeFrame(0x02, 1, payload)
	require.NoError(t, err)
	assert.Equal(t, byte(stx), wire[0])

	decoded, err := DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), decoded.Addr)
	assert.Equal(t, byte(1), decoded.Seq)
	assert.Equal(t, payload, decoded.Payload)
}

func TestEncodeFrameByteStuffing(t *testing.T) {
	// A payload containing a literal STX byte must come back unstuffed and
	// identical to what went in.
	payload := []byte{stx, 0x00, stx, stx}
	wire, err := EncodeFrame(0x00, 0, payload)
	require.NoError(t, err)

	// Every STX in the body (not the leading delimiter) must be doubled.
	stuffedCount := 0
	for _, b := range wire[1:] {
		if b == stx {
			stuffedCount++
		}
	}
	assert.Equal(t, 6, stuffedCount) // 3 literal STX bytes, each doubled

	decoded, err := DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded.Payload)
}

func TestDecodeFrameRejectsBadChecksum(t *testing.T) {
	wire, err := EncodeFrame(0x01, 0, []byte{0xAA})
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF // corrupt CRC hi byte
	_, err = DecodeFrame(wire)
	assert.ErrorIs(t, err, ErrChecksumError)
}

func TestDecodeFrameRequiresSTX(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestEncodeFrameRejectsOversizedAddress(t *testing.T) {
	_, err := EncodeFrame(0x80, 0, nil)
	assert.Error(t, err)
}
