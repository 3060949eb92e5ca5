package sspproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEncryptedPayloadRoundTrip(t *testing.T) {
	var key [16]byte
	copy(key[:], []byte("0123456789abcdef"))

	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	wire, err := EncodeEncryptedPayload(key, 7, payload)
	require.NoError(t, err)
	assert.Equal(t, encMarker, wire[0])

	counter, got, err := DecodeEncryptedPayload(key, wire)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), counter)
	assert.Equal(t, payload, got)
}

func TestEncodeEncryptedPayloadVariesWithPadding(t *testing.T) {
	var key [16]byte
	copy(key[:], []byte("0123456789abcdef"))

	a, err := EncodeEncryptedPayload(key, 1, []byte{0xAA})
	require.NoError(t, err)
	b, err := EncodeEncryptedPayload(key, 1, []byte{0xAA})
	require.NoError(t, err)
	// Random padding means identical inputs do not produce identical wire
	// bytes, but both still decode to the same logical content.
	assert.NotEqual(t, a, b)

	_, payloadA, err := DecodeEncryptedPayload(key, a)
	require.NoError(t, err)
	_, payloadB, err := DecodeEncryptedPayload(key, b)
	require.NoError(t, err)
	assert.Equal(t, payloadA, payloadB)
}

func TestDecodeEncryptedPayloadRejectsMissingMarker(t *testing.T) {
	var key [16]byte
	_, _, err := DecodeEncryptedPayload(key, []byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeEncryptedPayloadRejectsBadChecksum(t *testing.T) {
	var key [16]byte
	copy(key[:], []byte("0123456789abcdef"))

	wire, err := EncodeEncryptedPayload(key, 1, []byte{0x10, 0x20})
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	_, _, err = DecodeEncryptedPayload(key, wire)
	assert.Error(t, err)
}
