package sspproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayoutAmountIsLittleEndian(t *testing.T) {
	eur, err := NewCurrency("EUR")
	require.NoError(t, err)

	payload := EncodePayout(100000, eur, OptionDo)
	assert.Equal(t, []byte{0xA0, 0x86, 0x01, 0x00}, payload[0:4])
	assert.Equal(t, "EUR", string(payload[4:7]))
	assert.Equal(t, OptionDo, payload[7])
}

func TestPayoutOptionBytesAreVendorExact(t *testing.T) {
	assert.Equal(t, byte(0x19), OptionTest)
	assert.Equal(t, byte(0x58), OptionDo)
}

func TestEncodeSetCashboxPayoutLimitWireOrder(t *testing.T) {
	eur, err := NewCurrency("EUR")
	require.NoError(t, err)

	// JSON keys are amount=denomination, level=limit (spec §9 open
	// question); the wire order is fixed as {count, limit, denom, cc}.
	payload := EncodeSetCashboxPayoutLimit(10, 500, eur)
	require.Len(t, payload, 10)
	assert.Equal(t, byte(0x01), payload[0])
	assert.Equal(t, []byte{0x0A, 0x00}, payload[1:3])
	assert.Equal(t, []byte{0xF4, 0x01, 0x00, 0x00}, payload[3:7])
	assert.Equal(t, "EUR", string(payload[7:10]))
}

func TestDecodeLevelsEmpty(t *testing.T) {
	levels, err := DecodeLevels([]byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestDecodeLevelsRoundTrip(t *testing.T) {
	eur, err := NewCurrency("EUR")
	require.NoError(t, err)

	payload := []byte{0x01}
	payload = append(payload, 0x02, 0x00) // level 2
	payload = append(payload, 0x64, 0x00, 0x00, 0x00) // value 100
	payload = append(payload, eur[:]...)

	levels, err := DecodeLevels(payload)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, uint16(2), levels[0].Level)
	assert.Equal(t, uint32(100), levels[0].Value)
	assert.Equal(t, eur, levels[0].Currency)
}

func TestDecodeCashboxPayoutOperationDataAppendsUnknownCoinCount(t *testing.T) {
	payload := []byte{0x00, 0x07, 0x00, 0x00} // zero counters, unknown count = 7
	levels, unknown, err := DecodeCashboxPayoutOperationData(payload)
	require.NoError(t, err)
	assert.Empty(t, levels)
	assert.Equal(t, uint32(7), unknown)
}

func TestDecodeASCIIVersionTrimsPadding(t *testing.T) {
	raw := []byte("NV4USB3\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	assert.Equal(t, "NV4USB3", DecodeASCIIVersion(raw))
}

func TestDecodeLastRejectNote(t *testing.T) {
	reason, err := DecodeLastRejectNote([]byte{0x06})
	require.NoError(t, err)
	assert.Equal(t, "channel inhibited", reason.Phrase())
}

func TestNewCurrencyRejectsWrongLength(t *testing.T) {
	_, err := NewCurrency("EU")
	assert.Error(t, err)
}

func TestDecodeSetupResponse(t *testing.T) {
	eur, err := NewCurrency("EUR")
	require.NoError(t, err)

	payload := []byte{0x03, 0x02} // unit type 3, 2 channels
	payload = append(payload, 0x05, 0x00, 0x00, 0x00) // channel 1 face value 5
	payload = append(payload, 0x0A, 0x00, 0x00, 0x00) // channel 2 face value 10
	payload = append(payload, 0x01)
	payload = append(payload, eur[:]...)

	resp, err := DecodeSetupResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), resp.UnitType)
	require.Len(t, resp.Channels, 2)
	assert.Equal(t, 1, resp.Channels[0].Channel)
	assert.Equal(t, uint32(5), resp.Channels[0].FaceValue)
	assert.Equal(t, eur, resp.Channels[0].Currency)
	assert.Equal(t, eur, resp.Channels[1].Currency)
}
