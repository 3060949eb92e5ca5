package sspproto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Encrypted envelopes (spec §4.2): "Encrypted frames replace DATA with
// { ENC-marker, encrypted-block } where the block's plaintext is
// { counter (4 bytes, increment per encrypted frame), payload length,
// payload, random padding, CRC }."
//
// AES-CBC via crypto/aes, with the IV fixed at all-zero. The vendor
// protocol is single-key-per-session, so the counter field, not the IV,
// provides freshness against replay.
const aesBlockSize = aes.BlockSize

var zeroIV = make([]byte, aesBlockSize)

// EncodeEncryptedPayload builds the { ENC-marker, encrypted-block } bytes
// that replace a plaintext frame's DATA once encryption is enabled.
func EncodeEncryptedPayload(key [16]byte, counter uint32, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("ssp: encrypted payload too large: %d bytes", len(payload))
	}
	plain := make([]byte, 0, 4+2+len(payload)+aesBlockSize+2)
	var counterBytes [4]byte
	binary.LittleEndian.PutUint32(counterBytes[:], counter)
	plain = append(plain, counterBytes[:]...)

	var lenBytes [2]byte
	binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(payload)))
	plain = append(plain, lenBytes[:]...)
	plain = append(plain, payload...)

	padLen := aesBlockSize - ((len(plain) + 2) % aesBlockSize)
	padding := make([]byte, padLen)
	if _, err := rand.Read(padding); err != nil {
		return nil, fmt.Errorf("ssp: generating padding: %w", err)
	}
	plain = append(plain, padding...)

	crc := CRC16(plain)
	block := append(plain, byte(crc), byte(crc>>8))

	cipherText, err := aesEncryptCBC(key, block)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(cipherText))
	out = append(out, encMarker)
	out = append(out, cipherText...)
	return out, nil
}

// DecodeEncryptedPayload reverses EncodeEncryptedPayload, returning the
// embedded counter and the inner command/response payload.
func DecodeEncryptedPayload(key [16]byte, data []byte) (counter uint32, payload []byte, err error) {
	if len(data) < 1 || data[0] != encMarker {
		return 0, nil, fmt.Errorf("ssp: missing encryption marker")
	}
	block, err := aesDecryptCBC(key, data[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(block) < 4+2+2 {
		return 0, nil, fmt.Errorf("ssp: encrypted block too short")
	}
	counter = binary.LittleEndian.Uint32(block[0:4])
	payloadLen := int(binary.LittleEndian.Uint16(block[4:6]))
	if len(block) < 6+payloadLen+2 {
		return 0, nil, fmt.Errorf("ssp: encrypted block payload length mismatch")
	}
	payload = block[6 : 6+payloadLen]
	end := len(block) - 2
	wantCRC := uint16(block[end]) | uint16(block[end+1])<<8
	gotCRC := CRC16(block[:end])
	if wantCRC != gotCRC {
		return 0, nil, ErrChecksumError
	}
	return counter, payload, nil
}

func aesEncryptCBC(key [16]byte, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("ssp: aes.NewCipher: %w", err)
	}
	out := make([]byte, len(plain))
	mode := cipher.NewCBCEncrypter(block, zeroIV)
	mode.CryptBlocks(out, plain)
	return out, nil
}

func aesDecryptCBC(key [16]byte, cipherText []byte) ([]byte, error) {
	if len(cipherText)%aesBlockSize != 0 {
		return nil, fmt.Errorf("ssp: ciphertext not block-aligned")
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("ssp: aes.NewCipher: %w", err)
	}
	out := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, zeroIV)
	mode.CryptBlocks(out, cipherText)
	return out, nil
}
