package sspproto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a host-side ephemeral Diffie-Hellman key pair used for one
// session-key negotiation (spec §4.2: "Key negotiation ... the preshared
// 64-bit key is used to derive the session key via the vendor's
// Diffie-Hellman-style exchange (treated as a library primitive here)").
//
// The real vendor protocol negotiates over 8-byte generator/modulus/key
// values. This substitutes curve25519 X25519 for that step, a well-reviewed
// primitive, rather than reimplementing the vendor's narrower modular
// exponentiation; see DESIGN.md for the rationale.
type KeyPair struct {
	private [32]byte
	Public  [32]byte
}

// GenerateKeyPair creates a fresh ephemeral key pair for one negotiation.
func GenerateKeyPair() (*KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, fmt.Errorf("ssp: generating key pair: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("ssp: deriving public key: %w", err)
	}
	kp := &KeyPair{private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// DeriveSessionKey computes the 16-byte AES session key from this host's
// private key, the device's public key, and the device's preshared key
// (spec §3: "session { ... preshared 64-bit key ... }").
func (kp *KeyPair) DeriveSessionKey(devicePublic [32]byte, presharedKey uint64) ([16]byte, error) {
	shared, err := curve25519.X25519(kp.private[:], devicePublic[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("ssp: computing shared secret: %w", err)
	}
	var preshared [8]byte
	binary.LittleEndian.PutUint64(preshared[:], presharedKey)

	h := sha256.New()
	h.Write(shared)
	h.Write(preshared[:])
	digest := h.Sum(nil)

	var key [16]byte
	copy(key[:], digest[:16])
	return key, nil
}
