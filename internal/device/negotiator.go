package device

import (
	"context"
	"fmt"

	"github.com/ocx/ssp-bridge/internal/sspproto"
)

// DHKeyNegotiator performs the one-shot key negotiation described in spec
// §4.2: a host ephemeral key pair is generated, exchanged with the
// device's public value over the wire, and combined with the device's
// preshared key to derive the AES session key.
type DHKeyNegotiator struct{}

func (DHKeyNegotiator) Negotiate(ctx context.Context, session *sspproto.Session) error {
	keyPair, err := sspproto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating host key pair: %w", err)
	}
	status, payload, err := session.RawExchange(ctx, sspproto.CmdKeyExchange, sspproto.EncodeKeyExchange(keyPair.Public))
	if err != nil {
		return fmt.Errorf("key exchange command: %w", err)
	}
	if !status.IsOK() {
		return status.AsError()
	}
	devicePublic, err := sspproto.DecodeKeyExchange(payload)
	if err != nil {
		return err
	}
	sessionKey, err := keyPair.DeriveSessionKey(devicePublic, session.PresharedKey)
	if err != nil {
		return fmt.Errorf("deriving session key: %w", err)
	}
	session.MarkEncrypted(sessionKey)
	return nil
}
