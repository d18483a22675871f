// Package identity implements the signature service: signing and verifying
// detached signatures over canonical message digests using Schnorr
// signatures over secp256k1, the scheme used across the pseudonymous
// signed-identity social protocols this hub's wire format is modeled on.
package identity

import (
	"encoding/hex"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// ErrInvalidSignature means verification failed: wrong key, tampered
// payload, or a signature produced over a different canonicalization.
var ErrInvalidSignature = errors.New("identity: invalid signature")

// ErrMalformedKey means the hex-encoded public key could not be parsed as a
// point on secp256k1.
var ErrMalformedKey = errors.New("identity: malformed public key")

// KeyPair holds a secp256k1 private key and its derived public key, hex
// encoded in compressed form for transport on the wire.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *secp256k1.PublicKey
}

// GenerateKeyPair creates a new random identity.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// PublicKeyHex returns the compressed, hex-encoded public key as carried on
// the wire (the `publicKey` field of signed frames).
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.Public.SerializeCompressed())
}

// Sign produces a detached signature over a 32-byte canonical digest. The
// caller is responsible for producing the digest with the matching
// canonicalizer for the frame being signed.
func Sign(kp *KeyPair, digest [32]byte) (string, error) {
	sig, err := schnorr.Sign(kp.Private, digest[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex-encoded detached signature over a canonical digest
// against a hex-encoded compressed public key. It returns ErrMalformedKey if
// the key or signature cannot be parsed, and ErrInvalidSignature if parsing
// succeeds but the signature does not check out.
func Verify(publicKeyHex, signatureHex string, digest [32]byte) error {
	pubKeyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return ErrMalformedKey
	}
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return ErrMalformedKey
	}

	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrMalformedKey
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrMalformedKey
	}

	if !sig.Verify(digest[:], pubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// ParsePublicKey validates a hex-encoded compressed public key without
// performing a signature check, for callers that only need to confirm a key
// is well formed.
func ParsePublicKey(publicKeyHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, ErrMalformedKey
	}
	pubKey, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, ErrMalformedKey
	}
	return pubKey, nil
}
