// Package crypto provides signing for sealed proofs. Signatures cover the
// proof hash, so tampering with any sealed field invalidates both the hash
// chain and the signature.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer signs proof hashes.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
}

// Verifier checks proof-hash signatures.
type Verifier interface {
	Verify(data []byte, signature, publicKey string) (bool, error)
}

// Ed25519Signer signs with an ed25519 private key.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub, KeyID: keyID}, nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		KeyID:   keyID,
	}
}

// Sign returns the hex-encoded signature over data.
func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	if s.privKey == nil {
		return "", fmt.Errorf("signer has no private key")
	}
	return hex.EncodeToString(ed25519.Sign(s.privKey, data)), nil
}

// PublicKey returns the hex-encoded public key.
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// Ed25519Verifier verifies hex-encoded ed25519 signatures.
type Ed25519Verifier struct{}

// Verify checks signature over data against publicKey (both hex-encoded).
func (Ed25519Verifier) Verify(data []byte, signature, publicKey string) (bool, error) {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("malformed signature: %w", err)
	}
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("malformed public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key size %d, want %d", len(pub), ed25519.PublicKeySize)
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}
