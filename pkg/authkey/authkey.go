// Package authkey abstracts authority signing over the two supported key
// schemes: Ed25519 (the default, via CometBFT's crypto/ed25519) and
// secp256k1 (via go-ethereum's crypto package), selected per-authority.
package authkey

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"os"

	cmted25519 "github.com/cometbft/cometbft/crypto/ed25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Scheme identifies which signature algorithm an authority key uses.
type Scheme string

const (
	SchemeEd25519   Scheme = "ed25519"
	SchemeSecp256k1 Scheme = "secp256k1"
)

// Signer produces signatures over block signable-bytes on behalf of one
// authority.
type Signer interface {
	Scheme() Scheme
	PublicKeyBytes() []byte
	Sign(msg []byte) ([]byte, error)
}

// Verify checks sig over msg against pubKey under scheme.
func Verify(scheme Scheme, pubKey, msg, sig []byte) (bool, error) {
	switch scheme {
	case SchemeEd25519:
		if len(pubKey) != cmted25519.PubKeySize {
			return false, fmt.Errorf("authkey: ed25519 public key must be %d bytes, got %d", cmted25519.PubKeySize, len(pubKey))
		}
		pk := cmted25519.PubKey(pubKey)
		return pk.VerifySignature(msg, sig), nil
	case SchemeSecp256k1:
		digest := sha256.Sum256(msg)
		return ethcrypto.VerifySignature(pubKey, digest[:], trimRecoveryID(sig)), nil
	default:
		return false, fmt.Errorf("authkey: unknown scheme %q", scheme)
	}
}

// trimRecoveryID drops go-ethereum's trailing recovery-id byte, if
// present, since VerifySignature expects the raw 64-byte R||S signature.
func trimRecoveryID(sig []byte) []byte {
	if len(sig) == 65 {
		return sig[:64]
	}
	return sig
}

type ed25519Signer struct {
	priv cmted25519.PrivKey
}

func (s *ed25519Signer) Scheme() Scheme                  { return SchemeEd25519 }
func (s *ed25519Signer) PublicKeyBytes() []byte          { return s.priv.PubKey().Bytes() }
func (s *ed25519Signer) Sign(msg []byte) ([]byte, error) { return s.priv.Sign(msg) }

type secp256k1Signer struct {
	priv *ecdsa.PrivateKey
}

func (s *secp256k1Signer) Scheme() Scheme { return SchemeSecp256k1 }

func (s *secp256k1Signer) PublicKeyBytes() []byte {
	return ethcrypto.CompressPubkey(&s.priv.PublicKey)
}

func (s *secp256k1Signer) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return ethcrypto.Sign(digest[:], s.priv)
}

// LoadOrGenerate reads a raw private key from path (generating and
// persisting a fresh one if path does not exist), and returns a Signer
// for the requested scheme. File permissions are set to 0600.
func LoadOrGenerate(path string, scheme Scheme) (Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("authkey: read key file: %w", err)
		}
		return generateAndPersist(path, scheme)
	}
	return fromRawKey(raw, scheme)
}

func generateAndPersist(path string, scheme Scheme) (Signer, error) {
	switch scheme {
	case SchemeEd25519:
		priv := cmted25519.GenPrivKey()
		if err := os.WriteFile(path, priv.Bytes(), 0o600); err != nil {
			return nil, fmt.Errorf("authkey: write key file: %w", err)
		}
		return &ed25519Signer{priv: priv}, nil
	case SchemeSecp256k1:
		priv, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("authkey: generate secp256k1 key: %w", err)
		}
		if err := os.WriteFile(path, ethcrypto.FromECDSA(priv), 0o600); err != nil {
			return nil, fmt.Errorf("authkey: write key file: %w", err)
		}
		return &secp256k1Signer{priv: priv}, nil
	default:
		return nil, fmt.Errorf("authkey: unknown scheme %q", scheme)
	}
}

func fromRawKey(raw []byte, scheme Scheme) (Signer, error) {
	switch scheme {
	case SchemeEd25519:
		if len(raw) != cmted25519.PrivKeySize {
			return nil, fmt.Errorf("authkey: ed25519 key file must be %d bytes, got %d", cmted25519.PrivKeySize, len(raw))
		}
		return &ed25519Signer{priv: cmted25519.PrivKey(raw)}, nil
	case SchemeSecp256k1:
		priv, err := ethcrypto.ToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("authkey: parse secp256k1 key: %w", err)
		}
		return &secp256k1Signer{priv: priv}, nil
	default:
		return nil, fmt.Errorf("authkey: unknown scheme %q", scheme)
	}
}
