package authkey

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerate_Ed25519_SignVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "authority.key")

	signer, err := LoadOrGenerate(keyPath, SchemeEd25519)
	require.NoError(t, err)

	msg := []byte("block signable bytes")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	ok, err := Verify(SchemeEd25519, signer.PublicKeyBytes(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLoadOrGenerate_Ed25519_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "authority.key")

	first, err := LoadOrGenerate(keyPath, SchemeEd25519)
	require.NoError(t, err)

	second, err := LoadOrGenerate(keyPath, SchemeEd25519)
	require.NoError(t, err)

	require.Equal(t, first.PublicKeyBytes(), second.PublicKeyBytes())
}

func TestLoadOrGenerate_Secp256k1_SignVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "authority.key")

	signer, err := LoadOrGenerate(keyPath, SchemeSecp256k1)
	require.NoError(t, err)

	msg := []byte("block signable bytes")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	ok, err := Verify(SchemeSecp256k1, signer.PublicKeyBytes(), msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerify_WrongMessageFails(t *testing.T) {
	dir := t.TempDir()
	signer, err := LoadOrGenerate(filepath.Join(dir, "authority.key"), SchemeEd25519)
	require.NoError(t, err)

	sig, err := signer.Sign([]byte("original"))
	require.NoError(t, err)

	ok, err := Verify(SchemeEd25519, signer.PublicKeyBytes(), []byte("tampered"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_UnknownSchemeErrors(t *testing.T) {
	_, err := Verify(Scheme("unknown"), nil, nil, nil)
	require.Error(t, err)
}
