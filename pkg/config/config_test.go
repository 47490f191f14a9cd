package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RequiresLocalAuthorityIDInAuthorityMode(t *testing.T) {
	cfg := Default()
	cfg.AuthorityMode = true
	cfg.KeyFilePath = "/tmp/key"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "local_authority_id is required")
}

func TestValidate_RequiresKeyFilePathInAuthorityMode(t *testing.T) {
	cfg := Default()
	cfg.AuthorityMode = true
	cfg.LocalAuthorityID = "auth-1"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "key_file_path is required")
}

func TestValidate_RejectsUnknownConsensusProtocol(t *testing.T) {
	cfg := Default()
	cfg.ConsensusProtocol = "tendermint-lite"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "consensus_protocol")
}

func TestValidate_RejectsIncompleteAuthoritySetEntry(t *testing.T) {
	cfg := Default()
	cfg.AuthoritySet = []AuthorityRecord{{ID: "auth-1"}}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "public_key is required")
}

func TestLoad_ReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("RDFCHAIN_NETWORK_ID", "rdfchain-test")
	t.Setenv("RDFCHAIN_AUTHORITY_MODE", "true")
	t.Setenv("RDFCHAIN_LOCAL_AUTHORITY_ID", "auth-1")
	t.Setenv("RDFCHAIN_KNOWN_PEERS", "peer-a:26700, peer-b:26700")
	t.Setenv("RDFCHAIN_CONSENSUS_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "rdfchain-test", cfg.NetworkID)
	require.True(t, cfg.AuthorityMode)
	require.Equal(t, "auth-1", cfg.LocalAuthorityID)
	require.Equal(t, []string{"peer-a:26700", "peer-b:26700"}, cfg.KnownPeers)
	require.Equal(t, 2*time.Second, cfg.ConsensusTimeout)
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network_id: rdfchain-devnet\nbogus_field: true\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFile_DecodesKnownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "network_id: rdfchain-devnet\nlisten_addr: 0.0.0.0:9999\nauthority_set:\n  - id: auth-1\n    public_key: \"aa\"\n    scheme: ed25519\n    first_block: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	require.Len(t, cfg.AuthoritySet, 1)
	require.Equal(t, "auth-1", cfg.AuthoritySet[0].ID)
}
