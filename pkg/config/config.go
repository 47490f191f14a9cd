// Copyright 2025 Certen Protocol
//
// Configuration loading and validation for the RDF chain node.
// A single structured config file (or, for local/dev runs, an
// environment block) declares every item the node needs; unknown keys
// in the file form are errors.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConsensusProtocol selects which of the two supported consensus engines
// a deployment runs.
type ConsensusProtocol string

const (
	ConsensusPoA      ConsensusProtocol = "poa"
	ConsensusPBFTLite ConsensusProtocol = "pbft-lite"
)

// AuthorityRecord is a single entry of the configured authority set.
type AuthorityRecord struct {
	ID         string  `yaml:"id"`
	PublicKey  string  `yaml:"public_key"` // hex-encoded
	Scheme     string  `yaml:"scheme"`     // "ed25519" | "secp256k1"
	FirstBlock uint64  `yaml:"first_block"`
	LastBlock  *uint64 `yaml:"last_block,omitempty"`
}

// Config holds all configuration for the rdfchain node.
type Config struct {
	// Network identification
	NetworkID  string   `yaml:"network_id"`
	ListenAddr string   `yaml:"listen_addr"`
	KnownPeers []string `yaml:"known_peers"`

	// Authority / consensus
	AuthorityMode      bool              `yaml:"authority_mode"`
	LocalAuthorityID   string            `yaml:"local_authority_id"`
	KeyFilePath        string            `yaml:"key_file_path"`
	KeyScheme          string            `yaml:"key_scheme"` // "ed25519" | "secp256k1"
	AuthoritySet       []AuthorityRecord `yaml:"authority_set"`
	ConsensusProtocol  ConsensusProtocol `yaml:"consensus_protocol"`
	ConsensusTimeout   time.Duration     `yaml:"consensus_timeout"`
	SideChannelKeyPath string            `yaml:"side_channel_key_path"` // optional; enables the encrypted side-channel

	// Storage
	DataDir         string        `yaml:"data_dir"`
	BackupRetention int           `yaml:"backup_retention"`
	BackupInterval  time.Duration `yaml:"backup_interval"`

	// Ontology / shapes
	ShapeGraphPaths    []string `yaml:"shape_graph_paths"`
	CoreOntologyPath   string   `yaml:"core_ontology_path"`
	DomainOntologyPath string   `yaml:"domain_ontology_path"`
	ValidationStrict   bool     `yaml:"validation_strict"`

	// Query / resource limits
	QueryConcurrencyLimit int           `yaml:"query_concurrency_limit"`
	QueryTimeout          time.Duration `yaml:"query_timeout"`
	BlockAnnounceQueueLen int           `yaml:"block_announce_queue_len"`
	DeniedGraphPatterns   []string      `yaml:"denied_graph_patterns"`

	// Optional secondary index (pkg/index)
	IndexDatabaseURL string `yaml:"index_database_url"`

	// Metrics
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
}

// LoadFile reads and strictly decodes a YAML config file. Unknown keys
// are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	cfg := Default()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return cfg, nil
}

// Load reads configuration from environment variables, falling back to
// Default()'s values. Intended for local/dev runs and tests; production
// deployments should prefer LoadFile so unknown keys are caught.
func Load() (*Config, error) {
	cfg := Default()

	cfg.NetworkID = getEnv("RDFCHAIN_NETWORK_ID", cfg.NetworkID)
	cfg.ListenAddr = getEnv("RDFCHAIN_LISTEN_ADDR", cfg.ListenAddr)
	cfg.KnownPeers = parseCSV(getEnv("RDFCHAIN_KNOWN_PEERS", ""))

	cfg.AuthorityMode = getEnvBool("RDFCHAIN_AUTHORITY_MODE", cfg.AuthorityMode)
	cfg.LocalAuthorityID = getEnv("RDFCHAIN_LOCAL_AUTHORITY_ID", cfg.LocalAuthorityID)
	cfg.KeyFilePath = getEnv("RDFCHAIN_KEY_FILE", cfg.KeyFilePath)
	cfg.KeyScheme = getEnv("RDFCHAIN_KEY_SCHEME", cfg.KeyScheme)
	cfg.SideChannelKeyPath = getEnv("RDFCHAIN_SIDE_CHANNEL_KEY_FILE", cfg.SideChannelKeyPath)
	cfg.ConsensusProtocol = ConsensusProtocol(getEnv("RDFCHAIN_CONSENSUS", string(cfg.ConsensusProtocol)))
	cfg.ConsensusTimeout = getEnvDuration("RDFCHAIN_CONSENSUS_TIMEOUT", cfg.ConsensusTimeout)

	cfg.DataDir = getEnv("RDFCHAIN_DATA_DIR", cfg.DataDir)
	cfg.BackupRetention = getEnvInt("RDFCHAIN_BACKUP_RETENTION", cfg.BackupRetention)
	cfg.BackupInterval = getEnvDuration("RDFCHAIN_BACKUP_INTERVAL", cfg.BackupInterval)

	cfg.CoreOntologyPath = getEnv("RDFCHAIN_CORE_ONTOLOGY", cfg.CoreOntologyPath)
	cfg.DomainOntologyPath = getEnv("RDFCHAIN_DOMAIN_ONTOLOGY", cfg.DomainOntologyPath)
	cfg.ShapeGraphPaths = parseCSV(getEnv("RDFCHAIN_SHAPE_GRAPHS", ""))
	cfg.ValidationStrict = getEnvBool("RDFCHAIN_VALIDATION_STRICT", cfg.ValidationStrict)

	cfg.QueryConcurrencyLimit = getEnvInt("RDFCHAIN_QUERY_CONCURRENCY", cfg.QueryConcurrencyLimit)
	cfg.QueryTimeout = getEnvDuration("RDFCHAIN_QUERY_TIMEOUT", cfg.QueryTimeout)
	cfg.BlockAnnounceQueueLen = getEnvInt("RDFCHAIN_ANNOUNCE_QUEUE", cfg.BlockAnnounceQueueLen)
	cfg.DeniedGraphPatterns = parseCSV(getEnv("RDFCHAIN_DENIED_GRAPHS", ""))

	cfg.IndexDatabaseURL = getEnv("RDFCHAIN_INDEX_DATABASE_URL", cfg.IndexDatabaseURL)
	cfg.MetricsAddr = getEnv("RDFCHAIN_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getEnv("RDFCHAIN_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// Default returns a config with safe, non-production defaults.
func Default() *Config {
	return &Config{
		NetworkID:             "rdfchain-devnet",
		ListenAddr:            "0.0.0.0:26700",
		ConsensusProtocol:     ConsensusPoA,
		ConsensusTimeout:      5 * time.Second,
		DataDir:               "./data",
		BackupRetention:       5,
		BackupInterval:        10 * time.Minute,
		ValidationStrict:      true,
		QueryConcurrencyLimit: 32,
		QueryTimeout:          10 * time.Second,
		BlockAnnounceQueueLen: 256,
		KeyScheme:             "ed25519",
		MetricsAddr:           "0.0.0.0:9464",
		LogLevel:              "info",
	}
}

// Validate checks that all required configuration is present and
// internally consistent. Returns a non-nil error describing every
// problem found; callers should exit with code 64 on failure.
func (c *Config) Validate() error {
	var problems []string

	if c.NetworkID == "" {
		problems = append(problems, "network_id is required")
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.ConsensusProtocol != ConsensusPoA && c.ConsensusProtocol != ConsensusPBFTLite {
		problems = append(problems, fmt.Sprintf("consensus_protocol must be %q or %q, got %q", ConsensusPoA, ConsensusPBFTLite, c.ConsensusProtocol))
	}
	if c.AuthorityMode && c.KeyFilePath == "" {
		problems = append(problems, "key_file_path is required when authority_mode is true")
	}
	if c.AuthorityMode && c.LocalAuthorityID == "" {
		problems = append(problems, "local_authority_id is required when authority_mode is true")
	}
	if c.KeyScheme != "ed25519" && c.KeyScheme != "secp256k1" {
		problems = append(problems, fmt.Sprintf("key_scheme must be \"ed25519\" or \"secp256k1\", got %q", c.KeyScheme))
	}
	for i, a := range c.AuthoritySet {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("authority_set[%d]: id is required", i))
		}
		if a.PublicKey == "" {
			problems = append(problems, fmt.Sprintf("authority_set[%d]: public_key is required", i))
		}
		if a.Scheme != "ed25519" && a.Scheme != "secp256k1" {
			problems = append(problems, fmt.Sprintf("authority_set[%d]: scheme must be \"ed25519\" or \"secp256k1\"", i))
		}
	}
	if c.BackupRetention < 0 {
		problems = append(problems, "backup_retention must be >= 0")
	}
	if c.QueryConcurrencyLimit <= 0 {
		problems = append(problems, "query_concurrency_limit must be > 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
