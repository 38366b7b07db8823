package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote peer ID
	Addr string `json:"addr"` // host:port
}

// ChainConfig identifies the chain this node follows and the minimum peer
// agreement the bootstrap engine requires before it trusts a candidate
// main block. ChainID is hex-encoded (see ParseChainID); Tezos derives it
// from the genesis block hash, but this node takes it as given.
type ChainConfig struct {
	ChainID              string `json:"chain_id"`
	PeersBootstrappedMin int    `json:"peers_bootstrapped_min"`
}

// Config holds all node configuration.
type Config struct {
	NodeID  string `json:"node_id"`
	DataDir string `json:"data_dir"`
	RPCPort int    `json:"rpc_port"`
	P2PPort int    `json:"p2p_port"`

	Chain ChainConfig `json:"chain"`

	// ProtocolRunnerSocket is the unix domain socket path the protocol
	// runner process listens on.
	ProtocolRunnerSocket string `json:"protocol_runner_socket"`
	// EndorsingRightsURL is the HTTP base URL the endorsing-rights cache
	// queries for delegate keys at a given (block, level).
	EndorsingRightsURL string `json:"endorsing_rights_url"`

	IdentityKeyPath string `json:"identity_key_path"` // encrypted node identity keystore

	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`
	TLS          *TLSConfig `json:"tls,omitempty"`
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:  "node0",
		DataDir: "./data",
		RPCPort: 8732,
		P2PPort: 9732,
		Chain: ChainConfig{
			ChainID:              "74656467", // "tedg" in hex, 4 bytes
			PeersBootstrappedMin: 2,
		},
		ProtocolRunnerSocket: "./data/protocol-runner.sock",
		IdentityKeyPath:      "./data/identity.key",
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Chain.ChainID == "" {
		return fmt.Errorf("chain.chain_id must not be empty")
	}
	if _, err := ParseChainID(c.Chain.ChainID); err != nil {
		return fmt.Errorf("chain.chain_id: %w", err)
	}
	if c.Chain.PeersBootstrappedMin < 1 {
		return fmt.Errorf("chain.peers_bootstrapped_min must be at least 1")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.ProtocolRunnerSocket == "" {
		return fmt.Errorf("protocol_runner_socket must not be empty")
	}
	if c.IdentityKeyPath == "" {
		return fmt.Errorf("identity_key_path must not be empty")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	for i, p := range c.SeedPeers {
		if p.Addr == "" {
			return fmt.Errorf("seed_peers[%d]: addr must not be empty", i)
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
