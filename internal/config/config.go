// Package config loads the JSON configuration files of the lancer
// processes.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// Server configures the host process (broker + bridge).
type Server struct {
	// LancerID is the origin package of the lancer contracts.
	LancerID chain.ObjectID `json:"lancer_id"`
	// FindingOriginID is the origin package whose finding::Finding type
	// submissions must carry.
	FindingOriginID chain.ObjectID `json:"finding_origin_id"`
	// NautilusID is the package providing the attestation primitive.
	NautilusID chain.ObjectID `json:"nautilus_id"`
	// ExecutorOriginID parameterizes enclave::register<EXECUTOR>.
	ExecutorOriginID chain.ObjectID `json:"executor_origin_id"`
	// EnclaveConfigID is the shared enclave-config object.
	EnclaveConfigID chain.ObjectID `json:"enclave_config_id"`
	CORS            bool           `json:"cors"`
	VsockPort       uint32         `json:"vsock_port"`
	// UseTCP substitutes a local TCP stream for the vsock in development.
	UseTCP bool `json:"use_tcp"`
	// RPCURL is the fullnode JSON-RPC endpoint.
	RPCURL string `json:"rpc_url"`
	// ListenAddr is the broker's HTTP bind address.
	ListenAddr string `json:"listen_addr"`
	// WalletKeyFile holds the host wallet's signing key.
	WalletKeyFile string `json:"wallet_key_file"`
	// StorageConfigFile points at the storage layer's YAML configuration.
	StorageConfigFile string `json:"storage_config_file"`
}

// Validate checks the fields without which the host cannot run.
func (c *Server) Validate() error {
	if c.LancerID.IsZero() {
		return fmt.Errorf("lancer_id is required")
	}
	if c.FindingOriginID.IsZero() {
		return fmt.Errorf("finding_origin_id is required")
	}
	if c.VsockPort == 0 {
		return fmt.Errorf("vsock_port is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:9200"
	}
	return nil
}

// SealConfig names the key-server committee sealing reports.
type SealConfig struct {
	KeyServers []chain.ObjectID `json:"key_servers"`
	// PublicKeys holds one hex-encoded BLS12-381 G2 public key per server,
	// index-aligned with KeyServers.
	PublicKeys []string `json:"public_keys"`
	Threshold  uint8    `json:"threshold"`
}

// Connector configures the enclave-side process.
type Connector struct {
	Port uint32 `json:"port"`
	// UseTCP substitutes a local TCP stream for the vsock in development.
	UseTCP bool `json:"use_tcp"`
	// WalrusShards parameterizes the storage layer's canonical encoder.
	WalrusShards uint16         `json:"walrus_shards"`
	LancerID     chain.ObjectID `json:"lancer_id"`
	Seal         SealConfig     `json:"seal"`
	// RunnerPath is the lancer-runner binary spawned per task.
	RunnerPath string `json:"runner_path"`
	// FrameworkDir is the runner-local framework tree linked into each
	// scenario working directory.
	FrameworkDir string `json:"framework_dir"`
}

// Validate checks the fields without which the connector cannot run.
func (c *Connector) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.WalrusShards == 0 {
		return fmt.Errorf("walrus_shards must be positive")
	}
	if c.LancerID.IsZero() {
		return fmt.Errorf("lancer_id is required")
	}
	if len(c.Seal.KeyServers) == 0 {
		return fmt.Errorf("seal.key_servers is required")
	}
	if len(c.Seal.PublicKeys) != len(c.Seal.KeyServers) {
		return fmt.Errorf("seal.public_keys must align with seal.key_servers")
	}
	if c.Seal.Threshold == 0 || int(c.Seal.Threshold) > len(c.Seal.KeyServers) {
		return fmt.Errorf("seal.threshold out of range")
	}
	if c.RunnerPath == "" {
		c.RunnerPath = "./lancer-runner"
	}
	if c.FrameworkDir == "" {
		c.FrameworkDir = "lancer"
	}
	return nil
}

// LoadServer reads and validates the host config file.
func LoadServer(path string) (*Server, error) {
	var cfg Server
	if err := loadJSON(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConnector reads and validates the enclave config file.
func LoadConnector(path string) (*Connector, error) {
	var cfg Connector
	if err := loadJSON(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
