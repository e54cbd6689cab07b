// Package storage is the client of the content-addressed blob store the
// lancer pipeline publishes reports into. Every blob's address is a
// deterministic function of its bytes; the host uploads through a publisher
// endpoint while the enclave only computes addresses.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// BlobID is the canonical content address of a blob.
type BlobID [32]byte

// String renders the id in the store's URL-safe base64 form.
func (id BlobID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Config is the storage layer's own YAML configuration, referenced from the
// host config file.
type Config struct {
	PublisherURL  string `yaml:"publisher_url"`
	AggregatorURL string `yaml:"aggregator_url"`
	// SystemPackage is the store's on-chain package defining blob::Blob,
	// hex-encoded.
	SystemPackage string `yaml:"system_package"`
	// Epochs is the fixed redundancy horizon blobs are reserved for.
	Epochs     int           `yaml:"epochs"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoadConfig reads the YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config %s: %w", path, err)
	}
	if cfg.PublisherURL == "" {
		return nil, fmt.Errorf("storage config %s: publisher_url is required", path)
	}
	if _, err := chain.ObjectIDFromHex(cfg.SystemPackage); err != nil {
		return nil, fmt.Errorf("storage config %s: system_package: %w", path, err)
	}
	if cfg.Epochs == 0 {
		cfg.Epochs = 5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &cfg, nil
}

// StoreResult describes one stored blob: its content address and the
// on-chain object tracking it.
type StoreResult struct {
	BlobID       BlobID
	ObjectID     chain.ObjectID
	NewlyCreated bool
}

// Client uploads blobs with deletable persistence and always-store
// semantics, retrying across committees.
type Client struct {
	cfg        *Config
	httpClient *http.Client
}

// NewClient creates a storage client.
func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SystemPackage returns the store's on-chain package id.
func (c *Client) SystemPackage() chain.ObjectID {
	id, _ := chain.ObjectIDFromHex(c.cfg.SystemPackage)
	return id
}

// Publisher response shapes. Exactly one of the top-level branches is set.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			ID     chain.ObjectID `json:"id"`
			BlobID string         `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated,omitempty"`
	AlreadyCertified *struct {
		BlobID         string `json:"blobId"`
		EventOrObject  json.RawMessage `json:"eventOrObject"`
	} `json:"alreadyCertified,omitempty"`
	Error *struct {
		BlobID   string `json:"blobId"`
		ErrorMsg string `json:"errorMsg"`
	} `json:"error,omitempty"`
}

// Store uploads one blob, always storing it even when already certified so
// the commit transaction can own a fresh deletable blob object.
func (c *Client) Store(ctx context.Context, blob []byte) (*StoreResult, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		result, err := c.storeOnce(ctx, blob)
		if err == nil {
			return result, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return nil, fmt.Errorf("store blob after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Client) storeOnce(ctx context.Context, blob []byte) (*StoreResult, error) {
	url := fmt.Sprintf("%s/v1/blobs?epochs=%d&deletable=true&force=true",
		c.cfg.PublisherURL, c.cfg.Epochs)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("create store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read store response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store rejected: %s: %s", resp.Status, body)
	}

	var parsed storeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal store response: %w", err)
	}

	switch {
	case parsed.Error != nil:
		return nil, fmt.Errorf("store failed: %s", parsed.Error.ErrorMsg)
	case parsed.NewlyCreated != nil:
		id, err := decodeBlobID(parsed.NewlyCreated.BlobObject.BlobID)
		if err != nil {
			return nil, err
		}
		return &StoreResult{
			BlobID:       id,
			ObjectID:     parsed.NewlyCreated.BlobObject.ID,
			NewlyCreated: true,
		}, nil
	case parsed.AlreadyCertified != nil:
		// force=true asks the publisher for a fresh blob object; a bare
		// event reference means there is no object the commit can own.
		return nil, fmt.Errorf("blob already certified without an owned object")
	default:
		return nil, fmt.Errorf("store response carries no result")
	}
}

func decodeBlobID(s string) (BlobID, error) {
	var id BlobID
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("blob id %q: invalid encoding", s)
	}
	copy(id[:], raw)
	return id, nil
}
