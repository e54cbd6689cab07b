// Package attestation produces the enclave's attestation document. The
// production device is the platform's security module; development runs use
// a simulated document with the same shape.
package attestation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Device abstracts the attestation hardware: it signs a measurement over
// the enclave image and the provided public key.
type Device interface {
	// Attest returns an opaque attestation document binding publicKey to
	// the enclave's identity.
	Attest(publicKey []byte) ([]byte, error)
}

// New selects the platform device when present, else the simulated one.
func New() Device {
	if _, err := os.Stat("/dev/nsm"); err == nil {
		return &nsmDevice{}
	}
	return &SimulatedDevice{}
}

// nsmDevice talks to the platform security module. The concrete driver is
// an external collaborator; without it the device refuses to attest rather
// than emit a forgeable document.
type nsmDevice struct{}

func (d *nsmDevice) Attest(publicKey []byte) ([]byte, error) {
	return nil, fmt.Errorf("nsm driver not linked into this build")
}

// SimulatedDevice emits an unsigned document for development, stamped with
// the time of the call.
// The host's register call is expected to fail attestation verification for
// these documents on any real network.
type SimulatedDevice struct {
	// Measurement stands in for the enclave image measurement.
	Measurement []byte
}

type simulatedDocument struct {
	ModuleID    string `json:"module_id"`
	Digest      string `json:"digest"`
	Timestamp   int64  `json:"timestamp"`
	Measurement []byte `json:"measurement"`
	PublicKey   []byte `json:"public_key"`
}

func (d *SimulatedDevice) Attest(publicKey []byte) ([]byte, error) {
	measurement := d.Measurement
	if measurement == nil {
		sum := sha256.Sum256([]byte("lancer-simulated-enclave"))
		measurement = sum[:]
	}
	doc := simulatedDocument{
		ModuleID:    "sim",
		Digest:      "SHA384",
		Timestamp:   time.Now().UnixMilli(),
		Measurement: measurement,
		PublicKey:   publicKey,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode simulated attestation: %w", err)
	}
	return data, nil
}
