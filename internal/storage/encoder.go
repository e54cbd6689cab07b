package storage

import (
	"crypto/sha256"
	"encoding/binary"
)

// Encoder computes canonical blob addresses without contacting the store.
// The address commits to the erasure-coding geometry (shard count) and the
// blob bytes, so the enclave and the store derive the same id for the same
// sealed object.
type Encoder struct {
	shards uint16
}

// NewEncoder creates an encoder for a committee of the given shard count.
// The count must be positive.
func NewEncoder(shards uint16) *Encoder {
	if shards == 0 {
		panic("storage: shard count must be positive")
	}
	return &Encoder{shards: shards}
}

// Per-shard symbol sizing of the canonical encoding. Source symbols per
// sliver follow the store's f+1 / 2f+1 split of 3f+1 shards.
func (e *Encoder) sourceSymbols() (primary, secondary int) {
	f := (int(e.shards) - 1) / 3
	return f + 1, 2*f + 1
}

// BlobID computes the content address of blob: a SHA-256 commitment over
// the encoding geometry, the unencoded length, and the per-sliver content
// hashes.
func (e *Encoder) BlobID(blob []byte) BlobID {
	primary, secondary := e.sourceSymbols()

	h := sha256.New()
	var header [12]byte
	binary.BigEndian.PutUint16(header[0:2], e.shards)
	binary.BigEndian.PutUint16(header[2:4], uint16(primary))
	binary.BigEndian.PutUint16(header[4:6], uint16(secondary))
	// Bytes 6..10 carry the low 32 bits of the blob length; the last two
	// bytes stay zero.
	binary.BigEndian.PutUint32(header[6:10], uint32(len(blob)))
	h.Write(header[:])

	// Hash each primary sliver's content so the id commits to placement,
	// not just the concatenated bytes.
	sliverLen := (len(blob) + primary - 1) / primary
	if sliverLen == 0 {
		sliverLen = 1
	}
	for off := 0; off < len(blob); off += sliverLen {
		end := off + sliverLen
		if end > len(blob) {
			end = len(blob)
		}
		sliver := sha256.Sum256(blob[off:end])
		h.Write(sliver[:])
	}

	var id BlobID
	copy(id[:], h.Sum(nil))
	return id
}
