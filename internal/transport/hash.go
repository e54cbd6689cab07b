package transport

import (
	"crypto/sha256"

	"github.com/dominion-zone/dominion-lancer/internal/chain"
)

// SubmissionHash computes SHA-256(iv || encrypted_file || encrypted_key ||
// bug_bounty_id), the stable identity of a submission. The same bytes are
// committed on-chain under the finding before submission.
func SubmissionHash(iv, encryptedFile, encryptedKey []byte, bugBountyID chain.ObjectID) []byte {
	h := sha256.New()
	h.Write(iv)
	h.Write(encryptedFile)
	h.Write(encryptedKey)
	h.Write(bugBountyID[:])
	return h.Sum(nil)
}
