package ballot

import (
	"github.com/ethereum/go-ethereum/common"
)

// Result is the outcome of counting revealed ciphertexts.
type Result struct {
	Counts []uint64 `json:"counts"`
	// Invalid counts ciphertexts that did not decrypt or named an option
	// outside the poll.
	Invalid uint64 `json:"invalid"`
	// Unrevealed counts accepted commitments without a matching ciphertext.
	Unrevealed uint64 `json:"unrevealed"`
}

// Tally decrypts the revealed ciphertext of every commitment and counts the
// options. Ciphertexts are matched to commitments by hash, so a reveal can
// only count for the vote it was committed to.
func (c *Cipher) Tally(numOptions int, commitments []common.Hash, reveals map[common.Hash][]byte) *Result {
	res := &Result{Counts: make([]uint64, numOptions)}
	for _, commitment := range commitments {
		ct, ok := reveals[commitment]
		if !ok || CalculateVoteHash(ct) != commitment {
			res.Unrevealed++
			continue
		}
		option, err := c.DecryptVote(ct)
		if err != nil || option >= numOptions {
			res.Invalid++
			continue
		}
		res.Counts[option]++
	}
	return res
}
