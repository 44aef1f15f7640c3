package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
)

// electionDeployOpCode tags the deployment payload so the contract can
// route the inbound message.
const electionDeployOpCode = 0x454c0001

// ElectionDeployMessageBody is the payload the administrator's wallet signs
// and submits to the election contract. The service only prepares it;
// signing and submission happen in the wallet.
type ElectionDeployMessageBody struct {
	Category      uint8
	StartsAtUnix  uint32
	EndsAtUnix    uint32
	CandidateRoot tlb.Bits256
}

// NewElectionDeployMessageBody fills the wire body, committing to the
// ordered candidate hash list through the candidate root.
func NewElectionDeployMessageBody(category uint8, startsAtUnix int64, endsAtUnix int64, candidateHashes []string) (ElectionDeployMessageBody, error) {
	root, err := candidateRoot(candidateHashes)
	if err != nil {
		return ElectionDeployMessageBody{}, err
	}

	return ElectionDeployMessageBody{
		Category:      category,
		StartsAtUnix:  uint32(startsAtUnix),
		EndsAtUnix:    uint32(endsAtUnix),
		CandidateRoot: root,
	}, nil
}

// candidateRoot digests the ordered candidate hashes so the contract can
// check the deployed candidate set against what was prepared.
func candidateRoot(candidateHashes []string) (tlb.Bits256, error) {
	var root tlb.Bits256

	digest := sha256.New()
	for _, candidateHash := range candidateHashes {
		raw, err := hex.DecodeString(candidateHash)
		if err != nil {
			return root, fmt.Errorf("invalid candidate hash %q: %w", candidateHash, err)
		}
		digest.Write(raw)
	}

	copy(root[:], digest.Sum(nil))
	return root, nil
}

// RootHex returns the candidate root as lowercase hex for transport.
func (b ElectionDeployMessageBody) RootHex() string {
	return hex.EncodeToString(b.CandidateRoot[:])
}

// Serialize packs the body into a single-root BoC the signing wallet
// attaches as the message payload.
func (b ElectionDeployMessageBody) Serialize() (string, error) {
	cell := boc.NewCell()

	if err := cell.WriteUint(electionDeployOpCode, 32); err != nil {
		return "", err
	}
	if err := cell.WriteUint(uint64(b.Category), 8); err != nil {
		return "", err
	}
	if err := cell.WriteUint(uint64(b.StartsAtUnix), 32); err != nil {
		return "", err
	}
	if err := cell.WriteUint(uint64(b.EndsAtUnix), 32); err != nil {
		return "", err
	}
	if err := tlb.Marshal(cell, b.CandidateRoot); err != nil {
		return "", err
	}

	return cell.ToBocBase64()
}
