package types

import (
	"encoding/binary"
)

// Canonical sign payloads. These must be stable across nodes and transports:
// a quorum certificate is only recoverable when every validator signed exactly
// the same bytes.

func canonicalInt64(v int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(v))
	return bz
}

// QuorumSignBytes is the payload a vote signature share covers:
// chainID ‖ blockHash ‖ phase ‖ view. Voter identity and timestamp stay
// outside so that shares from distinct voters recover to one signature.
func QuorumSignBytes(chainID string, blockHash []byte, phase Phase, view int64) []byte {
	bz := make([]byte, 0, len(chainID)+len(blockHash)+1+8)
	bz = append(bz, []byte(chainID)...)
	bz = append(bz, blockHash...)
	bz = append(bz, byte(phase))
	bz = append(bz, canonicalInt64(view)...)
	return bz
}

// VoteSignBytes returns the payload the vote's signature share covers.
func VoteSignBytes(chainID string, vote *Vote) []byte {
	return QuorumSignBytes(chainID, vote.BlockHash, vote.Phase, vote.View)
}

// NewViewSignBytes is the payload a new-view signature share covers. It names
// only the abandoned view, so the shares of all timed-out validators are
// aggregatable into a timeout certificate regardless of their HighQC.
func NewViewSignBytes(chainID string, view int64) []byte {
	bz := make([]byte, 0, len(chainID)+8+8)
	bz = append(bz, []byte(chainID)...)
	bz = append(bz, []byte("/newview")...)
	bz = append(bz, canonicalInt64(view)...)
	return bz
}

// ProposalSignBytes returns the payload of the proposer's plain signature.
func ProposalSignBytes(chainID string, proposal *Proposal) []byte {
	bz := make([]byte, 0, len(chainID)+32+8)
	bz = append(bz, []byte(chainID)...)
	bz = append(bz, []byte("/proposal")...)
	bz = append(bz, proposal.Block.Hash()...)
	bz = append(bz, canonicalInt64(proposal.Block.View)...)
	return bz
}
