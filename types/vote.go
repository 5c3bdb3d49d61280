package types

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Vote is a validator's signed attestation that it observed a valid proposal
// for BlockHash in the given phase and view. The signature is a threshold
// share over VoteSignBytes; the aggregator recovers a quorum certificate from
// 2f+1 of them. Votes are ephemeral.
type Vote struct {
	BlockHash        tmbytes.HexBytes `json:"block_hash"`
	Phase            Phase            `json:"phase"`
	View             int64            `json:"view"`
	Timestamp        time.Time        `json:"timestamp"`
	ValidatorAddress Address          `json:"validator_address"`
	ValidatorIndex   int32            `json:"validator_index"`
	Signature        tmbytes.HexBytes `json:"signature"`
}

func (v *Vote) ValidateBasic() error {
	if v == nil {
		return errors.New("nil vote")
	}
	if len(v.BlockHash) == 0 {
		return errors.New("vote has no block hash")
	}
	if !v.Phase.IsVotePhase() {
		return fmt.Errorf("vote for non-vote phase %v", v.Phase)
	}
	if v.View < 0 {
		return fmt.Errorf("vote has negative view %d", v.View)
	}
	if v.ValidatorIndex < 0 {
		return fmt.Errorf("vote has negative validator index %d", v.ValidatorIndex)
	}
	if len(v.Signature) == 0 {
		return errors.New("vote has no signature")
	}
	return nil
}

// Equal ignores timestamps: two votes are the same attestation when they name
// the same block, phase, view and voter.
func (v *Vote) Equal(other *Vote) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.View == other.View &&
		v.Phase == other.Phase &&
		v.ValidatorIndex == other.ValidatorIndex &&
		bytes.Equal(v.BlockHash, other.BlockHash)
}

func (v *Vote) String() string {
	if v == nil {
		return "nil-Vote"
	}
	return fmt.Sprintf("Vote{%v/%v %X by %d}", v.View, v.Phase, tmbytes.Fingerprint(v.BlockHash), v.ValidatorIndex)
}
