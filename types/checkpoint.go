package types

import (
	"bytes"
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// CheckpointCert bundles a contiguous range of committed blocks for the
// Interpreter. It is self-contained: any federation member or external
// auditor can verify it from the validator set's public keys alone, because
// CommitQC certifies the range's tip and nothing else is asserted.
// A certificate is emitted at most once per range.
type CheckpointCert struct {
	ChainID     string             `json:"chain_id"`
	StartHeight int64              `json:"start_height"`
	EndHeight   int64              `json:"end_height"`
	BlockHashes []tmbytes.HexBytes `json:"block_hashes"`
	CommitQC    *QuorumCert        `json:"commit_qc"`

	// StateDigest optionally carries the Interpreter's ledger digest after
	// the range; the consensus core forwards it opaquely.
	StateDigest tmbytes.HexBytes `json:"state_digest,omitempty"`
}

func (cc *CheckpointCert) ValidateBasic() error {
	if cc == nil {
		return errors.New("nil checkpoint cert")
	}
	if len(cc.ChainID) == 0 {
		return errors.New("checkpoint cert has no chain id")
	}
	if cc.StartHeight < 0 || cc.EndHeight < cc.StartHeight {
		return fmt.Errorf("checkpoint cert has bad range [%d,%d]", cc.StartHeight, cc.EndHeight)
	}
	if want := int(cc.EndHeight - cc.StartHeight + 1); len(cc.BlockHashes) != want {
		return fmt.Errorf("checkpoint cert has %d hashes for a range of %d blocks", len(cc.BlockHashes), want)
	}
	if cc.CommitQC == nil {
		return errors.New("checkpoint cert carries no commit qc")
	}
	return nil
}

// Verify checks that the embedded commit certificate is a valid Commit-phase
// quorum certificate for the range's tip.
func (cc *CheckpointCert) Verify(vals *ValidatorSet) error {
	if err := cc.ValidateBasic(); err != nil {
		return err
	}
	if cc.CommitQC.Phase != PhaseCommit {
		return fmt.Errorf("checkpoint qc has phase %v, want %v", cc.CommitQC.Phase, PhaseCommit)
	}
	tip := cc.BlockHashes[len(cc.BlockHashes)-1]
	if !bytes.Equal(cc.CommitQC.BlockHash, tip) {
		return errors.New("checkpoint qc does not certify the range tip")
	}
	return cc.CommitQC.Verify(cc.ChainID, vals)
}

func (cc *CheckpointCert) String() string {
	if cc == nil {
		return "nil-Checkpoint"
	}
	return fmt.Sprintf("Checkpoint{[%d,%d] qc=%v}", cc.StartHeight, cc.EndHeight, cc.CommitQC)
}
