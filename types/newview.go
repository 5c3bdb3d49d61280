package types

import (
	"errors"
	"fmt"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// NewView is the signed message a replica broadcasts when its view timer
// expires: "I give up on View, the freshest agreement I know is HighQC".
// The signature is a threshold share over NewViewSignBytes so that 2f+1 of
// them aggregate into a TimeoutCert.
type NewView struct {
	View             int64            `json:"view"`
	HighQC           *QuorumCert      `json:"high_qc"`
	Timestamp        time.Time        `json:"timestamp"`
	ValidatorAddress Address          `json:"validator_address"`
	ValidatorIndex   int32            `json:"validator_index"`
	Signature        tmbytes.HexBytes `json:"signature"`
}

func (nv *NewView) ValidateBasic() error {
	if nv == nil {
		return errors.New("nil new-view")
	}
	if nv.View < 0 {
		return fmt.Errorf("new-view has negative view %d", nv.View)
	}
	if nv.HighQC == nil {
		return errors.New("new-view carries no high qc")
	}
	if err := nv.HighQC.ValidateBasic(); err != nil {
		return fmt.Errorf("new-view high qc: %w", err)
	}
	if nv.ValidatorIndex < 0 {
		return fmt.Errorf("new-view has negative validator index %d", nv.ValidatorIndex)
	}
	if len(nv.Signature) == 0 {
		return errors.New("new-view has no signature")
	}
	return nil
}

func (nv *NewView) String() string {
	if nv == nil {
		return "nil-NewView"
	}
	return fmt.Sprintf("NewView{%v by %d highQC=%v}", nv.View, nv.ValidatorIndex, nv.HighQC)
}

// TimeoutCert proves that 2f+1 distinct validators abandoned View. HighQC is
// the freshest certificate among the aggregated new-view messages; the leader
// of View+1 proposes on top of it.
type TimeoutCert struct {
	View         int64            `json:"view"`
	HighQC       *QuorumCert      `json:"high_qc"`
	Signers      []int32          `json:"signers"`
	AggSignature tmbytes.HexBytes `json:"agg_signature"`
}

func (tc *TimeoutCert) ValidateBasic() error {
	if tc == nil {
		return errors.New("nil timeout cert")
	}
	if tc.View < 0 {
		return fmt.Errorf("timeout cert has negative view %d", tc.View)
	}
	if tc.HighQC == nil {
		return errors.New("timeout cert carries no high qc")
	}
	if len(tc.AggSignature) == 0 {
		return errors.New("timeout cert has no aggregated signature")
	}
	return nil
}

// Verify checks the aggregated signature over the abandoned view against the
// federation key, and the embedded HighQC on its own.
func (tc *TimeoutCert) Verify(chainID string, vals *ValidatorSet) error {
	if err := tc.ValidateBasic(); err != nil {
		return err
	}
	if len(tc.Signers) < vals.Quorum() {
		return ErrNotEnoughVoters{Got: len(tc.Signers), Needed: vals.Quorum()}
	}
	master, err := vals.FederationKey()
	if err != nil {
		return err
	}
	if !master.VerifySignature(NewViewSignBytes(chainID, tc.View), tc.AggSignature) {
		return errors.New("timeout cert aggregated signature does not verify")
	}
	return tc.HighQC.Verify(chainID, vals)
}

func (tc *TimeoutCert) String() string {
	if tc == nil {
		return "nil-TC"
	}
	return fmt.Sprintf("TC{%v signers=%v highQC=%v}", tc.View, tc.Signers, tc.HighQC)
}
