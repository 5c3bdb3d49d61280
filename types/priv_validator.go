package types

import (
	"fmt"

	"checkpointbft/crypto/bls"
	"checkpointbft/crypto/threshold"
	"github.com/tendermint/tendermint/crypto"
)

// PrivValidator signs consensus messages with the validator's threshold key
// share. Votes and new-view messages are signed as aggregatable shares;
// proposals carry a plain signature verifiable against the validator's own
// public key.
type PrivValidator interface {
	GetAddress() Address
	GetPubKey() (crypto.PubKey, error)
	GetIndex() int32

	SignVote(chainID string, vote *Vote) error
	SignProposal(chainID string, proposal *Proposal) error
	SignNewView(chainID string, newView *NewView) error
}

//----------------------------------------
// MockPV

// MockPV implements PrivValidator without a key file, for testing.
type MockPV struct {
	PrivKey bls.PrivKey
	Index   int32
}

var _ PrivValidator = &MockPV{}

func NewMockPV(privKey bls.PrivKey, index int32) *MockPV {
	return &MockPV{PrivKey: privKey, Index: index}
}

func (pv *MockPV) GetAddress() Address {
	return Address(pv.PrivKey.PubKey().Address())
}

func (pv *MockPV) GetPubKey() (crypto.PubKey, error) {
	return pv.PrivKey.PubKey(), nil
}

func (pv *MockPV) GetIndex() int32 {
	return pv.Index
}

func (pv *MockPV) SignVote(chainID string, vote *Vote) error {
	sig, err := threshold.SignShare(pv.PrivKey, int(pv.Index), VoteSignBytes(chainID, vote))
	if err != nil {
		return err
	}
	vote.Signature = sig
	return nil
}

func (pv *MockPV) SignProposal(chainID string, proposal *Proposal) error {
	sig, err := pv.PrivKey.Sign(ProposalSignBytes(chainID, proposal))
	if err != nil {
		return err
	}
	proposal.Block.Signature = sig
	return nil
}

func (pv *MockPV) SignNewView(chainID string, newView *NewView) error {
	sig, err := threshold.SignShare(pv.PrivKey, int(pv.Index), NewViewSignBytes(chainID, newView.View))
	if err != nil {
		return err
	}
	newView.Signature = sig
	return nil
}

func (pv *MockPV) String() string {
	return fmt.Sprintf("MockPV{#%d %v}", pv.Index, pv.GetAddress())
}
