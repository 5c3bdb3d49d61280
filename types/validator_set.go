// fork from github.com/tendermint/tendermint/types/validator_set.go
package types

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"checkpointbft/crypto/bls"
	"checkpointbft/crypto/threshold"
	"github.com/tendermint/tendermint/crypto/merkle"
)

// ValidatorSet is the fixed, ordered federation membership for one epoch.
// Federation size is n = 3f+1; quorum size is q = 2f+1. The set and its
// ordering are immutable for the epoch's lifetime: leader rotation indexes
// into it, and the threshold key shares are bound to the indices.
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to validators should copy the value for safety.
type ValidatorSet struct {
	Validators []*Validator `json:"validators"`

	// FederationPoly is the public commitment to the threshold sharing
	// polynomial; it yields the federation master key and verifies
	// individual vote shares.
	FederationPoly *threshold.PubPoly `json:"federation_poly"`
}

// NewValidatorSet initializes a ValidatorSet by copying over the values from
// valz, a list of Validators. If valz is nil or empty, the new ValidatorSet
// will have an empty list of Validators.
func NewValidatorSet(valz []*Validator, poly *threshold.PubPoly) *ValidatorSet {
	vals := &ValidatorSet{FederationPoly: poly}
	vals.Validators = make([]*Validator, 0, len(valz))
	vals.Validators = append(vals.Validators, valz...)
	return vals
}

func (vals *ValidatorSet) ValidateBasic() error {
	if vals.IsNilOrEmpty() {
		return errors.New("validator set is nil or empty")
	}
	for idx, val := range vals.Validators {
		if err := val.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid validator #%d: %w", idx, err)
		}
		if int(val.Index) != idx {
			return fmt.Errorf("validator #%d carries index %d", idx, val.Index)
		}
	}
	if vals.FederationPoly == nil {
		return errors.New("validator set has no federation polynomial")
	}
	return nil
}

// IsNilOrEmpty returns true if validator set is nil or empty.
func (vals *ValidatorSet) IsNilOrEmpty() bool {
	return vals == nil || len(vals.Validators) == 0
}

// Size returns the federation size n.
func (vals *ValidatorSet) Size() int {
	return len(vals.Validators)
}

// Quorum returns q = 2f+1 for n = 3f+1, the number of distinct voters a
// certificate needs. Quorum intersection holds because 2q > n.
func (vals *ValidatorSet) Quorum() int {
	return len(vals.Validators) - vals.MaxFaulty()
}

// MaxFaulty returns f, the number of Byzantine members the federation
// tolerates.
func (vals *ValidatorSet) MaxFaulty() int {
	return (len(vals.Validators) - 1) / 3
}

// GetProposer returns the leader for the given view: deterministic
// round-robin over the fixed ordering, known to all members.
func (vals *ValidatorSet) GetProposer(view int64) *Validator {
	if len(vals.Validators) == 0 {
		return nil
	}
	idx := view % int64(len(vals.Validators))
	return vals.Validators[idx].Copy()
}

// FederationKey returns the master public key the aggregated certificate
// signatures verify against.
func (vals *ValidatorSet) FederationKey() (bls.PubKey, error) {
	if vals.FederationPoly == nil {
		return nil, errors.New("validator set has no federation polynomial")
	}
	return vals.FederationPoly.MasterPubKey()
}

// HasAddress returns true if address given is in the validator set, false -
// otherwise.
func (vals *ValidatorSet) HasAddress(address []byte) bool {
	for _, val := range vals.Validators {
		if bytes.Equal(val.Address, address) {
			return true
		}
	}
	return false
}

// GetByAddress returns an index of the validator with address and validator
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (vals *ValidatorSet) GetByAddress(address []byte) (index int32, val *Validator) {
	for idx, val := range vals.Validators {
		if bytes.Equal(val.Address, address) {
			return int32(idx), val.Copy()
		}
	}
	return -1, nil
}

// GetByIndex returns the validator's address and validator itself (copy) by
// index. It returns nil values if index is out of range.
func (vals *ValidatorSet) GetByIndex(index int32) (address []byte, val *Validator) {
	if index < 0 || int(index) >= len(vals.Validators) {
		return nil, nil
	}
	val = vals.Validators[index]
	return val.Address, val.Copy()
}

// Copy each validator into a new ValidatorSet.
func (vals *ValidatorSet) Copy() *ValidatorSet {
	valsCopy := make([]*Validator, len(vals.Validators))
	for i, val := range vals.Validators {
		valsCopy[i] = val.Copy()
	}
	return &ValidatorSet{
		Validators:     valsCopy,
		FederationPoly: vals.FederationPoly,
	}
}

// Hash returns the merkle root hash built using validators (as leaves) in
// the set.
func (vals *ValidatorSet) Hash() []byte {
	bzs := make([][]byte, len(vals.Validators))
	for i, val := range vals.Validators {
		bzs[i] = val.Bytes()
	}
	return merkle.HashFromByteSlices(bzs)
}

// Iterate will run the given function over the set.
func (vals *ValidatorSet) Iterate(fn func(index int, val *Validator) bool) {
	for i, val := range vals.Validators {
		stop := fn(i, val.Copy())
		if stop {
			break
		}
	}
}

// String returns a string representation of ValidatorSet.
//
// See StringIndented.
func (vals *ValidatorSet) String() string {
	return vals.StringIndented("")
}

// StringIndented returns an intended String.
//
// See Validator#String.
func (vals *ValidatorSet) StringIndented(indent string) string {
	if vals == nil {
		return "nil-ValidatorSet"
	}
	var valStrings []string
	vals.Iterate(func(index int, val *Validator) bool {
		valStrings = append(valStrings, val.String())
		return false
	})
	return fmt.Sprintf(`ValidatorSet{
%s  Validators:
%s    %v
%s}`,
		indent,
		indent, strings.Join(valStrings, "\n"+indent+"    "),
		indent)
}

//----------------------------------------

// RandValidatorSet deals a fresh federation of numValidators threshold-share
// holders and returns the matching private validators and the set.
//
// EXPOSED FOR TESTING.
func RandValidatorSet(numValidators int) (*ValidatorSet, []PrivValidator) {
	primary := bls.GenPrivKey()
	quorum := numValidators - (numValidators-1)/3
	poly := threshold.Master(primary, quorum, 1)

	valz := make([]*Validator, numValidators)
	privValidators := make([]PrivValidator, numValidators)
	for i := 0; i < numValidators; i++ {
		priv, err := poly.GetValue(int64(i))
		if err != nil {
			panic(err)
		}
		valz[i] = NewValidator(priv.PubKey(), int32(i))
		privValidators[i] = NewMockPV(priv, int32(i))
	}

	return NewValidatorSet(valz, poly.PubPoly()), privValidators
}
