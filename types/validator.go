// fork from github.com/tendermint/tendermint/types/validator.go
package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Validator is one federation member: a public key plus its fixed index in
// the ordered validator set of the current epoch.
type Validator struct {
	Address Address       `json:"address"`
	PubKey  crypto.PubKey `json:"pub_key"`
	Index   int32         `json:"index"`
}

func NewValidator(pubKey crypto.PubKey, index int32) *Validator {
	return &Validator{
		Address: Address(pubKey.Address()),
		PubKey:  pubKey,
		Index:   index,
	}
}

// ValidateBasic performs basic validation.
func (v *Validator) ValidateBasic() error {
	if v == nil {
		return errors.New("nil validator")
	}
	if v.PubKey == nil {
		return errors.New("validator does not have a public key")
	}
	if v.Index < 0 {
		return errors.New("validator has negative index")
	}
	if len(v.Address) != crypto.AddressSize {
		return fmt.Errorf("validator address is the wrong size: %v", v.Address)
	}
	return nil
}

// Copy creates a new copy of the validator.
// Panics if the validator is nil.
func (v *Validator) Copy() *Validator {
	vCopy := *v
	return &vCopy
}

func (v *Validator) String() string {
	if v == nil {
		return "nil-Validator"
	}
	return fmt.Sprintf("Validator{#%d %v %v}", v.Index, v.Address, v.PubKey)
}

// Bytes computes the unique encoding of a validator, the bytes that get
// hashed into the validator set hash.
func (v *Validator) Bytes() []byte {
	pk, err := tmjson.Marshal(v.PubKey)
	if err != nil {
		panic(err)
	}
	return pk
}
