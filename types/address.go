package types

import (
	"bytes"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
)

// Address identifies a federation member by the fingerprint of its public key.
type Address crypto.Address

func GetAddress(key crypto.PubKey) Address {
	return Address(key.Address())
}

func (addr Address) Equal(other Address) bool {
	if addr == nil || other == nil {
		return false
	}
	return bytes.Equal(crypto.Address(addr), crypto.Address(other))
}

func (addr Address) String() string {
	return fmt.Sprintf("%X", crypto.Address(addr))
}
