package bls

import (
	"bytes"
	"fmt"

	"github.com/tendermint/tendermint/crypto"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

const (
	PrivKeyName = "checkpointbft/PrivKeyBLS"
	PubKeyName  = "checkpointbft/PubKeyBLS"

	KeyType = "bls-bn256"
)

// Suite is the shared pairing suite. Signatures live in G1, public keys in G2.
var Suite = bn256.NewSuite()

func init() {
	tmjson.RegisterType(PubKey{}, PubKeyName)
	tmjson.RegisterType(PrivKey{}, PrivKeyName)
}

// PrivKey is a BLS private scalar in its binary encoding.
// It may be a standalone key or a threshold share of the federation key; a
// share behaves exactly like a plain key for signing, the share index is
// carried by the signer (see crypto/threshold).
type PrivKey []byte

var _ crypto.PrivKey = PrivKey{}

// GenPrivKey generates a fresh private key from crypto/rand.
func GenPrivKey() PrivKey {
	return scalarToPriv(Suite.G2().Scalar().Pick(random.New()))
}

// GenPrivKeyWithSeed generates a private key deterministically from seed.
// Every federation member derives the same master key from the same seed.
func GenPrivKeyWithSeed(seed int64) PrivKey {
	stream := blake2xb.New([]byte(fmt.Sprintf("checkpointbft-bls-seed-%d", seed)))
	return scalarToPriv(Suite.G2().Scalar().Pick(stream))
}

func (privKey PrivKey) Bytes() []byte {
	return []byte(privKey)
}

// Sign produces a plain BLS signature over msg.
func (privKey PrivKey) Sign(msg []byte) ([]byte, error) {
	scalar, err := privKey.Scalar()
	if err != nil {
		return nil, err
	}
	return bls.Sign(Suite, scalar, msg)
}

func (privKey PrivKey) PubKey() crypto.PubKey {
	scalar, err := privKey.Scalar()
	if err != nil {
		panic(fmt.Sprintf("invalid bls private key: %v", err))
	}
	point := Suite.G2().Point().Mul(scalar, nil)
	bz, err := point.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PubKey(bz)
}

func (privKey PrivKey) Equals(other crypto.PrivKey) bool {
	if otherBLS, ok := other.(PrivKey); ok {
		return bytes.Equal(privKey, otherBLS)
	}
	return false
}

func (privKey PrivKey) Type() string {
	return KeyType
}

// Scalar decodes the key into a kyber scalar.
func (privKey PrivKey) Scalar() (kyber.Scalar, error) {
	scalar := Suite.G2().Scalar()
	if err := scalar.UnmarshalBinary(privKey); err != nil {
		return nil, fmt.Errorf("unmarshal bls scalar: %w", err)
	}
	return scalar, nil
}

func scalarToPriv(scalar kyber.Scalar) PrivKey {
	bz, err := scalar.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return PrivKey(bz)
}

//-------------------------------------------------------------------------------

// PubKey is a BLS public key, a point on G2 in its binary encoding.
type PubKey []byte

var _ crypto.PubKey = PubKey{}

func (pubKey PubKey) Address() crypto.Address {
	return crypto.Address(tmhash.SumTruncated(pubKey))
}

func (pubKey PubKey) Bytes() []byte {
	return []byte(pubKey)
}

// VerifySignature verifies a plain BLS signature over msg.
func (pubKey PubKey) VerifySignature(msg []byte, sig []byte) bool {
	point, err := pubKey.Point()
	if err != nil {
		return false
	}
	return bls.Verify(Suite, point, msg, sig) == nil
}

func (pubKey PubKey) Equals(other crypto.PubKey) bool {
	if otherBLS, ok := other.(PubKey); ok {
		return bytes.Equal(pubKey, otherBLS)
	}
	return false
}

func (pubKey PubKey) Type() string {
	return KeyType
}

func (pubKey PubKey) String() string {
	return fmt.Sprintf("PubKeyBLS{%X}", []byte(pubKey))
}

// Point decodes the key into a kyber point on G2.
func (pubKey PubKey) Point() (kyber.Point, error) {
	point := Suite.G2().Point()
	if err := point.UnmarshalBinary(pubKey); err != nil {
		return nil, fmt.Errorf("unmarshal bls point: %w", err)
	}
	return point, nil
}
