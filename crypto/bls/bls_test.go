package bls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	priv := GenPrivKey()
	pub := priv.PubKey()

	msg := []byte("checkpoint certificate payload")
	sig, err := priv.Sign(msg)
	require.NoError(t, err)

	assert.True(t, pub.VerifySignature(msg, sig))
	assert.False(t, pub.VerifySignature([]byte("other payload"), sig))
	assert.False(t, pub.VerifySignature(msg, append([]byte{}, make([]byte, len(sig))...)))
}

func TestSeededKeyIsDeterministic(t *testing.T) {
	k1 := GenPrivKeyWithSeed(42)
	k2 := GenPrivKeyWithSeed(42)
	k3 := GenPrivKeyWithSeed(43)

	assert.True(t, k1.Equals(k2))
	assert.False(t, k1.Equals(k3))
	assert.True(t, k1.PubKey().Equals(k2.PubKey()))
}

func TestAddressSize(t *testing.T) {
	priv := GenPrivKey()
	assert.Len(t, []byte(priv.PubKey().Address()), 20)
}
