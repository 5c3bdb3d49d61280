package types

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandGenesisDocValidates(t *testing.T) {
	genDoc, privVals := RandGenesisDoc("CONSENSUS_TEST", 4)
	require.NoError(t, genDoc.ValidateAndComplete())
	require.Len(t, privVals, 4)

	vals := genDoc.ValidatorSet()
	require.NoError(t, vals.ValidateBasic())
	assert.Equal(t, 4, vals.Size())

	// the genesis certificate verifies like any commit certificate
	genesis := genDoc.GenesisBlock()
	assert.True(t, genDoc.GenesisQC.ForBlock(genesis))
	assert.NoError(t, genDoc.GenesisQC.Verify(genDoc.ChainID, vals))
}

func TestGenesisDocRoundtrip(t *testing.T) {
	genDoc, _ := RandGenesisDoc("CONSENSUS_TEST", 4)

	file := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, genDoc.SaveAs(file))

	loaded, err := GenesisDocFromFile(file)
	require.NoError(t, err)

	assert.Equal(t, genDoc.ChainID, loaded.ChainID)
	assert.Equal(t, genDoc.CheckpointInterval, loaded.CheckpointInterval)
	assert.Equal(t, genDoc.GenesisBlock().Hash(), loaded.GenesisBlock().Hash())
	assert.NoError(t, loaded.GenesisQC.Verify(loaded.ChainID, loaded.ValidatorSet()))

	for i := range genDoc.Validators {
		assert.Equal(t, genDoc.Validators[i].Address, loaded.Validators[i].Address)
		assert.Equal(t, genDoc.Validators[i].PubKey, loaded.Validators[i].PubKey)
	}
}

func TestGenesisDocValidateAndComplete(t *testing.T) {
	genDoc, _ := RandGenesisDoc("CONSENSUS_TEST", 4)

	broken := *genDoc
	broken.ChainID = ""
	assert.Error(t, broken.ValidateAndComplete())

	broken = *genDoc
	broken.FederationPoly = nil
	assert.Error(t, broken.ValidateAndComplete())

	broken = *genDoc
	broken.GenesisQC = nil
	assert.Error(t, broken.ValidateAndComplete())

	broken = *genDoc
	broken.CheckpointInterval = -1
	assert.Error(t, broken.ValidateAndComplete())

	// certificate bound to another chain id must be rejected
	other, _ := RandGenesisDoc("OTHER_CHAIN", 4)
	broken = *genDoc
	broken.GenesisQC = other.GenesisQC
	assert.Error(t, broken.ValidateAndComplete())
}
