package types

import (
	"time"

	tmtime "github.com/tendermint/tendermint/types/time"
)

// MakeGenesisBlock returns the deterministic genesis block every federation
// member derives from the genesis document. It has height and view zero, no
// parent and no justify certificate, and is born committed.
func MakeGenesisBlock(chainID string, genesisTime time.Time) *Block {
	block := &Block{
		Header: Header{
			ChainID:      chainID,
			Height:       0,
			View:         0,
			ParentHash:   []byte{},
			ProposalTime: genesisTime,
		},
		Data: Data{
			Txs: Txs{},
		},
		BlockState: CommittedBlock,
	}
	block.fillHeader()
	return block
}

// MakeBlock builds an unsigned block extending the given parent. The caller
// is expected to sign it before proposing.
func MakeBlock(chainID string, height, view int64, parentHash []byte, justify *QuorumCert, txs Txs) *Block {
	return &Block{
		Header: Header{
			ChainID:      chainID,
			Height:       height,
			View:         view,
			ParentHash:   parentHash,
			Justify:      justify,
			ProposalTime: tmtime.Now(),
		},
		Data: Data{
			Txs: txs,
		},
		BlockState: PendingBlock,
	}
}
