package types

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// BlockState tracks a block's position in the commit pipeline. It is
// bookkeeping only and never enters the block hash.
type BlockState uint8

const (
	PendingBlock   = BlockState(0x01)
	CommittedBlock = BlockState(0x02)
)

func (bs BlockState) String() string {
	switch bs {
	case PendingBlock:
		return "Pending"
	case CommittedBlock:
		return "Committed"
	default:
		return "UnknownState"
	}
}

// Block is one link of the chain the federation agrees on. Blocks form a tree
// rooted at the genesis block; the ParentHash of every non-genesis block must
// reference an already-seen block. A block is immutable once hashed; equality
// is by hash only.
type Block struct {
	mtx    sync.Mutex
	Header `json:"header"`
	Data   `json:"data"`

	// BlockState is set by the engine when the block is committed.
	BlockState BlockState `json:"block_state"`
}

// ValidateBasic checks for the obvious marks of a malformed block.
// A block failing here is discarded without side effects.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(b.ChainID) == 0 {
		return errors.New("block has no chain id")
	}
	if b.Height < 0 {
		return fmt.Errorf("block has negative height %d", b.Height)
	}
	if b.View < 0 {
		return fmt.Errorf("block has negative view %d", b.View)
	}
	if b.Height > 0 {
		if len(b.ParentHash) == 0 {
			return errors.New("non-genesis block has no parent hash")
		}
		if b.Justify == nil {
			return errors.New("non-genesis block carries no justify certificate")
		}
		if len(b.Signature) == 0 {
			return errors.New("block has no proposer signature")
		}
	}
	return nil
}

func (b *Block) fillHeader() {
	if b.DataHash == nil {
		b.DataHash = b.Data.Hash()
	}
}

// Hash returns the block hash, computing and caching it on first use.
// The hash covers every header field except the proposer signature.
func (b *Block) Hash() tmbytes.HexBytes {
	if b == nil {
		return nil
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.fillHeader()
	return b.Header.Hash()
}

// HashesTo reports whether the block hashes to the given value.
func (b *Block) HashesTo(hash []byte) bool {
	return bytes.Equal(b.Hash(), hash)
}

// Equal compares blocks by hash only.
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.HashesTo(other.Hash())
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{%v/%v %X txs=%d}", b.Height, b.View, b.Hash(), len(b.Txs))
}

// Header carries the chain position and agreement evidence of a block.
type Header struct {
	ChainID string `json:"chain_id"`
	Height  int64  `json:"height"`
	View    int64  `json:"view"`

	ParentHash tmbytes.HexBytes `json:"parent_hash"`
	DataHash   tmbytes.HexBytes `json:"data_hash"`

	ProposerAddr  Address `json:"proposer_addr"`
	ProposerIndex int32   `json:"proposer_index"`

	// Justify certifies the parent (chained proof of prior agreement).
	// Nil only on the genesis block.
	Justify *QuorumCert `json:"justify"`

	ProposalTime time.Time `json:"proposal_time"`

	BlockHash tmbytes.HexBytes `json:"block_hash"`
	Signature tmbytes.HexBytes `json:"signature"`
}

// Hash computes the header hash over the canonical encoding of every field
// except Signature (and the cached BlockHash itself).
func (h *Header) Hash() tmbytes.HexBytes {
	if h == nil {
		return nil
	}
	if h.BlockHash == nil {
		h.BlockHash = merkle.HashFromByteSlices([][]byte{
			[]byte(h.ChainID),
			canonicalInt64(h.Height),
			canonicalInt64(h.View),
			h.ParentHash,
			h.DataHash,
			h.ProposerAddr,
			canonicalInt64(int64(h.ProposerIndex)),
			h.Justify.signedBytesDigest(),
		})
	}
	return h.BlockHash
}

// Data holds the Interpreter-defined block body.
type Data struct {
	Txs Txs `json:"txs"`

	hash []byte
}

func (d *Data) Hash() tmbytes.HexBytes {
	if d == nil {
		return (Txs{}).Hash()
	}
	if d.hash == nil {
		d.hash = d.Txs.Hash()
	}
	return d.hash
}
