package types

import "bytes"

// BlockSet holds a small working set of blocks, typically the blocks a node
// still has in flight. Reads and writes are balanced and the set stays small.
type BlockSet struct {
	blocks []*Block
}

func NewBlockSet() *BlockSet {
	return &BlockSet{
		blocks: []*Block{},
	}
}

func (bs *BlockSet) QueryBlockByHash(hash []byte) *Block {
	for _, block := range bs.blocks {
		if bytes.Equal(block.Hash(), hash) {
			return block
		}
	}
	return nil
}

func (bs *BlockSet) AddBlock(b *Block) {
	bs.blocks = append(bs.blocks, b)
}

func (bs *BlockSet) AddBlocks(blocks ...*Block) {
	bs.blocks = append(bs.blocks, blocks...)
}

func (bs *BlockSet) RemoveBlocks(blocks []*Block) {
	queryMap := make(map[*Block]struct{})

	for _, block := range blocks {
		queryMap[block] = struct{}{}
	}

	newBlocks := []*Block{}
	for _, block := range bs.blocks {
		if _, ok := queryMap[block]; !ok {
			newBlocks = append(newBlocks, block)
		}
	}

	bs.blocks = newBlocks
}

func (bs *BlockSet) Size() int {
	return len(bs.blocks)
}

func (bs *BlockSet) Blocks() []*Block {
	return bs.blocks
}
