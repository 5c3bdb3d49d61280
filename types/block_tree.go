package types

import (
	"bytes"
	"errors"
	"sync"
)

var (
	ErrDuplicatedBlock = errors.New("duplicated block in block tree")
	ErrNoQueryBlock    = errors.New("no such block queried by hash value")
)

type FilterFunc func(block *Block) bool

func NewBlockTree(genBlock *Block) *BlockTree {
	root := &treeNode{
		parent:   nil,
		children: []*treeNode{},
		data:     genBlock,
	}
	return &BlockTree{
		root:  root,
		size:  1,
		index: map[string]*treeNode{string(genBlock.Hash()): root},
	}
}

// BlockTree holds the blocks still relevant to the running protocol: the
// latest committed block at the root and the uncommitted blocks extending it.
// Nodes are linked by parent hash and indexed for lookup; commits re-root the
// tree, dropping settled ancestors and abandoned forks. Only the engine
// writes.
type BlockTree struct {
	mtx   sync.RWMutex
	size  int
	root  *treeNode
	index map[string]*treeNode
}

type treeNode struct {
	parent   *treeNode
	children []*treeNode
	data     *Block
}

// AddBlock inserts a block under the node matching its ParentHash.
// Returns ErrNoQueryBlock when the parent is unknown and ErrDuplicatedBlock
// on re-insertion; neither mutates the tree.
func (tree *BlockTree) AddBlock(block *Block) error {
	tree.mtx.Lock()
	defer tree.mtx.Unlock()

	parent, err := tree.queryNodeByHash(block.ParentHash)
	if err != nil {
		return ErrNoQueryBlock
	}

	if _, exist := tree.index[string(block.Hash())]; exist {
		return ErrDuplicatedBlock
	}

	newNode := &treeNode{
		parent:   parent,
		children: []*treeNode{},
		data:     block,
	}
	parent.children = append(parent.children, newNode)
	tree.index[string(block.Hash())] = newNode
	tree.size++
	return nil
}

// PruneToRoot re-roots the tree at the block with the given hash, typically
// the block a commit certificate just settled. Its ancestors and every fork
// not descending from it are dropped. Returns the number of blocks removed.
func (tree *BlockTree) PruneToRoot(hash []byte) (int, error) {
	tree.mtx.Lock()
	defer tree.mtx.Unlock()

	newRoot, err := tree.queryNodeByHash(hash)
	if err != nil {
		return 0, err
	}
	if newRoot == tree.root {
		return 0, nil
	}

	kept := map[string]*treeNode{}
	queue := []*treeNode{newRoot}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		kept[string(cur.data.Hash())] = cur
		queue = append(queue, cur.children...)
	}

	pruned := tree.size - len(kept)
	newRoot.parent = nil
	tree.root = newRoot
	tree.index = kept
	tree.size = len(kept)
	return pruned, nil
}

// HasBlock reports whether a block with the given hash is in the tree.
func (tree *BlockTree) HasBlock(hash []byte) bool {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	n, err := tree.queryNodeByHash(hash)
	return err == nil && n != nil
}

// QueryBlockByHash finds a block by its hash.
func (tree *BlockTree) QueryBlockByHash(hash []byte) (*Block, error) {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	tnode, err := tree.queryNodeByHash(hash)
	if tnode != nil {
		return tnode.data, err
	}
	return nil, err
}

// Extends reports whether the block at childHash has the block at
// ancestorHash on its ancestor path (a block does not extend itself).
func (tree *BlockTree) Extends(childHash, ancestorHash []byte) bool {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()

	child, err := tree.queryNodeByHash(childHash)
	if err != nil {
		return false
	}
	for cur := child.parent; cur != nil; cur = cur.parent {
		if bytes.Equal(cur.data.Hash(), ancestorHash) {
			return true
		}
	}
	return false
}

// ChainToAncestor returns the blocks on the path from the block at stopHash
// (exclusive) down to the block at tipHash (inclusive), ordered by ascending
// height. It fails when either block is unknown or the tip does not descend
// from the stop block.
func (tree *BlockTree) ChainToAncestor(tipHash, stopHash []byte) ([]*Block, error) {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()

	tip, err := tree.queryNodeByHash(tipHash)
	if err != nil {
		return nil, err
	}

	chain := []*Block{}
	for cur := tip; cur != nil; cur = cur.parent {
		if bytes.Equal(cur.data.Hash(), stopHash) {
			// reverse into ascending height order
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain, nil
		}
		chain = append(chain, cur.data)
	}
	return nil, ErrNoQueryBlock
}

// GetBlockByFilter returns the uncommitted blocks on the path to the block
// with the given hash that satisfy the filter.
func (tree *BlockTree) GetBlockByFilter(hash []byte, filter FilterFunc) []*Block {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	res := []*Block{}

	endNode, err := tree.queryNodeByHash(hash)
	if err != nil {
		return res
	}

	for cur := endNode; cur != nil && cur.data.BlockState != CommittedBlock; cur = cur.parent {
		if filter(cur.data) {
			res = append(res, cur.data)
		}
	}
	return res
}

func (tree *BlockTree) Size() int {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	return tree.size
}

func (tree *BlockTree) GetRoot() *Block {
	return tree.root.data
}

// ForEach runs the given function over all blocks in level order.
func (tree *BlockTree) ForEach(lambda func(block *Block)) {
	tree.mtx.RLock()
	defer tree.mtx.RUnlock()
	queue := []*treeNode{tree.root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.children) > 0 {
			queue = append(queue, cur.children...)
		}
		lambda(cur.data)
	}
}

// NOTE: caller holds the lock.
func (tree *BlockTree) queryNodeByHash(hash []byte) (*treeNode, error) {
	if node, exist := tree.index[string(hash)]; exist {
		return node, nil
	}
	return nil, ErrNoQueryBlock
}
