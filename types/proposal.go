package types

import (
	"errors"
	"fmt"
)

// Proposal wraps the block a leader puts forward for its view.
type Proposal struct {
	ChainID string `json:"chain_id"`
	*Block  `json:"block"`
}

func NewProposal(block *Block) *Proposal {
	return &Proposal{
		ChainID: block.ChainID,
		Block:   block,
	}
}

func (p *Proposal) ValidateBasic() error {
	if p == nil {
		return errors.New("nil proposal")
	}
	if p.Block == nil {
		return errors.New("proposal carries no block")
	}
	if err := p.Block.ValidateBasic(); err != nil {
		return err
	}
	if p.ChainID != p.Block.ChainID {
		return fmt.Errorf("proposal chain id %q does not match block chain id %q", p.ChainID, p.Block.ChainID)
	}
	return nil
}

func (p *Proposal) String() string {
	if p == nil {
		return "nil-Proposal"
	}
	return fmt.Sprintf("Proposal{%v}", p.Block)
}
