package ledger

import "fmt"

// IntegrityError reports the first block at which chain verification failed.
type IntegrityError struct {
	Index  uint64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity broken at block %d: %s", e.Index, e.Reason)
}

func AsIntegrityError(err error) *IntegrityError {
	if ie, ok := err.(*IntegrityError); ok {
		return ie
	}
	return nil
}

// Chain is an append-only sequence of mined blocks sharing one difficulty
// target. It is not safe for concurrent use; callers serialize access per
// chain.
type Chain struct {
	Blocks     []*Block `json:"chain"`
	Difficulty int      `json:"difficulty"`
}

// NewChain returns an empty chain. The first block must be added with
// PushGenesis.
func NewChain(difficulty int) *Chain {
	return &Chain{
		Blocks:     make([]*Block, 0),
		Difficulty: difficulty,
	}
}

// PushGenesis mines and appends the index-0 block. For root chains parentHash
// is RootMarker; for child chains it is the parent's latest hash at creation
// time.
func (c *Chain) PushGenesis(transactions []Transaction, parentHash string) (*Block, error) {
	if len(c.Blocks) > 0 {
		return nil, fmt.Errorf("chain already has a genesis block")
	}
	block := NewBlock(0, transactions, parentHash)
	block.Mine(c.Difficulty)
	c.Blocks = append(c.Blocks, block)
	return block, nil
}

// Append mines and appends the next block. Mining completes before the call
// returns; there is no externally visible unmined state.
func (c *Chain) Append(transactions []Transaction) (*Block, error) {
	if len(c.Blocks) == 0 {
		return nil, fmt.Errorf("chain has no genesis block")
	}
	latest := c.Latest()
	block := NewBlock(latest.Index+1, transactions, latest.Hash)
	block.Mine(c.Difficulty)
	c.Blocks = append(c.Blocks, block)
	return block, nil
}

func (c *Chain) Genesis() *Block {
	if len(c.Blocks) == 0 {
		return nil
	}
	return c.Blocks[0]
}

func (c *Chain) Latest() *Block {
	if len(c.Blocks) == 0 {
		return nil
	}
	return c.Blocks[len(c.Blocks)-1]
}

func (c *Chain) Length() int {
	return len(c.Blocks)
}

// Verify walks the whole chain and returns an *IntegrityError for the first
// block that fails hash recomputation, predecessor linkage, or the chain's
// own proof-of-work target. The genesis block is exempt from the predecessor
// check only.
func (c *Chain) Verify() error {
	if len(c.Blocks) == 0 {
		return &IntegrityError{Index: 0, Reason: "chain is empty"}
	}

	for i, block := range c.Blocks {
		if block.Index != uint64(i) {
			return &IntegrityError{Index: uint64(i), Reason: fmt.Sprintf("expected index %d, got %d", i, block.Index)}
		}
		if !block.IsValid() {
			return &IntegrityError{Index: block.Index, Reason: "stored hash does not match recomputed hash"}
		}
		if !block.MeetsDifficulty(c.Difficulty) {
			return &IntegrityError{Index: block.Index, Reason: fmt.Sprintf("hash does not meet difficulty %d", c.Difficulty)}
		}
		if i > 0 && block.PrevHash != c.Blocks[i-1].Hash {
			return &IntegrityError{Index: block.Index, Reason: "prev_hash does not match predecessor's hash"}
		}
	}

	return nil
}
