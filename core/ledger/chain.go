package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/model"
)

// Config defines ledger parameters loaded from configuration.
type Config struct {
	Difficulty              int     `json:"difficulty"`                 // leading zero hex characters required
	NumMiners               int     `json:"num_miners"`                 // size of the miner pool
	BlockReward             float64 `json:"block_reward"`               // EUR credited per sealed block
	MaxTransactionsPerBlock int     `json:"max_transactions_per_block"` // FIFO slice taken per attempt
}

// SetDefaults fills unset fields with the reference community values.
func (c *Config) SetDefaults() {
	if c.NumMiners == 0 {
		c.NumMiners = 15
	}
	if c.BlockReward == 0 {
		c.BlockReward = 0.1
	}
	if c.MaxTransactionsPerBlock == 0 {
		c.MaxTransactionsPerBlock = 50
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Difficulty < 0 {
		return fmt.Errorf("difficulty must be non-negative")
	}
	if c.NumMiners <= 0 {
		return fmt.Errorf("num_miners must be positive")
	}
	if c.MaxTransactionsPerBlock <= 0 {
		return fmt.Errorf("max_transactions_per_block must be positive")
	}
	return nil
}

// Summary is the reporting surface of the chain.
type Summary struct {
	TotalBlocks         int  `json:"total_blocks"`
	TotalTransactions   int  `json:"total_transactions"`
	PendingTransactions int  `json:"pending_transactions"`
	IsValid             bool `json:"is_valid"`
	Miners              int  `json:"miners"`
	Difficulty          int  `json:"difficulty"`
}

// Blockchain records every executed trade on a simplified proof-of-work
// chain. The pending queue and the chain are guarded by a mutex so a
// concurrent orchestrator can share one ledger; within the sequential
// simulation the lock is uncontended.
type Blockchain struct {
	mu      sync.Mutex
	chain   []*Block
	pending []model.TradePayload
	miners  []*Miner
	cfg     Config
	now     func() int64
	log     logger.Logger
}

// New creates a chain with its genesis block. The genesis block carries
// previous hash "0" and an empty transaction list; it is computed with the
// same hash function as every other block but exempt from the difficulty
// requirement.
func New(cfg Config, log logger.Logger) *Blockchain {
	if log == nil {
		log = logger.NopLogger{}
	}
	bc := &Blockchain{
		cfg: cfg,
		now: func() int64 { return time.Now().Unix() },
		log: log,
	}
	for i := 0; i < cfg.NumMiners; i++ {
		bc.miners = append(bc.miners, &Miner{ID: i})
	}
	bc.chain = append(bc.chain, NewBlock(0, bc.now(), nil, "0"))
	return bc
}

// AddTransaction appends a trade payload to the pending queue.
func (bc *Blockchain) AddTransaction(tx model.TradePayload) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, tx)
	bc.mu.Unlock()
}

// PendingCount returns the number of queued transactions.
func (bc *Blockchain) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Latest returns the most recent block.
func (bc *Blockchain) Latest() *Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.chain[len(bc.chain)-1]
}

// MinePending takes the FIFO prefix of the pending queue, builds a candidate
// block and has one uniformly chosen miner brute-force it. On success the
// block is appended, the attempted prefix is removed from the queue exactly
// once, and the miner is credited the block reward. On failure the pending
// queue is left untouched for the next attempt. It returns nil when no block
// was produced.
func (bc *Blockchain) MinePending(rng *rand.Rand) *Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(bc.pending) == 0 {
		return nil
	}

	n := len(bc.pending)
	if n > bc.cfg.MaxTransactionsPerBlock {
		n = bc.cfg.MaxTransactionsPerBlock
	}
	attempted := make([]model.TradePayload, n)
	copy(attempted, bc.pending[:n])

	block := NewBlock(len(bc.chain), bc.now(), attempted, bc.chain[len(bc.chain)-1].Hash)
	miner := bc.miners[rng.Intn(len(bc.miners))]

	if !miner.Mine(block, bc.cfg.Difficulty) {
		bc.log.Warnf("mining exhausted %d attempts for block %d, %d transactions stay queued",
			maxNonceAttempts, block.Index, len(bc.pending))
		return nil
	}

	bc.chain = append(bc.chain, block)
	// Exactly-once consumption: the attempted prefix leaves the queue with
	// the block that carries it.
	bc.pending = bc.pending[n:]
	miner.TotalReward += bc.cfg.BlockReward

	bc.log.Debugw("block mined", map[string]any{
		"index":        block.Index,
		"transactions": len(block.Transactions),
		"nonce":        block.Nonce,
		"miner":        miner.ID,
	})
	return block
}

// IsValid walks the chain verifying recomputed hash equality, previous-hash
// linkage and the difficulty condition for every non-genesis block. It never
// fails with an error; callers decide remediation.
func (bc *Blockchain) IsValid() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.validLocked()
}

func (bc *Blockchain) validLocked() bool {
	for i := 1; i < len(bc.chain); i++ {
		cur, prev := bc.chain[i], bc.chain[i-1]
		if cur.Hash != cur.ComputeHash() {
			return false
		}
		if cur.PreviousHash != prev.Hash {
			return false
		}
		if !cur.MeetsDifficulty(bc.cfg.Difficulty) {
			return false
		}
	}
	return true
}

// Blocks returns a snapshot of the chain.
func (bc *Blockchain) Blocks() []*Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]*Block, len(bc.chain))
	copy(out, bc.chain)
	return out
}

// MinerStats returns a snapshot of the miner pool.
func (bc *Blockchain) MinerStats() []Miner {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]Miner, len(bc.miners))
	for i, m := range bc.miners {
		out[i] = *m
	}
	return out
}

// Summarize returns the chain's reporting surface.
func (bc *Blockchain) Summarize() Summary {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	total := 0
	for _, b := range bc.chain {
		total += len(b.Transactions)
	}
	return Summary{
		TotalBlocks:         len(bc.chain),
		TotalTransactions:   total,
		PendingTransactions: len(bc.pending),
		IsValid:             bc.validLocked(),
		Miners:              len(bc.miners),
		Difficulty:          bc.cfg.Difficulty,
	}
}
