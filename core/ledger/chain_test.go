package ledger

import (
	"math/rand"
	"testing"

	"github.com/kilianp07/microgrid/core/model"
)

func testChainConfig(difficulty int) Config {
	cfg := Config{Difficulty: difficulty}
	cfg.SetDefaults()
	return cfg
}

func payload(buyer, seller int, qty, price float64) model.TradePayload {
	return model.Trade{
		BuyerID:  buyer,
		SellerID: seller,
		Quantity: qty,
		Price:    price,
		Type:     model.TradeP2P,
	}.Payload()
}

func TestGenesisBlock(t *testing.T) {
	bc := New(testChainConfig(0), nil)
	g := bc.Latest()
	if g.Index != 0 || g.PreviousHash != "0" {
		t.Fatalf("unexpected genesis block %+v", g)
	}
	if len(g.Transactions) != 0 {
		t.Fatalf("genesis must carry no transactions, got %d", len(g.Transactions))
	}
	if g.Hash != g.ComputeHash() {
		t.Fatal("genesis hash mismatch")
	}
}

func TestMinePendingZeroDifficulty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bc := New(testChainConfig(0), nil)
	bc.AddTransaction(payload(0, 1, 2, 0.175))

	block := bc.MinePending(rng)
	if block == nil {
		t.Fatal("expected a block")
	}
	if block.Nonce != 0 {
		t.Fatalf("zero difficulty must succeed on the first nonce, got %d", block.Nonce)
	}
	if len(block.Transactions) != 1 || bc.PendingCount() != 0 {
		t.Fatalf("queue not drained: %d in block, %d pending", len(block.Transactions), bc.PendingCount())
	}
	if !bc.IsValid() {
		t.Fatal("chain invalid after mining")
	}
}

func TestMinePendingEmptyQueue(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bc := New(testChainConfig(0), nil)
	if block := bc.MinePending(rng); block != nil {
		t.Fatal("expected no block for an empty queue")
	}
}

func TestMinePendingRespectsBlockLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := testChainConfig(0)
	cfg.MaxTransactionsPerBlock = 50
	bc := New(cfg, nil)
	for i := 0; i < 60; i++ {
		bc.AddTransaction(payload(i, i+1, 1, 0.15))
	}

	first := bc.MinePending(rng)
	if first == nil || len(first.Transactions) != 50 {
		t.Fatalf("expected a 50-transaction block, got %+v", first)
	}
	if bc.PendingCount() != 10 {
		t.Fatalf("expected 10 pending, got %d", bc.PendingCount())
	}
	// FIFO: the first block carries the oldest transactions
	if first.Transactions[0].BuyerID != 0 || first.Transactions[49].BuyerID != 49 {
		t.Fatal("block does not carry the FIFO prefix")
	}

	second := bc.MinePending(rng)
	if second == nil || len(second.Transactions) != 10 {
		t.Fatalf("expected a 10-transaction block, got %+v", second)
	}
	if second.Transactions[0].BuyerID != 50 {
		t.Fatal("second block does not continue where the first stopped")
	}
	if bc.PendingCount() != 0 {
		t.Fatalf("expected empty queue, got %d", bc.PendingCount())
	}
}

func TestMinePendingFailureKeepsQueue(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// 20 leading zeros is unreachable within the attempt budget
	bc := New(testChainConfig(20), nil)
	bc.AddTransaction(payload(0, 1, 1, 0.15))

	if block := bc.MinePending(rng); block != nil {
		t.Fatal("expected mining to fail")
	}
	if bc.PendingCount() != 1 {
		t.Fatalf("failed attempt must keep the queue, got %d pending", bc.PendingCount())
	}
	if got := len(bc.Blocks()); got != 1 {
		t.Fatalf("failed attempt must not extend the chain, got %d blocks", got)
	}
}

func TestChainValidityUnderDifficulty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	bc := New(testChainConfig(1), nil)
	for i := 0; i < 5; i++ {
		bc.AddTransaction(payload(i, i+1, 1, 0.15))
		if block := bc.MinePending(rng); block == nil {
			t.Fatalf("mining failed at block %d", i+1)
		}
	}
	if !bc.IsValid() {
		t.Fatal("chain invalid")
	}
	blocks := bc.Blocks()
	for _, b := range blocks[1:] {
		if !b.MeetsDifficulty(1) {
			t.Fatalf("block %d misses difficulty: %s", b.Index, b.Hash)
		}
	}
}

func TestTamperingInvalidatesChain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bc := New(testChainConfig(0), nil)
	bc.AddTransaction(payload(0, 1, 2, 0.175))
	if bc.MinePending(rng) == nil {
		t.Fatal("mining failed")
	}

	blocks := bc.Blocks()
	blocks[1].Transactions[0].Quantity = 99
	if bc.IsValid() {
		t.Fatal("transaction tampering must invalidate the chain")
	}
}

func TestBrokenLinkageInvalidatesChain(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bc := New(testChainConfig(0), nil)
	bc.AddTransaction(payload(0, 1, 1, 0.15))
	if bc.MinePending(rng) == nil {
		t.Fatal("mining failed")
	}

	blocks := bc.Blocks()
	blocks[1].PreviousHash = "deadbeef"
	blocks[1].Hash = blocks[1].ComputeHash()
	if bc.IsValid() {
		t.Fatal("broken linkage must invalidate the chain")
	}
}

func TestMinerReward(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := testChainConfig(0)
	cfg.BlockReward = 0.1
	bc := New(cfg, nil)
	for i := 0; i < 4; i++ {
		bc.AddTransaction(payload(i, i+1, 1, 0.15))
		if bc.MinePending(rng) == nil {
			t.Fatalf("mining failed at block %d", i+1)
		}
	}
	var blocks int
	var reward float64
	for _, m := range bc.MinerStats() {
		blocks += m.BlocksMined
		reward += m.TotalReward
	}
	if blocks != 4 {
		t.Fatalf("expected 4 mined blocks across the pool, got %d", blocks)
	}
	if reward != 0.4 {
		t.Fatalf("expected total reward 0.4, got %v", reward)
	}
}

func TestSummarize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bc := New(testChainConfig(0), nil)
	bc.AddTransaction(payload(0, 1, 1, 0.15))
	bc.AddTransaction(payload(1, 2, 1, 0.15))
	bc.MinePending(rng)
	bc.AddTransaction(payload(2, 3, 1, 0.15))

	s := bc.Summarize()
	if s.TotalBlocks != 2 || s.TotalTransactions != 2 || s.PendingTransactions != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !s.IsValid || s.Miners != 15 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
