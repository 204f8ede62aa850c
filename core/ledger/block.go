package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kilianp07/microgrid/core/model"
)

// Block is one block of the trade ledger. Blocks are immutable once appended
// to the chain.
type Block struct {
	Index        int                  `json:"index"`
	Timestamp    int64                `json:"timestamp"`
	Transactions []model.TradePayload `json:"transactions"`
	PreviousHash string               `json:"previous_hash"`
	Nonce        int                  `json:"nonce"`
	Hash         string               `json:"hash"`
}

// blockHeader is the hashed portion of a block. Fields are declared in
// alphabetical key order so the JSON encoding is the canonical key-sorted
// serialization the hash is computed over.
type blockHeader struct {
	Index        int                  `json:"index"`
	Nonce        int                  `json:"nonce"`
	PreviousHash string               `json:"previous_hash"`
	Timestamp    int64                `json:"timestamp"`
	Transactions []model.TradePayload `json:"transactions"`
}

// NewBlock creates a block and computes its hash for the given nonce.
func NewBlock(index int, timestamp int64, txs []model.TradePayload, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash returns the SHA-256 hash of the canonical block serialization.
func (b *Block) ComputeHash() string {
	hdr := blockHeader{
		Index:        b.Index,
		Nonce:        b.Nonce,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
	}
	if hdr.Transactions == nil {
		hdr.Transactions = []model.TradePayload{}
	}
	data, err := json.Marshal(hdr)
	if err != nil {
		// The header contains only marshalable scalar fields.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MeetsDifficulty reports whether the block hash carries the required number
// of leading zero hex characters.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(b.Hash) < difficulty {
		return false
	}
	for _, c := range b.Hash[:difficulty] {
		if c != '0' {
			return false
		}
	}
	return true
}
