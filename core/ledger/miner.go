package ledger

// maxNonceAttempts bounds the brute-force search so mining terminates in
// bounded time regardless of success.
const maxNonceAttempts = 1_000_000

// Miner competes to seal blocks. Miners are stateful across the run.
type Miner struct {
	ID          int     `json:"miner_id"`
	BlocksMined int     `json:"blocks_mined"`
	TotalReward float64 `json:"total_reward"`
}

// Mine brute-forces the block nonce until the hash meets the difficulty. It
// reports whether a valid nonce was found within the attempt budget. The
// block hash is left at the last attempted nonce either way.
func (m *Miner) Mine(b *Block, difficulty int) bool {
	for nonce := 0; nonce < maxNonceAttempts; nonce++ {
		b.Nonce = nonce
		b.Hash = b.ComputeHash()
		if b.MeetsDifficulty(difficulty) {
			m.BlocksMined++
			return true
		}
	}
	return false
}
