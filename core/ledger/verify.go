package ledger

// Verify checks an exported chain snapshot: hash integrity, previous-hash
// linkage and the difficulty condition for every non-genesis block. It is
// the standalone counterpart of Blockchain.IsValid for chains read back from
// disk.
func Verify(blocks []Block, difficulty int) bool {
	if len(blocks) == 0 {
		return false
	}
	for i := range blocks {
		b := blocks[i]
		if b.Hash != b.ComputeHash() {
			return false
		}
		if i == 0 {
			continue
		}
		if b.PreviousHash != blocks[i-1].Hash {
			return false
		}
		if !b.MeetsDifficulty(difficulty) {
			return false
		}
	}
	return true
}
