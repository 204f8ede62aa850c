package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/pkg/export"
)

var verifyDifficulty int

var verifyCmd = &cobra.Command{
	Use:   "verify <run.json>",
	Short: "Validate the ledger of an exported run",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().IntVarP(&verifyDifficulty, "difficulty", "d", 3, "mining difficulty the run was produced with")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var res export.RunResult
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return fmt.Errorf("decode run: %w", err)
	}
	blocks := make([]ledger.Block, len(res.Chain))
	for i, b := range res.Chain {
		blocks[i] = *b
	}
	if !ledger.Verify(blocks, verifyDifficulty) {
		return fmt.Errorf("chain verification failed (%d blocks)", len(blocks))
	}
	cmd.Printf("chain ok: %d blocks, %d transactions\n", len(blocks), countTxs(blocks))
	return nil
}

func countTxs(blocks []ledger.Block) int {
	n := 0
	for _, b := range blocks {
		n += len(b.Transactions)
	}
	return n
}
