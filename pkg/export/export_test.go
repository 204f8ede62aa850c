package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/core/model"
)

func sampleResult() RunResult {
	genesis := ledger.NewBlock(0, 1700000000, nil, "0")
	tx := model.Trade{BuyerID: 0, SellerID: 1, Quantity: 2, Price: 0.175, Type: model.TradeP2P, Timestamp: 3}.Payload()
	b1 := ledger.NewBlock(1, 1700000001, []model.TradePayload{tx}, genesis.Hash)

	p := model.NewProsumer(0, 5.5, 1.2, 10)
	p.Balance = 3.21
	p.P2PTrades = 4

	return RunResult{
		RunID:     "test-run",
		Prosumers: []ProsumerRecord{Snapshot(p)},
		Chain:     []*ledger.Block{genesis, b1},
	}
}

func TestWriteRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()
	if err := WriteRun(dir, res); err != nil {
		t.Fatalf("write run: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "run.json"))
	if err != nil {
		t.Fatalf("open run.json: %v", err)
	}
	defer f.Close()
	var decoded RunResult
	if err := json.NewDecoder(f).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != "test-run" || len(decoded.Chain) != 2 {
		t.Fatalf("unexpected result %+v", decoded)
	}
	if decoded.Prosumers[0].Balance != 3.21 || decoded.Prosumers[0].P2PTrades != 4 {
		t.Fatalf("unexpected prosumer record %+v", decoded.Prosumers[0])
	}

	// an exported chain verifies after the round trip
	blocks := make([]ledger.Block, len(decoded.Chain))
	for i, b := range decoded.Chain {
		blocks[i] = *b
	}
	if !ledger.Verify(blocks, 0) {
		t.Fatal("exported chain does not verify")
	}
}

func TestWriteTradesCSV(t *testing.T) {
	dir := t.TempDir()
	if err := WriteRun(dir, sampleResult()); err != nil {
		t.Fatalf("write run: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "trades.csv"))
	if err != nil {
		t.Fatalf("open trades.csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// header plus one transaction
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	if rows[0][0] != "block" || rows[1][0] != "1" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][6] != "p2p" || rows[1][7] != "3" {
		t.Fatalf("unexpected trade row %v", rows[1])
	}
}

func TestSnapshotRounds(t *testing.T) {
	p := model.NewProsumer(1, 5.123456, 1.2, 0)
	p.Balance = 1.987654
	rec := Snapshot(p)
	if rec.PVCapacityKW != 5.1235 || rec.Balance != 1.9877 {
		t.Fatalf("values not rounded: %+v", rec)
	}
}
