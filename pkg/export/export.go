package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kilianp07/microgrid/core/ledger"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/sim"
)

// ProsumerRecord is the exported view of a prosumer at the end of the run.
type ProsumerRecord struct {
	ID              int     `json:"id"`
	PVCapacityKW    float64 `json:"pv_capacity_kw"`
	BaseConsumption float64 `json:"base_consumption"`
	BatteryCapacity float64 `json:"battery_capacity"`
	Balance         float64 `json:"balance"`
	RenewableUsage  float64 `json:"renewable_usage"`
	P2PTrades       int     `json:"p2p_trades"`
	MarketTrades    int     `json:"market_trades"`
	MarketQuantity  float64 `json:"market_quantity"`
	Penalties       float64 `json:"penalties"`
	Bonus           float64 `json:"bonus"`
}

// Snapshot converts a prosumer to its exported form.
func Snapshot(p *model.Prosumer) ProsumerRecord {
	return ProsumerRecord{
		ID:              p.ID,
		PVCapacityKW:    model.Round4(p.PVCapacityKW),
		BaseConsumption: model.Round4(p.BaseConsumption),
		BatteryCapacity: p.BatteryCapacity,
		Balance:         model.Round4(p.Balance),
		RenewableUsage:  model.Round4(p.RenewableUsage),
		P2PTrades:       p.P2PTrades,
		MarketTrades:    p.MarketTrades,
		MarketQuantity:  model.Round4(p.MarketQuantity),
		Penalties:       model.Round4(p.Penalties),
		Bonus:           model.Round4(p.Bonus),
	}
}

// RunResult bundles everything exported at the end of a run.
type RunResult struct {
	RunID     string           `json:"run_id"`
	Report    sim.FinalReport  `json:"report"`
	Prosumers []ProsumerRecord `json:"prosumers"`
	Chain     []*ledger.Block  `json:"chain"`
}

// WriteJSON writes the run result to w as indented JSON.
func WriteJSON(w io.Writer, res RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteTradesCSV writes all ledger transactions to w in CSV format.
func WriteTradesCSV(w io.Writer, blocks []*ledger.Block) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"block", "buyer_id", "seller_id", "quantity_kwh", "price_eur_kwh", "total_cost_eur", "type", "step"}); err != nil {
		return err
	}
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			rec := []string{
				strconv.Itoa(b.Index),
				strconv.Itoa(tx.BuyerID),
				strconv.Itoa(tx.SellerID),
				strconv.FormatFloat(tx.Quantity, 'f', -1, 64),
				strconv.FormatFloat(tx.Price, 'f', -1, 64),
				strconv.FormatFloat(tx.TotalCost, 'f', -1, 64),
				tx.Type,
				strconv.Itoa(tx.Timestamp),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRun writes the JSON result and the trades CSV into dir, creating it
// if needed.
func WriteRun(dir string, res RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	jf, err := os.Create(filepath.Join(dir, "run.json"))
	if err != nil {
		return err
	}
	defer jf.Close()
	if err := WriteJSON(jf, res); err != nil {
		return err
	}
	cf, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return err
	}
	defer cf.Close()
	return WriteTradesCSV(cf, res.Chain)
}
