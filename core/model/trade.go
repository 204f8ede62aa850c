package model

import "math"

// Trade types recorded on the ledger.
const (
	TradeP2P         = "p2p"
	TradeLocalMarket = "local_market"
)

// AggregatorID is the reserved counterparty id used for local market trades.
const AggregatorID = -1

// Trade is an immutable record of an executed energy trade. Quantities are
// in kWh, prices in EUR/kWh. Timestamp is the simulation step the trade was
// executed in.
type Trade struct {
	BuyerID   int
	SellerID  int
	Quantity  float64
	Price     float64
	Type      string
	Timestamp int
}

// TradePayload is the canonical wire form of a trade, consumed by the ledger
// and by reporting collaborators. Fields are declared in alphabetical key
// order so the JSON encoding is the canonical key-sorted serialization.
type TradePayload struct {
	BuyerID   int     `json:"buyer_id"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	SellerID  int     `json:"seller_id"`
	Timestamp int     `json:"timestamp"`
	TotalCost float64 `json:"total_cost"`
	Type      string  `json:"type"`
}

// Payload converts the trade to its canonical wire form with values rounded
// to four decimal places.
func (t Trade) Payload() TradePayload {
	return TradePayload{
		BuyerID:   t.BuyerID,
		Price:     Round4(t.Price),
		Quantity:  Round4(t.Quantity),
		SellerID:  t.SellerID,
		Timestamp: t.Timestamp,
		TotalCost: Round4(t.Quantity * t.Price),
		Type:      t.Type,
	}
}

// Round4 rounds v to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
