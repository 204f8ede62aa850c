package market

import (
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/model"
)

// LocalMarket clears residual imbalances against the aggregator. The
// aggregator is an infinite counterparty: every residual order transacts in
// full. The fee scales with the traded quantity, which makes large residual
// trades proportionally less favourable than peer trades.
type LocalMarket struct {
	aggregatorID int
	fee          float64
	log          logger.Logger
}

// NewLocalMarket creates the aggregator-backed clearing mechanism.
func NewLocalMarket(cfg Config, log logger.Logger) *LocalMarket {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &LocalMarket{aggregatorID: model.AggregatorID, fee: cfg.LocalMarketFee, log: log}
}

// Clear transacts every residual buyer and seller against the aggregator at
// the market price adjusted by the quantity-scaled fee. Only prosumers still
// imbalanced in their matching direction participate.
func (m *LocalMarket) Clear(prosumers []*model.Prosumer, marketPrice float64, step int) []model.Trade {
	var trades []model.Trade

	for _, p := range prosumers {
		if p.Banned() || p.DesiredQuantity <= minTradeQuantity {
			continue
		}
		switch {
		case p.Imbalance > minTradeQuantity:
			qty := p.DesiredQuantity
			price := marketPrice - m.fee*qty
			p.AcceptTrade(qty, price, false, false)
			p.MarketQuantity += qty
			trades = append(trades, model.Trade{
				BuyerID:   m.aggregatorID,
				SellerID:  p.ID,
				Quantity:  qty,
				Price:     price,
				Type:      model.TradeLocalMarket,
				Timestamp: step,
			})
		case p.Imbalance < -minTradeQuantity:
			qty := p.DesiredQuantity
			price := marketPrice + m.fee*qty
			p.AcceptTrade(qty, price, true, false)
			p.MarketQuantity += qty
			trades = append(trades, model.Trade{
				BuyerID:   p.ID,
				SellerID:  m.aggregatorID,
				Quantity:  qty,
				Price:     price,
				Type:      model.TradeLocalMarket,
				Timestamp: step,
			})
		}
	}

	if len(trades) > 0 {
		m.log.Debugf("local market: %d residual trades cleared at step %d", len(trades), step)
	}
	return trades
}
