package market

import (
	"sort"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/model"
)

// minTradeQuantity is the floor below which no partial trade is recorded.
const minTradeQuantity = 0.01

// Auction runs the peer-to-peer double auction: buyers sorted by descending
// bid, sellers by ascending ask, trades executed at the bid/ask midpoint.
type Auction struct {
	log logger.Logger
}

// NewAuction creates an auction. A nil logger is replaced by a no-op one.
func NewAuction(log logger.Logger) *Auction {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Auction{log: log}
}

// Match executes P2P trading among the given prosumers for the step and
// returns the executed trades. Prosumers are mutated in place; the unmatched
// remainder of each order carries to the local market.
func (a *Auction) Match(prosumers []*model.Prosumer, step int) []model.Trade {
	var buyers, sellers []*model.Prosumer
	for _, p := range prosumers {
		if p.DesiredQuantity <= minTradeQuantity {
			continue
		}
		switch p.Role {
		case model.RoleBuyer:
			buyers = append(buyers, p)
		case model.RoleSeller:
			sellers = append(sellers, p)
		}
	}
	if len(buyers) == 0 || len(sellers) == 0 {
		return nil
	}

	// Price priority, ties broken by list order.
	sort.SliceStable(buyers, func(i, j int) bool { return buyers[i].BidPrice > buyers[j].BidPrice })
	sort.SliceStable(sellers, func(i, j int) bool { return sellers[i].AskPrice < sellers[j].AskPrice })

	var trades []model.Trade
	for _, buyer := range buyers {
		if buyer.DesiredQuantity < minTradeQuantity {
			continue
		}
		for _, seller := range sellers {
			if seller.DesiredQuantity < minTradeQuantity {
				continue
			}
			if buyer.BidPrice < seller.AskPrice {
				continue
			}

			qty := min(buyer.DesiredQuantity, seller.DesiredQuantity)
			if qty <= minTradeQuantity {
				continue
			}
			price := (buyer.BidPrice + seller.AskPrice) / 2

			buyer.AcceptTrade(qty, price, true, true)
			seller.AcceptTrade(qty, price, false, true)

			trades = append(trades, model.Trade{
				BuyerID:   buyer.ID,
				SellerID:  seller.ID,
				Quantity:  qty,
				Price:     price,
				Type:      model.TradeP2P,
				Timestamp: step,
			})

			if buyer.DesiredQuantity < minTradeQuantity {
				buyer.DesiredQuantity = 0
				break
			}
		}
	}

	if len(trades) > 0 {
		a.log.Debugf("p2p auction: %d trades executed at step %d", len(trades), step)
	}
	return trades
}
