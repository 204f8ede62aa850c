package events

import "github.com/kilianp07/microgrid/core/model"

// TradeExecuted is published for every trade executed in a step, whether
// peer-to-peer or cleared against the aggregator.
type TradeExecuted struct {
	Trade model.Trade
}

// BlockMined is published when a block is appended to the ledger.
type BlockMined struct {
	Index        int
	Transactions int
	Nonce        int
	Hash         string
	Step         int
}

// ProsumerBanned is published when the regulator bans a prosumer.
type ProsumerBanned struct {
	ProsumerID int
	Reason     string
	Duration   int
	Step       int
}

// StepCompleted is published at the end of every simulated step.
type StepCompleted struct {
	Step         int
	Hour         int
	P2PTrades    int
	MarketTrades int
}
