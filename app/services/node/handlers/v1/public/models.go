package public

import (
	"encoding/hex"

	"github.com/utxod/utxod/foundation/blockchain/coin"
)

// tipResponse describes the head of the header chain.
type tipResponse struct {
	Hash   string `json:"hash"`
	Height uint32 `json:"height"`
}

// coinResponse describes one unspent coin.
type coinResponse struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Value    int64  `json:"value"`
	Height   uint32 `json:"height"`
	Coinbase bool   `json:"coinbase"`
	Script   string `json:"script"`
}

func toCoinResponse(op coin.Outpoint, c coin.Coin) coinResponse {
	return coinResponse{
		TxID:     op.TxID.String(),
		Vout:     op.Index,
		Value:    c.Value,
		Height:   c.Height,
		Coinbase: c.Coinbase,
		Script:   hex.EncodeToString(c.Script),
	}
}

// cacheStatsResponse describes the in-memory coins layer.
type cacheStatsResponse struct {
	Entries     int    `json:"entries"`
	MemoryBytes uint64 `json:"memory_bytes"`
	BudgetBytes int    `json:"budget_bytes"`
	BestBlock   string `json:"best_block"`
}

// storeStatsResponse describes the persistent coin store.
type storeStatsResponse struct {
	Coins      int    `json:"coins"`
	TotalValue int64  `json:"total_value"`
	DiskBytes  int    `json:"disk_bytes"`
	BestBlock  string `json:"best_block"`
}
