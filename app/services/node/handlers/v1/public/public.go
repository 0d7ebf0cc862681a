// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	v1 "github.com/utxod/utxod/business/web/v1"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/state"
	"github.com/utxod/utxod/foundation/events"
	"github.com/utxod/utxod/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the chain parameters.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns the current head of the header chain.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.RetrieveTip()

	resp := tipResponse{
		Hash:   tip.Hash.String(),
		Height: tip.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Coin returns the unspent coin for the specified outpoint.
func (h Handlers) Coin(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	txID, err := chainhash.NewHashFromStr(web.Param(r, "txid"))
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid transaction id: %w", err), http.StatusBadRequest)
	}

	vout, err := strconv.ParseUint(web.Param(r, "vout"), 10, 32)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid output index: %w", err), http.StatusBadRequest)
	}

	op := coin.NewOutpoint(*txID, uint32(vout))

	h.Log.Infow("query coin", "traceid", v.TraceID, "outpoint", op)

	c, exists := h.State.QueryCoin(op)
	if !exists {
		return v1.NewRequestError(fmt.Errorf("no unspent coin for %s", op), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toCoinResponse(op, c), http.StatusOK)
}

// CacheStats returns the in-memory coins layer statistics.
func (h Handlers) CacheStats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats := h.State.RetrieveCacheStats()

	resp := cacheStatsResponse{
		Entries:     stats.Entries,
		MemoryBytes: stats.MemoryBytes,
		BudgetBytes: stats.BudgetBytes,
		BestBlock:   stats.BestBlock.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StoreStats walks the persistent coin store and summarizes it.
func (h Handlers) StoreStats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.State.RetrieveStoreStats()
	if err != nil {
		return fmt.Errorf("gathering store stats: %w", err)
	}

	resp := storeStatsResponse{
		Coins:      stats.Coins,
		TotalValue: stats.TotalValue,
		DiskBytes:  stats.DiskBytes,
		BestBlock:  stats.BestBlock.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
