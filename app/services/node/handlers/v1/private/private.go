// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	v1 "github.com/utxod/utxod/business/web/v1"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/headers"
	"github.com/utxod/utxod/foundation/blockchain/peer"
	"github.com/utxod/utxod/foundation/blockchain/state"
	"github.com/utxod/utxod/foundation/web"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// headersRequest asks for the headers that follow a locator.
type headersRequest struct {
	Locator []string `json:"locator" validate:"required,min=1"`
	Max     int      `json:"max" validate:"required,gt=0"`
}

// headersResponse carries headers in their serialized hex form.
type headersResponse struct {
	Headers []string `json:"headers"`
	Full    bool     `json:"full"`
}

// Headers serves another node's locator based request for headers.
func (h Handlers) Headers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req headersRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	loc := make(headers.Locator, 0, len(req.Locator))
	for _, hash := range req.Locator {
		parsed, err := chainhash.NewHashFromStr(hash)
		if err != nil {
			return v1.NewRequestError(fmt.Errorf("invalid locator hash %q: %w", hash, err), http.StatusBadRequest)
		}
		loc = append(loc, *parsed)
	}

	max := req.Max
	if limit := h.State.RetrieveGenesis().MaxHeadersResults; max > limit {
		max = limit
	}

	batch, full := h.State.HeadersSince(loc, max)

	resp := headersResponse{
		Headers: make([]string, len(batch)),
		Full:    full,
	}
	for i := range batch {
		resp.Headers[i] = hex.EncodeToString(batch[i].Serialize())
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// addPeerRequest identifies a peer to add to the known set.
type addPeerRequest struct {
	Host string `json:"host" validate:"required,hostname_port"`
}

// AddPeer records a peer and kicks off a header sync against it.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req addPeerRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	added := h.State.AddKnownPeer(peer.New(req.Host))
	if added && h.State.Worker != nil {
		h.State.Worker.SignalHeaderSync()
	}

	resp := struct {
		Added bool `json:"added"`
	}{
		Added: added,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// FlushCoins writes the coins layer to disk and drops it.
func (h Handlers) FlushCoins(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.FlushCoins(); err != nil {
		return fmt.Errorf("flushing coins: %w", err)
	}

	return web.Respond(ctx, w, struct {
		Status string `json:"status"`
	}{Status: "flushed"}, http.StatusOK)
}

// SyncCoins writes the coins layer to disk but keeps it warm.
func (h Handlers) SyncCoins(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := h.State.SyncCoins(); err != nil {
		return fmt.Errorf("syncing coins: %w", err)
	}

	return web.Respond(ctx, w, struct {
		Status string `json:"status"`
	}{Status: "synced"}, http.StatusOK)
}

// uncacheRequest identifies the cached outpoint to drop.
type uncacheRequest struct {
	TxID string `json:"txid" validate:"required,len=64,hexadecimal"`
	Vout uint32 `json:"vout"`
}

// Uncache drops the clean cache entry for an outpoint to reclaim memory.
// Entries carrying unflushed state are left alone.
func (h Handlers) Uncache(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req uncacheRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	txID, err := chainhash.NewHashFromStr(req.TxID)
	if err != nil {
		return v1.NewRequestError(fmt.Errorf("invalid transaction id: %w", err), http.StatusBadRequest)
	}

	h.State.UncacheCoin(coin.NewOutpoint(*txID, req.Vout))

	return web.Respond(ctx, w, struct {
		Status string `json:"status"`
	}{Status: "uncached"}, http.StatusOK)
}

// Status returns this node's view of the chain for peers probing us.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip := h.State.RetrieveTip()

	resp := peer.Status{
		TipHash:   tip.Hash.String(),
		TipHeight: tip.Height,
		Peers:     h.State.RetrieveKnownPeers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
