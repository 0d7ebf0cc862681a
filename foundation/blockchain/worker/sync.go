package worker

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utxod/utxod/foundation/blockchain/headers"
	"github.com/utxod/utxod/foundation/blockchain/peer"
)

// headerSyncOperations handles pulling new headers from the known peers.
func (w *Worker) headerSyncOperations() {
	w.evHandler("worker: headerSyncOperations: G started")
	defer w.evHandler("worker: headerSyncOperations: G completed")

	for {
		select {
		case <-w.startSync:
			if w.isShutdown() {
				return
			}
			w.runHeaderSync()

		case <-w.syncTicker.C:
			if w.isShutdown() {
				return
			}
			w.runHeaderSync()

		case <-w.shut:
			w.evHandler("worker: headerSyncOperations: received shut signal")
			return
		}
	}
}

// runHeaderSync performs a full header sync round against every known peer.
func (w *Worker) runHeaderSync() {
	w.evHandler("worker: runHeaderSync: HEADERS: started")
	defer w.evHandler("worker: runHeaderSync: HEADERS: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		if w.isShutdown() {
			return
		}

		if err := w.syncHeadersFromPeer(pr); err != nil {
			w.evHandler("worker: runHeaderSync: HEADERS: peer %s: ERROR: %s", pr.Host, err)
		}
	}
}

// syncHeadersFromPeer drives one pre-sync instance to completion against a
// single peer, accepting whatever the machine releases along the way.
func (w *Worker) syncHeadersFromPeer(pr peer.Peer) error {
	sync := w.state.NewHeadersSync()
	max := w.state.RetrieveGenesis().MaxHeadersResults

	for {
		batch, full, err := w.queryPeerHeaders(pr, sync.NextHeadersRequestLocator(), max)
		if err != nil {
			return err
		}

		result := sync.ProcessNextHeaders(batch, full)

		if len(result.PoWValidatedHeaders) > 0 {
			accepted, err := w.state.AcceptHeaders(result.PoWValidatedHeaders)
			if err != nil {
				return fmt.Errorf("accepting %d headers after %d: %w", len(result.PoWValidatedHeaders), accepted, err)
			}
		}

		if !result.RequestMore {
			if !result.Success {
				return fmt.Errorf("peer failed header chain verification in state %s", sync.State())
			}
			return nil
		}

		// A peer with nothing more to give can't move the machine forward.
		if len(batch) == 0 {
			return nil
		}

		if w.isShutdown() {
			return nil
		}
	}
}

// =============================================================================

// headersRequest is the wire form of a locator based header query.
type headersRequest struct {
	Locator []string `json:"locator"`
	Max     int      `json:"max"`
}

// headersResponse carries headers in their serialized hex form.
type headersResponse struct {
	Headers []string `json:"headers"`
	Full    bool     `json:"full"`
}

// queryPeerHeaders asks a peer for the headers that follow our locator.
func (w *Worker) queryPeerHeaders(pr peer.Peer, loc headers.Locator, max int) ([]headers.BlockHeader, bool, error) {
	req := headersRequest{
		Locator: make([]string, len(loc)),
		Max:     max,
	}
	for i := range loc {
		req.Locator[i] = loc[i].String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}

	url := fmt.Sprintf("http://%s/v1/node/headers", pr.Host)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	var hr headersResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, false, err
	}

	batch := make([]headers.BlockHeader, len(hr.Headers))
	for i, raw := range hr.Headers {
		buf, err := hex.DecodeString(raw)
		if err != nil {
			return nil, false, fmt.Errorf("peer sent malformed header hex: %w", err)
		}
		if batch[i], err = headers.Deserialize(buf); err != nil {
			return nil, false, err
		}
	}

	return batch, hr.Full, nil
}
