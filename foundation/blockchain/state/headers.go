package state

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/headers"
)

// Tip describes the current head of the header chain.
type Tip struct {
	Hash   chainhash.Hash `json:"hash"`
	Height uint32         `json:"height"`
}

// RetrieveTip returns the current head of the header index.
func (s *State) RetrieveTip() Tip {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Tip{
		Hash:   s.headerHashes[len(s.headerHashes)-1],
		Height: uint32(len(s.headerHashes) - 1),
	}
}

// NewHeadersSync constructs a pre-sync instance anchored at the current tip,
// for verifying one peer's chain.
func (s *State) NewHeadersSync() *headers.PreSync {
	s.mu.Lock()
	defer s.mu.Unlock()

	return headers.NewPreSync(headers.Config{
		ChainStart: headers.ChainStart{
			Hash:    s.headerHashes[len(s.headerHashes)-1],
			Height:  uint32(len(s.headerHashes) - 1),
			Work:    s.indexWork(),
			Locator: headers.BuildLocator(s.headerHashes),
		},
		Params:           s.headerParams,
		CheckPoW:         s.checkPoW,
		HeaderCacheBytes: s.headerCache,
		EvHandler:        s.evHandler,
	})
}

// AcceptHeaders appends pre-sync validated headers to the header index. Each
// header must connect to the current tip. It returns how many were accepted.
func (s *State) AcceptHeaders(batch []headers.BlockHeader) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range batch {
		tip := s.headerHashes[len(s.headerHashes)-1]
		if batch[i].PrevHash != tip {
			return i, fmt.Errorf("header %d does not connect to tip %s", i, tip)
		}
		if !s.checkPoW(&batch[i]) {
			return i, fmt.Errorf("header %d fails proof of work", i)
		}

		s.headerIndex = append(s.headerIndex, batch[i])
		s.headerHashes = append(s.headerHashes, batch[i].Hash())
	}

	if len(batch) > 0 {
		s.evHandler("state: accepted %d headers, tip now %s at height %d",
			len(batch), s.headerHashes[len(s.headerHashes)-1], len(s.headerHashes)-1)
	}

	return len(batch), nil
}

// HeadersSince serves a peer's locator: it finds the highest locator hash in
// our index and returns up to max headers that follow it, reporting whether
// the response filled the limit.
func (s *State) HeadersSince(locator headers.Locator, max int) ([]headers.BlockHeader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	for _, want := range locator {
		if at := s.findHeight(want); at >= 0 {
			start = at
			break
		}
	}

	from := start + 1
	if from >= len(s.headerIndex) {
		return nil, false
	}

	to := from + max
	if to > len(s.headerIndex) {
		to = len(s.headerIndex)
	}

	out := make([]headers.BlockHeader, to-from)
	copy(out, s.headerIndex[from:to])

	return out, len(out) == max
}

// findHeight returns the height of a hash in the index, or -1.
func (s *State) findHeight(h chainhash.Hash) int {
	for i := len(s.headerHashes) - 1; i >= 0; i-- {
		if s.headerHashes[i] == h {
			return i
		}
	}
	return -1
}

// indexWork sums the work of every header in the index above genesis; the
// genesis header's own work is not counted.
func (s *State) indexWork() *big.Int {
	work := new(big.Int)
	for i := 1; i < len(s.headerIndex); i++ {
		work.Add(work, headers.WorkFromBits(s.headerIndex[i].Bits))
	}
	return work
}
