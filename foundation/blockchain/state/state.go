// Package state is the core API for the node and ties the coin cache stack,
// the header index, and the peer set together under one lock.
package state

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/genesis"
	"github.com/utxod/utxod/foundation/blockchain/headers"
	"github.com/utxod/utxod/foundation/blockchain/peer"
	"github.com/utxod/utxod/foundation/blockchain/utxo"
	"github.com/utxod/utxod/foundation/blockchain/utxo/utxodb"
)

// EventHandler defines a function that is called when events occur in the
// processing of blocks and headers.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for background cache flushing and header sync.
type Worker interface {
	Shutdown()
	SignalHeaderSync()
}

// =============================================================================

// Config represents the configuration required to start the node state.
type Config struct {
	Genesis          genesis.Genesis
	DBPath           string
	DBCacheBytes     int
	HeaderCacheBytes int
	KnownPeers       *peer.PeerSet
	EvHandler        EventHandler
}

// State manages the node's view of the coin set and the header chain.
type State struct {
	mu sync.Mutex

	genesis    genesis.Genesis
	cacheSizes CacheSizes
	evHandler  EventHandler
	knownPeers *peer.PeerSet

	store *utxodb.Store
	cache *utxo.Cache

	headerParams headers.Params
	checkPoW     func(*headers.BlockHeader) bool
	headerCache  int

	// The in-memory header index: every accepted header, genesis first,
	// with the hash chain kept alongside for locator building.
	headerIndex  []headers.BlockHeader
	headerHashes []chainhash.Hash

	Worker Worker
}

// New constructs a new state for node data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	genesisHeader, err := cfg.Genesis.BlockHeader()
	if err != nil {
		return nil, err
	}

	headerParams, err := cfg.Genesis.HeaderParams()
	if err != nil {
		return nil, err
	}

	powLimit, err := cfg.Genesis.PoWLimit()
	if err != nil {
		return nil, err
	}

	sizes := CalculateCacheSizes(cfg.DBCacheBytes)
	ev("state: cache budget: block tree %d, coins db %d, coins layer %d", sizes.BlockTreeDB, sizes.CoinsDB, sizes.Coins)

	// Access the durable coin store for the bottom of the cache stack.
	var store *utxodb.Store
	if cfg.DBPath != "" {
		store, err = utxodb.New(cfg.DBPath, sizes.CoinsDB, ev)
	} else {
		store, err = utxodb.NewMemory(ev)
	}
	if err != nil {
		return nil, err
	}

	state := State{
		genesis:      cfg.Genesis,
		cacheSizes:   sizes,
		evHandler:    ev,
		knownPeers:   cfg.KnownPeers,
		store:        store,
		cache:        utxo.NewCache(store),
		headerParams: headerParams,
		checkPoW:     headers.NewPoWChecker(powLimit),
		headerCache:  cfg.HeaderCacheBytes,
		headerIndex:  []headers.BlockHeader{genesisHeader},
		headerHashes: []chainhash.Hash{genesisHeader.Hash()},
	}

	return &state, nil
}

// Shutdown cleanly brings the state down, flushing unwritten coins.
func (s *State) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Flush(); err != nil {
		s.store.Close()
		return fmt.Errorf("final coin flush: %w", err)
	}

	return s.store.Close()
}

// =============================================================================
// Coin operations. The cache layer itself is single-owner; the state lock is
// what makes it shareable across the web and worker goroutines.

// QueryCoin returns the coin for an outpoint, reading through the cache
// stack to disk. The second return reports whether an unspent coin exists.
func (s *State) QueryCoin(op coin.Outpoint) (coin.Coin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.GetCoin(op)
}

// AddCoin records a new unspent coin.
func (s *State) AddCoin(op coin.Outpoint, c coin.Coin, possibleOverwrite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.AddCoin(op, c, possibleOverwrite)
}

// SpendCoin marks a coin spent, reporting whether an unspent coin existed.
func (s *State) SpendCoin(op coin.Outpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.SpendCoin(op)
}

// UncacheCoin drops a clean cache entry to reclaim memory.
func (s *State) UncacheCoin(op coin.Outpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Uncache(op)
}

// FlushCoins writes all dirty entries to disk and empties the cache layer.
func (s *State) FlushCoins() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Flush()
}

// SyncCoins writes all dirty entries to disk but keeps the cache warm.
func (s *State) SyncCoins() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.Sync()
}

// FlushCoinsIfNeeded flushes once the cache layer exceeds its memory budget.
// It reports whether a flush happened.
func (s *State) FlushCoinsIfNeeded() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.DynamicMemoryUsage() <= uint64(s.cacheSizes.Coins) {
		return false, nil
	}

	s.evHandler("state: coins layer over budget at %d bytes, flushing", s.cache.DynamicMemoryUsage())
	return true, s.cache.Flush()
}

// CacheStats summarizes the in-memory coins layer.
type CacheStats struct {
	Entries     int            `json:"entries"`
	MemoryBytes uint64         `json:"memory_bytes"`
	BudgetBytes int            `json:"budget_bytes"`
	BestBlock   chainhash.Hash `json:"best_block"`
}

// RetrieveCacheStats returns the current coins layer statistics.
func (s *State) RetrieveCacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CacheStats{
		Entries:     s.cache.Len(),
		MemoryBytes: s.cache.DynamicMemoryUsage(),
		BudgetBytes: s.cacheSizes.Coins,
		BestBlock:   s.cache.BestBlock(),
	}
}

// RetrieveStoreStats walks the persistent store and summarizes it.
func (s *State) RetrieveStoreStats() (utxodb.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.GatherStats()
}

// =============================================================================

// RetrieveGenesis returns a copy of the chain parameters.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveKnownPeers returns the current set of known peers.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy("")
}

// AddKnownPeer records a peer to sync from. It reports whether the peer was
// not already known.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	return s.knownPeers.Add(p)
}
