// Package utxo implements the layered cache of unspent transaction outputs
// that sits between block processing and the persistent store. Each layer is
// a write-back overlay over its parent; flushing collapses a layer's changes
// into the parent according to the DIRTY/FRESH merge rules.
package utxo

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
)

// View represents the behavior required to be implemented by anything that
// can sit below a cache layer: another cache layer or the persistent store.
type View interface {

	// GetCoin returns the unspent coin for the outpoint. A spent or unknown
	// outpoint reports false.
	GetCoin(op coin.Outpoint) (coin.Coin, bool)

	// HasCoin reports whether an unspent coin exists for the outpoint.
	HasCoin(op coin.Outpoint) bool

	// BatchWrite applies a child layer's entries to this view and records
	// the new best block hash.
	BatchWrite(cur *Cursor, best chainhash.Hash) error

	// BestBlock returns the hash of the block this view's contents represent.
	BestBlock() chainhash.Hash
}

// =============================================================================

// flags describe how a cache entry relates to the parent layer.
type flags uint8

const (
	// flagDirty marks an entry that differs from the parent and must be
	// propagated on flush.
	flagDirty flags = 1 << iota

	// flagFresh marks an entry whose outpoint has no unspent version in any
	// ancestor layer. Spending a fresh entry never needs to touch the parent.
	flagFresh
)

// entry wraps a coin with its cache flags.
type entry struct {
	coin  coin.Coin
	flags flags
}

func (e *entry) dirty() bool {
	return e.flags&flagDirty != 0
}

func (e *entry) fresh() bool {
	return e.flags&flagFresh != 0
}

// =============================================================================

// CacheEntry is the read-only form of a layer's entry as delivered to a
// parent during BatchWrite.
type CacheEntry struct {
	Coin coin.Coin

	dirty bool
	fresh bool
}

// Dirty reports whether the entry differs from the child's parent.
func (ce CacheEntry) Dirty() bool {
	return ce.dirty
}

// Fresh reports whether no ancestor of the child holds an unspent version.
func (ce CacheEntry) Fresh() bool {
	return ce.fresh
}

// Cursor streams one layer's entries into its parent's BatchWrite. Every
// entry is delivered exactly once, in map order.
type Cursor struct {
	cache   *Cache
	keys    []coin.Outpoint
	pos     int
	erasing bool
}

func newCursor(c *Cache, erasing bool) *Cursor {
	keys := make([]coin.Outpoint, 0, len(c.coins))
	for op := range c.coins {
		keys = append(keys, op)
	}

	return &Cursor{
		cache:   c,
		keys:    keys,
		erasing: erasing,
	}
}

// Erasing reports whether the child will drop its entries once the write
// completes. When true the parent may retain the delivered coins, script
// buffers included, without copying.
func (cur *Cursor) Erasing() bool {
	return cur.erasing
}

// Next returns the next entry of the child layer. The final value reports
// whether an entry was returned.
func (cur *Cursor) Next() (coin.Outpoint, CacheEntry, bool) {
	for cur.pos < len(cur.keys) {
		op := cur.keys[cur.pos]
		cur.pos++

		// Entries can disappear between snapshot and delivery only if the
		// caller mutates the layer mid-write, which the ownership rules
		// forbid, but skipping a hole is still the safe reaction.
		e, exists := cur.cache.coins[op]
		if !exists {
			continue
		}

		return op, CacheEntry{Coin: e.coin, dirty: e.dirty(), fresh: e.fresh()}, true
	}

	return coin.Outpoint{}, CacheEntry{}, false
}
