package utxo

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
)

// Per-entry accounting constants measured on a 64-bit platform. The map
// overhead approximation follows the number dcrd measured for its utxo cache.
const (
	entrySize   = 64
	mapOverhead = 57
)

// Cache is one in-memory overlay of the coin cache stack. A cache exclusively
// owns its map and holds a non-owning reference to its parent, which must
// outlive it. A cache is single-owner: callers sharing one across goroutines
// must wrap it themselves.
type Cache struct {
	parent View
	coins  map[coin.Outpoint]*entry
	best   chainhash.Hash
	usage  uint64
}

// NewCache constructs a cache layer over the given parent view.
func NewCache(parent View) *Cache {
	return &Cache{
		parent: parent,
		coins:  make(map[coin.Outpoint]*entry),
	}
}

// fetch resolves the entry for an outpoint at this layer, consulting the
// parent on a local miss. Both a parent hit and a parent miss are cached
// here, the latter as a clean spent entry.
func (c *Cache) fetch(op coin.Outpoint) *entry {
	if e, exists := c.coins[op]; exists {
		return e
	}

	e := &entry{}
	if pc, ok := c.parent.GetCoin(op); ok {
		e.coin = pc
	} else {
		e.coin = coin.NewSpent()
	}

	c.coins[op] = e
	c.usage += e.coin.DynamicMemoryUsage()

	return e
}

// AccessCoin returns the coin for the outpoint at this layer, fetching
// through to the parent if needed. A missing coin is returned in its spent
// form. The reference is stable until the next mutation of this layer.
func (c *Cache) AccessCoin(op coin.Outpoint) *coin.Coin {
	return &c.fetch(op).coin
}

// HaveCoin reports whether an unspent coin exists for the outpoint, with the
// same caching side effects as AccessCoin.
func (c *Cache) HaveCoin(op coin.Outpoint) bool {
	return !c.fetch(op).coin.Spent()
}

// HaveCoinInCache reports whether this layer already holds an unspent coin
// for the outpoint. It never consults the parent and never mutates the layer.
func (c *Cache) HaveCoinInCache(op coin.Outpoint) bool {
	e, exists := c.coins[op]
	return exists && !e.coin.Spent()
}

// AddCoin inserts or overwrites the coin for an outpoint. Overwriting an
// unspent coin requires possibleOverwrite and is otherwise a caller bug.
// Coinbase coins always permit overwrite: a later coinbase with an identical
// transaction hash legitimately replaces its predecessor.
func (c *Cache) AddCoin(op coin.Outpoint, cn coin.Coin, possibleOverwrite bool) {
	if cn.Spent() {
		panic("utxo: AddCoin called with a spent coin")
	}
	if cn.Coinbase {
		possibleOverwrite = true
	}

	var fresh bool

	e, exists := c.coins[op]
	switch {
	case !exists:
		e = &entry{}
		c.coins[op] = e

		// With no entry at this layer there is no evidence the parent holds
		// the outpoint, so a plain add may assume it does not.
		fresh = !possibleOverwrite

	case !e.coin.Spent():
		if !possibleOverwrite {
			panic(fmt.Sprintf("utxo: AddCoin overwriting unspent coin %s without overwrite permission", op))
		}
		c.usage -= e.coin.DynamicMemoryUsage()
		fresh = e.fresh()

	default:
		c.usage -= e.coin.DynamicMemoryUsage()
		fresh = e.fresh()
	}

	e.coin = cn
	e.flags = flagDirty
	if fresh {
		e.flags |= flagFresh
	}
	c.usage += e.coin.DynamicMemoryUsage()
}

// SpendCoin marks the coin for an outpoint spent, consulting the parent if
// this layer has no entry. A fresh entry is removed outright since no
// ancestor holds an unspent version. Reports whether an unspent coin was
// found.
func (c *Cache) SpendCoin(op coin.Outpoint) bool {
	e := c.fetch(op)
	if e.coin.Spent() {
		return false
	}

	c.usage -= e.coin.DynamicMemoryUsage()

	if e.fresh() {
		delete(c.coins, op)
		return true
	}

	e.coin.Clear()
	e.flags = flagDirty
	return true
}

// Uncache removes the entry for an outpoint when it carries no unflushed
// state, reclaiming memory. Dirty or fresh entries are left untouched.
func (c *Cache) Uncache(op coin.Outpoint) {
	e, exists := c.coins[op]
	if !exists || e.flags != 0 {
		return
	}

	c.usage -= e.coin.DynamicMemoryUsage()
	delete(c.coins, op)
}

// =============================================================================

// GetCoin implements the View interface for use by a child layer.
func (c *Cache) GetCoin(op coin.Outpoint) (coin.Coin, bool) {
	e := c.fetch(op)
	if e.coin.Spent() {
		return coin.Coin{}, false
	}
	return e.coin, true
}

// HasCoin implements the View interface for use by a child layer.
func (c *Cache) HasCoin(op coin.Outpoint) bool {
	return c.HaveCoin(op)
}

// BatchWrite merges a child layer's entries into this one.
func (c *Cache) BatchWrite(cur *Cursor, best chainhash.Hash) error {
	for {
		op, child, ok := cur.Next()
		if !ok {
			break
		}

		// Entries the child never modified carry no information.
		if !child.Dirty() {
			continue
		}

		c.mergeEntry(op, child)
	}

	c.best = best
	return nil
}

// mergeEntry collapses one dirty child entry into this layer.
func (c *Cache) mergeEntry(op coin.Outpoint, child CacheEntry) {
	e, exists := c.coins[op]
	if !exists {

		// A fresh child that died before ever being flushed: the coin's
		// entire existence was contained in the child pair and nothing
		// deeper needs to hear about it.
		if child.Fresh() && child.Coin.Spent() {
			return
		}

		e = &entry{coin: child.Coin, flags: flagDirty}
		if child.Fresh() {
			e.flags |= flagFresh
		}
		c.coins[op] = e
		c.usage += e.coin.DynamicMemoryUsage()
		return
	}

	// The child believed no ancestor held this coin, yet this layer holds an
	// unspent version: one of the two views is corrupt.
	if child.Fresh() && !e.coin.Spent() {
		panic(fmt.Sprintf("utxo: fresh child entry %s over an unspent parent entry", op))
	}

	if e.fresh() && child.Coin.Spent() {
		// The coin existed only from this layer up, so it collapses to
		// absence rather than to a recorded spend.
		c.usage -= e.coin.DynamicMemoryUsage()
		delete(c.coins, op)
		return
	}

	c.usage -= e.coin.DynamicMemoryUsage()
	e.coin = child.Coin
	c.usage += e.coin.DynamicMemoryUsage()
	e.flags |= flagDirty
}

// BestBlock returns the hash of the block whose state this layer represents,
// deferring to the parent until a flush or SetBestBlock records one here.
func (c *Cache) BestBlock() chainhash.Hash {
	if c.best == (chainhash.Hash{}) {
		c.best = c.parent.BestBlock()
	}
	return c.best
}

// SetBestBlock records the hash of the block the layer's contents now
// represent.
func (c *Cache) SetBestBlock(best chainhash.Hash) {
	c.best = best
}

// =============================================================================

// Flush writes every dirty entry into the parent and empties this layer.
func (c *Cache) Flush() error {
	if err := c.parent.BatchWrite(newCursor(c, true), c.BestBlock()); err != nil {
		return fmt.Errorf("flushing cache layer: %w", err)
	}

	c.coins = make(map[coin.Outpoint]*entry)
	c.usage = 0
	return nil
}

// Sync writes every dirty entry into the parent but retains the entries as
// clean cached copies. The map never grows during a sync.
func (c *Cache) Sync() error {
	if err := c.parent.BatchWrite(newCursor(c, false), c.BestBlock()); err != nil {
		return fmt.Errorf("syncing cache layer: %w", err)
	}

	for _, e := range c.coins {
		e.flags = 0
	}
	return nil
}

// =============================================================================

// Len returns the number of entries held at this layer.
func (c *Cache) Len() int {
	return len(c.coins)
}

// DynamicMemoryUsage returns the bytes consumed by this layer: the tracked
// coin footprints plus the approximated overhead of the map itself.
func (c *Cache) DynamicMemoryUsage() uint64 {
	return c.usage + uint64(len(c.coins))*(entrySize+mapOverhead)
}

// SelfTest re-derives the byte usage counter and checks the flag invariants
// of every entry. It is for use from tests and debug assertions.
func (c *Cache) SelfTest() error {
	var usage uint64

	for op, e := range c.coins {
		usage += e.coin.DynamicMemoryUsage()

		if e.fresh() && !e.dirty() {
			return fmt.Errorf("entry %s is fresh but not dirty", op)
		}
		if e.fresh() && e.coin.Spent() {
			return fmt.Errorf("entry %s is fresh and spent and still cached", op)
		}
	}

	if usage != c.usage {
		return fmt.Errorf("usage counter %d does not match recomputed %d", c.usage, usage)
	}

	return nil
}
