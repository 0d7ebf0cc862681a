// Package utxodb implements the persistent bottom of the coin cache stack on
// a LevelDB key/value store, using the on-disk layout of a chainstate
// database: coin records under a one byte prefix keyed by outpoint, the best
// block hash under its own reserved key, and all values XORed with a per
// database obfuscation key.
package utxodb

import (
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/utxo"
)

// Key layout. Coins live under 'C' with the serialized outpoint as suffix,
// the best block hash under 'B'. The obfuscation key record predates both and
// keeps its historical raw form.
var (
	coinPrefix   = []byte{0x43} // 'C'
	bestBlockKey = []byte{0x42} // 'B'
	obfuscateKey = append([]byte{0x0e, 0x00}, []byte("obfuscate_key")...)
)

// Store is the durable key/value backend at the bottom of the cache stack.
// Reads may be shared across goroutines; writes arrive serialized through the
// owning cache layer's flush.
type Store struct {
	db        *leveldb.DB
	xorKey    []byte
	evHandler func(v string, args ...any)
}

// New opens or creates the coin database at the given path with the given
// cache budget in bytes: half of it sizes the block cache and a quarter the
// write buffer.
func New(path string, cacheBytes int, evHandler func(v string, args ...any)) (*Store, error) {
	db, err := leveldb.OpenFile(path, options(cacheBytes))
	if err != nil {
		return nil, fmt.Errorf("opening coin database: %w", err)
	}

	return prepare(db, evHandler)
}

// NewMemory constructs a store backed by memory only, for tests and tooling.
func NewMemory(evHandler func(v string, args ...any)) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), options(0))
	if err != nil {
		return nil, fmt.Errorf("opening in-memory coin database: %w", err)
	}

	return prepare(db, evHandler)
}

// options configures LevelDB the way a chainstate database expects: values
// are already compact so compression buys nothing.
func options(cacheBytes int) *opt.Options {
	o := opt.Options{
		Compression: opt.NoCompression,
	}
	if cacheBytes > 0 {
		o.BlockCacheCapacity = cacheBytes / 2
		o.WriteBuffer = cacheBytes / 4
	}
	return &o
}

// prepare loads the obfuscation key, creating it on first open.
func prepare(db *leveldb.DB, evHandler func(v string, args ...any)) (*Store, error) {
	s := Store{
		db: db,
		evHandler: func(v string, args ...any) {
			if evHandler != nil {
				evHandler(v, args...)
			}
		},
	}

	value, err := db.Get(obfuscateKey, nil)
	switch {
	case err == nil:
		if len(value) != 9 || value[0] != 8 {
			return nil, fmt.Errorf("malformed obfuscation key record length %d", len(value))
		}
		s.xorKey = value[1:]

	case err == leveldb.ErrNotFound:
		key := make([]byte, 9)
		key[0] = 8
		if _, err := rand.Read(key[1:]); err != nil {
			return nil, fmt.Errorf("generating obfuscation key: %w", err)
		}
		if err := db.Put(obfuscateKey, key, nil); err != nil {
			return nil, fmt.Errorf("storing obfuscation key: %w", err)
		}
		s.xorKey = key[1:]

	default:
		return nil, fmt.Errorf("reading obfuscation key: %w", err)
	}

	s.evHandler("utxodb: obfuscation key: %x", s.xorKey)

	return &s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================

// GetCoin returns the unspent coin stored for the outpoint. Spent coins are
// represented as absence, so they always report false.
func (s *Store) GetCoin(op coin.Outpoint) (coin.Coin, bool) {
	value, err := s.db.Get(s.coinKey(op), nil)
	if err != nil {
		if err != leveldb.ErrNotFound {
			s.evHandler("utxodb: read %s: ERROR: %v", op, err)
		}
		return coin.Coin{}, false
	}

	c, err := coin.Decode(s.xor(value))
	if err != nil {
		s.evHandler("utxodb: decode %s: ERROR: %v", op, err)
		return coin.Coin{}, false
	}

	return c, true
}

// HasCoin reports whether an unspent coin is stored for the outpoint.
func (s *Store) HasCoin(op coin.Outpoint) bool {
	has, err := s.db.Has(s.coinKey(op), nil)
	if err != nil {
		s.evHandler("utxodb: has %s: ERROR: %v", op, err)
		return false
	}
	return has
}

// BatchWrite drains a cache layer's entries into a single atomic LevelDB
// batch. Spent coins become deletes; the best block hash rides in the same
// batch so the store never represents a state between blocks.
func (s *Store) BatchWrite(cur *utxo.Cursor, best chainhash.Hash) error {
	batch := new(leveldb.Batch)

	var writes, deletes int
	for {
		op, ce, ok := cur.Next()
		if !ok {
			break
		}
		if !ce.Dirty() {
			continue
		}

		if ce.Coin.Spent() {
			batch.Delete(s.coinKey(op))
			deletes++
			continue
		}

		batch.Put(s.coinKey(op), s.xor(ce.Coin.Encode()))
		writes++
	}

	if best != (chainhash.Hash{}) {
		batch.Put(bestBlockKey, s.xor(best[:]))
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("writing coin batch: %w", err)
	}

	s.evHandler("utxodb: batch write: %d puts, %d deletes", writes, deletes)

	return nil
}

// BestBlock returns the stored best block hash, or the zero hash when the
// database is new.
func (s *Store) BestBlock() chainhash.Hash {
	value, err := s.db.Get(bestBlockKey, nil)
	if err != nil {
		return chainhash.Hash{}
	}

	var h chainhash.Hash
	copy(h[:], s.xor(value))
	return h
}

// =============================================================================

// Stats holds a summary of the stored coin set.
type Stats struct {
	Coins      int            `json:"coins"`
	TotalValue int64          `json:"total_value"`
	DiskBytes  int            `json:"disk_bytes"`
	BestBlock  chainhash.Hash `json:"best_block"`
}

// GatherStats walks the coin namespace and summarizes it. It takes time
// proportional to the stored coin count.
func (s *Store) GatherStats() (Stats, error) {
	stats := Stats{BestBlock: s.BestBlock()}

	iter := s.db.NewIterator(util.BytesPrefix(coinPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		c, err := coin.Decode(s.xor(iter.Value()))
		if err != nil {
			return Stats{}, fmt.Errorf("decoding stored coin: %w", err)
		}

		stats.Coins++
		stats.TotalValue += c.Value
		stats.DiskBytes += len(iter.Key()) + len(iter.Value())
	}

	if err := iter.Error(); err != nil {
		return Stats{}, fmt.Errorf("iterating coin namespace: %w", err)
	}

	return stats, nil
}

// =============================================================================

// coinKey forms the storage key for an outpoint.
func (s *Store) coinKey(op coin.Outpoint) []byte {
	return append(coinPrefix[:1:1], op.Key()...)
}

// xor applies the obfuscation key, repeated to length, over a copy of the
// value. The operation is its own inverse.
func (s *Store) xor(value []byte) []byte {
	out := make([]byte, len(value))
	for i := range value {
		out[i] = value[i] ^ s.xorKey[i%len(s.xorKey)]
	}
	return out
}
