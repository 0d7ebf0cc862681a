// Package coin maintains the data model for unspent transaction outputs and
// the compact serialization used to store them.
package coin

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Outpoint references a specific output of a specific transaction. It is the
// key under which a coin is stored at every layer of the cache stack.
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// NewOutpoint constructs an outpoint from a transaction hash and output index.
func NewOutpoint(txID chainhash.Hash, index uint32) Outpoint {
	return Outpoint{
		TxID:  txID,
		Index: index,
	}
}

// Compare provides a total ordering over outpoints: lexicographic by
// transaction hash, then by output index.
func (op Outpoint) Compare(other Outpoint) int {
	if c := bytes.Compare(op.TxID[:], other.TxID[:]); c != 0 {
		return c
	}

	switch {
	case op.Index < other.Index:
		return -1
	case op.Index > other.Index:
		return 1
	}

	return 0
}

// String implements the fmt.Stringer interface.
func (op Outpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID.String(), op.Index)
}

// Key returns the serialized form of the outpoint used as the suffix of the
// persistent store key: the 32 byte transaction hash followed by the output
// index as a VarInt.
func (op Outpoint) Key() []byte {
	key := make([]byte, 0, chainhash.HashSize+5)
	key = append(key, op.TxID[:]...)
	key = AppendVarInt(key, uint64(op.Index))
	return key
}

// ParseOutpointKey reconstructs an outpoint from its serialized key form.
func ParseOutpointKey(key []byte) (Outpoint, error) {
	if len(key) < chainhash.HashSize+1 {
		return Outpoint{}, fmt.Errorf("outpoint key too short: %w", ErrDecode)
	}

	var op Outpoint
	copy(op.TxID[:], key[:chainhash.HashSize])

	index, n, err := ReadVarInt(key[chainhash.HashSize:])
	if err != nil {
		return Outpoint{}, err
	}
	if n != len(key)-chainhash.HashSize {
		return Outpoint{}, fmt.Errorf("trailing bytes in outpoint key: %w", ErrDecode)
	}
	if index > 0xffffffff {
		return Outpoint{}, fmt.Errorf("output index out of range: %w", ErrDecode)
	}
	op.Index = uint32(index)

	return op, nil
}

// =============================================================================

// Coin represents the data associated with an outpoint: the amount, the
// locking script, the height of the block that created it, and whether that
// transaction was a coinbase. A spent coin carries no data at all.
type Coin struct {
	Value    int64
	Height   uint32
	Coinbase bool
	Script   []byte

	spent bool
}

// New constructs an unspent coin.
func New(value int64, height uint32, coinbase bool, script []byte) Coin {
	return Coin{
		Value:    value,
		Height:   height,
		Coinbase: coinbase,
		Script:   script,
	}
}

// NewSpent constructs the canonical spent coin.
func NewSpent() Coin {
	return Coin{spent: true}
}

// Spent reports whether the coin has been spent. A spent coin compares equal
// to every other spent coin.
func (c Coin) Spent() bool {
	return c.spent
}

// Clear releases the coin's data and marks it spent.
func (c *Coin) Clear() {
	*c = Coin{spent: true}
}

// Equal reports whether two coins are equal. Two spent coins are always
// equal; otherwise equality is field-wise.
func (c Coin) Equal(other Coin) bool {
	if c.spent || other.spent {
		return c.spent == other.spent
	}

	return c.Value == other.Value &&
		c.Height == other.Height &&
		c.Coinbase == other.Coinbase &&
		bytes.Equal(c.Script, other.Script)
}

// DynamicMemoryUsage returns the number of heap bytes held by the coin beyond
// the struct itself, which is the backing array of the script.
func (c Coin) DynamicMemoryUsage() uint64 {
	return uint64(cap(c.Script))
}
