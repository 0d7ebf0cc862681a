// Package headers implements block header handling and the two-phase
// pre-sync state machine that verifies a peer's header chain carries enough
// cumulative proof of work before any of it is admitted to memory.
package headers

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SerializedSize is the wire size of a block header in bytes.
const SerializedSize = 80

// BlockHeader is the fixed 80 byte header that commits to a block.
type BlockHeader struct {
	Version    int32          `json:"version"`
	PrevHash   chainhash.Hash `json:"prev_hash"`
	MerkleRoot chainhash.Hash `json:"merkle_root"`
	Time       uint32         `json:"time"`
	Bits       uint32         `json:"bits"`
	Nonce      uint32         `json:"nonce"`
}

// Serialize returns the 80 byte wire form of the header.
func (bh BlockHeader) Serialize() []byte {
	buf := make([]byte, SerializedSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(bh.Version))
	copy(buf[4:36], bh.PrevHash[:])
	copy(buf[36:68], bh.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], bh.Time)
	binary.LittleEndian.PutUint32(buf[72:76], bh.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], bh.Nonce)
	return buf
}

// Deserialize parses the 80 byte wire form of a header.
func Deserialize(buf []byte) (BlockHeader, error) {
	if len(buf) != SerializedSize {
		return BlockHeader{}, fmt.Errorf("header must be %d bytes, have %d", SerializedSize, len(buf))
	}

	var bh BlockHeader
	bh.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(bh.PrevHash[:], buf[4:36])
	copy(bh.MerkleRoot[:], buf[36:68])
	bh.Time = binary.LittleEndian.Uint32(buf[68:72])
	bh.Bits = binary.LittleEndian.Uint32(buf[72:76])
	bh.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	return bh, nil
}

// Hash returns the double SHA-256 hash of the serialized header.
func (bh BlockHeader) Hash() chainhash.Hash {
	return chainhash.DoubleHashH(bh.Serialize())
}

// =============================================================================

// compressedHeader is the form buffered during redownload: the previous block
// hash is dropped since it is recoverable by chaining from the buffer head.
type compressedHeader struct {
	version    int32
	merkleRoot chainhash.Hash
	time       uint32
	bits       uint32
	nonce      uint32
}

func compress(bh BlockHeader) compressedHeader {
	return compressedHeader{
		version:    bh.Version,
		merkleRoot: bh.MerkleRoot,
		time:       bh.Time,
		bits:       bh.Bits,
		nonce:      bh.Nonce,
	}
}

// expand reconstructs the full header given the hash of its predecessor.
func (ch compressedHeader) expand(prevHash chainhash.Hash) BlockHeader {
	return BlockHeader{
		Version:    ch.version,
		PrevHash:   prevHash,
		MerkleRoot: ch.merkleRoot,
		Time:       ch.time,
		Bits:       ch.bits,
		Nonce:      ch.nonce,
	}
}

// =============================================================================

var (
	bigOne = big.NewInt(1)

	// oneLsh256 is 2^256, the numerator when converting a target into an
	// expected work count.
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// CompactToTarget converts the compact bits representation into the full
// 256 bit target. The second return reports whether the value is negative or
// overflows 256 bits, both of which make the target unusable.
func CompactToTarget(bits uint32) (*big.Int, bool) {
	mantissa := int64(bits & 0x007fffff)
	exponent := uint(bits >> 24)
	negative := bits&0x00800000 != 0

	var target *big.Int
	if exponent <= 3 {
		target = big.NewInt(mantissa >> (8 * (3 - exponent)))
	} else {
		target = new(big.Int).Lsh(big.NewInt(mantissa), 8*(exponent-3))
	}

	overflow := mantissa != 0 && (exponent > 34 ||
		(mantissa > 0xff && exponent > 33) ||
		(mantissa > 0xffff && exponent > 32))

	return target, negative || overflow
}

// WorkFromBits returns the expected number of hashes needed to find a block
// at the given difficulty: 2^256 / (target + 1). An unusable target counts
// for nothing.
func WorkFromBits(bits uint32) *big.Int {
	target, bad := CompactToTarget(bits)
	if bad || target.Sign() <= 0 {
		return new(big.Int)
	}

	denom := new(big.Int).Add(target, bigOne)
	return denom.Div(oneLsh256, denom)
}

// NewPoWChecker returns the standard proof of work predicate for the given
// proof of work limit. The pre-sync machine takes the predicate as a
// collaborator so tests and other chains can substitute their own.
func NewPoWChecker(powLimit *big.Int) func(*BlockHeader) bool {
	return func(bh *BlockHeader) bool {
		target, bad := CompactToTarget(bh.Bits)
		if bad || target.Sign() <= 0 || target.Cmp(powLimit) > 0 {
			return false
		}

		return hashToBig(bh.Hash()).Cmp(target) <= 0
	}
}

// hashToBig interprets the little endian hash as a big endian integer.
func hashToBig(h chainhash.Hash) *big.Int {
	var buf [chainhash.HashSize]byte
	for i := range buf {
		buf[i] = h[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(buf[:])
}
