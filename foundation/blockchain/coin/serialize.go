package coin

import (
	"errors"
	"fmt"
	"math"
)

// ErrDecode is the sentinel wrapped by every deserialization failure. Callers
// distinguish malformed data from programming faults by checking against it.
var ErrDecode = errors.New("malformed coin data")

// A coin serializes as three VarInts followed by the script payload:
//
//	VarInt( height<<1 | coinbase )
//	VarInt( compressed amount )
//	VarInt( script class ) + payload
//
// Script classes 0-5 are the compressed templates with a fixed payload size;
// any larger class encodes a raw script of class-6 bytes.

// Encode returns the compact serialization of an unspent coin. Spent coins
// are represented as absence in the store and must never be encoded; asking
// for one is a caller bug.
func (c Coin) Encode() []byte {
	if c.spent {
		panic("coin: encode of a spent coin")
	}

	buf := make([]byte, 0, 16+len(c.Script))

	code := uint64(c.Height) << 1
	if c.Coinbase {
		code |= 1
	}
	buf = AppendVarInt(buf, code)
	buf = AppendVarInt(buf, CompressAmount(uint64(c.Value)))

	if compressed := compressScript(c.Script); compressed != nil {
		buf = AppendVarInt(buf, uint64(compressed[0]))
		buf = append(buf, compressed[1:]...)
		return buf
	}

	buf = AppendVarInt(buf, uint64(len(c.Script))+numSpecialScripts)
	buf = append(buf, c.Script...)
	return buf
}

// Decode parses the compact serialization of a coin, consuming the entire
// input. All failures wrap ErrDecode.
func Decode(b []byte) (Coin, error) {
	code, n, err := ReadVarInt(b)
	if err != nil {
		return Coin{}, err
	}
	off := n

	if code>>1 > math.MaxUint32 {
		return Coin{}, fmt.Errorf("height out of range: %w", ErrDecode)
	}

	var c Coin
	c.Height = uint32(code >> 1)
	c.Coinbase = code&1 == 1

	amount, n, err := ReadVarInt(b[off:])
	if err != nil {
		return Coin{}, err
	}
	off += n

	value := DecompressAmount(amount)
	if value > math.MaxInt64 {
		return Coin{}, fmt.Errorf("amount out of range: %w", ErrDecode)
	}
	c.Value = int64(value)

	class, n, err := ReadVarInt(b[off:])
	if err != nil {
		return Coin{}, err
	}
	off += n

	if class < numSpecialScripts {
		size := specialScriptPayloadSize(class)
		if len(b)-off != size {
			return Coin{}, fmt.Errorf("script payload length mismatch: %w", ErrDecode)
		}
		c.Script = decompressScript(class, b[off:])
		return c, nil
	}

	size := class - numSpecialScripts
	if size != uint64(len(b)-off) {
		return Coin{}, fmt.Errorf("script length runs past end: %w", ErrDecode)
	}

	c.Script = make([]byte, size)
	copy(c.Script, b[off:])
	return c, nil
}
