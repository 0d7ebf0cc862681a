package coin

import (
	"math/big"
)

// Script compression classes. The first six size codes identify common
// script templates whose payload can be stored in 20 or 32 bytes; any other
// code encodes the raw script length plus the class offset.
const (
	scriptClassP2PKH        = 0x00 // 20 byte key hash
	scriptClassP2SH         = 0x01 // 20 byte script hash
	scriptClassP2PKEven     = 0x02 // 32 byte x coordinate, even y
	scriptClassP2PKOdd      = 0x03 // 32 byte x coordinate, odd y
	scriptClassP2PKFullEven = 0x04 // 32 byte x coordinate of an uncompressed key, even y
	scriptClassP2PKFullOdd  = 0x05 // 32 byte x coordinate of an uncompressed key, odd y

	numSpecialScripts = 6
)

// CompressAmount maps an amount to a smaller integer so that round values,
// which dominate real output sets, serialize to one or two bytes. The scheme
// is mantissa/exponent: trailing decimal zeros become the exponent.
func CompressAmount(n uint64) uint64 {
	if n == 0 {
		return 0
	}

	var e uint64
	for n%10 == 0 && e < 9 {
		n /= 10
		e++
	}

	if e < 9 {
		d := n % 10
		n /= 10
		return 1 + (n*9+d-1)*10 + e
	}

	return 1 + (n-1)*10 + 9
}

// DecompressAmount inverts CompressAmount.
func DecompressAmount(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	x--

	e := x % 10
	x /= 10

	var n uint64
	if e < 9 {
		d := x%9 + 1
		x /= 9
		n = x*10 + d
	} else {
		n = x + 1
	}

	for ; e > 0; e-- {
		n *= 10
	}

	return n
}

// =============================================================================

// compressScript returns the compact form of a locking script when it matches
// one of the special templates, or nil when it must be stored raw.
func compressScript(script []byte) []byte {
	switch {
	case isPayToPubKeyHash(script):
		out := make([]byte, 21)
		out[0] = scriptClassP2PKH
		copy(out[1:], script[3:23])
		return out

	case isPayToScriptHash(script):
		out := make([]byte, 21)
		out[0] = scriptClassP2SH
		copy(out[1:], script[2:22])
		return out

	case isPayToCompressedPubKey(script):
		out := make([]byte, 33)
		out[0] = script[1] // 0x02 or 0x03
		copy(out[1:], script[2:34])
		return out

	case isPayToUncompressedPubKey(script):
		out := make([]byte, 33)
		out[0] = scriptClassP2PKFullEven | script[65]&1
		copy(out[1:], script[2:34])
		return out
	}

	return nil
}

// decompressScript expands a special script class back into the full locking
// script. The payload length is fixed by the class.
func decompressScript(class uint64, payload []byte) []byte {
	switch class {
	case scriptClassP2PKH:
		script := make([]byte, 25)
		script[0] = 0x76 // OP_DUP
		script[1] = 0xa9 // OP_HASH160
		script[2] = 20
		copy(script[3:], payload)
		script[23] = 0x88 // OP_EQUALVERIFY
		script[24] = 0xac // OP_CHECKSIG
		return script

	case scriptClassP2SH:
		script := make([]byte, 23)
		script[0] = 0xa9 // OP_HASH160
		script[1] = 20
		copy(script[2:], payload)
		script[22] = 0x87 // OP_EQUAL
		return script

	case scriptClassP2PKEven, scriptClassP2PKOdd:
		script := make([]byte, 35)
		script[0] = 33
		script[1] = byte(class)
		copy(script[2:], payload)
		script[34] = 0xac // OP_CHECKSIG
		return script

	case scriptClassP2PKFullEven, scriptClassP2PKFullOdd:
		compressed := make([]byte, 33)
		compressed[0] = byte(class - scriptClassP2PKFullEven + 0x02)
		copy(compressed[1:], payload)

		script := make([]byte, 67)
		script[0] = 65
		copy(script[1:], decompressPublicKey(compressed))
		script[66] = 0xac // OP_CHECKSIG
		return script
	}

	return nil
}

// specialScriptPayloadSize returns the payload size for a special class.
func specialScriptPayloadSize(class uint64) int {
	if class < 2 {
		return 20
	}
	return 32
}

func isPayToPubKeyHash(script []byte) bool {
	return len(script) == 25 &&
		script[0] == 0x76 && script[1] == 0xa9 && script[2] == 20 &&
		script[23] == 0x88 && script[24] == 0xac
}

func isPayToScriptHash(script []byte) bool {
	return len(script) == 23 &&
		script[0] == 0xa9 && script[1] == 20 && script[22] == 0x87
}

func isPayToCompressedPubKey(script []byte) bool {
	return len(script) == 35 &&
		script[0] == 33 && script[34] == 0xac &&
		(script[1] == 0x02 || script[1] == 0x03)
}

func isPayToUncompressedPubKey(script []byte) bool {
	return len(script) == 67 &&
		script[0] == 65 && script[66] == 0xac && script[1] == 0x04
}

// =============================================================================

// secp256k1P is the field prime for the curve the public keys live on.
var secp256k1P, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)

// decompressPublicKey recovers the full 65 byte public key from its 33 byte
// compressed form by solving y^2 = x^3 + 7 over the curve's field. The square
// root is y^((p+1)/4) since p = 3 mod 4.
func decompressPublicKey(publickey []byte) []byte {
	prefix := publickey[0]
	x := new(big.Int).SetBytes(publickey[1:])

	p := secp256k1P
	x3 := new(big.Int).Exp(x, big.NewInt(3), p)
	ySq := new(big.Int).Mod(new(big.Int).Add(x3, big.NewInt(7)), p)

	exp := new(big.Int).Div(new(big.Int).Add(p, big.NewInt(1)), big.NewInt(4))
	y := new(big.Int).Exp(ySq, exp, p)

	// The root found may have the wrong parity; the other root is p-y.
	if uint(y.Bit(0)) != uint(prefix&1) {
		y = new(big.Int).Mod(new(big.Int).Sub(p, y), p)
	}

	uncompressed := make([]byte, 65)
	uncompressed[0] = 0x04
	x.FillBytes(uncompressed[1:33])
	y.FillBytes(uncompressed[33:65])

	return uncompressed
}
