package coin_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex in test table: %v", err)
	}
	return b
}

func Test_CoinSerialization(t *testing.T) {
	type table struct {
		name     string
		data     string
		coinbase bool
		height   uint32
		value    int64
		script   string
	}

	tt := []table{
		{
			name:   "p2pkh large amount",
			data:   "97f23c835800816115944e077fe7c803cfa57f29b36bf87c1d35",
			height: 203998,
			value:  60_000_000_000,
			script: "76a914816115944e077fe7c803cfa57f29b36bf87c1d3588ac",
		},
		{
			name:     "coinbase p2pkh",
			data:     "8ddf77bbd123008c988f1a4a4de2161e0f50aac7f17e7f9555caa4",
			coinbase: true,
			height:   120891,
			value:    110397,
			script:   "76a9148c988f1a4a4de2161e0f50aac7f17e7f9555caa488ac",
		},
		{
			name:   "empty script",
			data:   "000006",
			height: 0,
			value:  0,
			script: "",
		},
	}

	t.Log("Given the need to decode and re-encode stored coins.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling the %s vector.", testID, tst.name)
			{
				f := func(t *testing.T) {
					c, err := coin.Decode(mustHex(t, tst.data))
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to decode the coin: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to decode the coin.", success, testID)

					if c.Spent() {
						t.Fatalf("\t%s\tTest %d:\tShould decode to an unspent coin.", failed, testID)
					}
					if c.Height != tst.height || c.Coinbase != tst.coinbase || c.Value != tst.value {
						t.Errorf("\t%s\tTest %d:\tShould decode the header fields.", failed, testID)
						t.Logf("\t%s\tTest %d:\tgot: height %d coinbase %v value %d", failed, testID, c.Height, c.Coinbase, c.Value)
						t.Logf("\t%s\tTest %d:\texp: height %d coinbase %v value %d", failed, testID, tst.height, tst.coinbase, tst.value)
					} else {
						t.Logf("\t%s\tTest %d:\tShould decode the header fields.", success, testID)
					}

					if !bytes.Equal(c.Script, mustHex(t, tst.script)) {
						t.Errorf("\t%s\tTest %d:\tShould decompress the script, got %x.", failed, testID, c.Script)
					} else {
						t.Logf("\t%s\tTest %d:\tShould decompress the script.", success, testID)
					}

					if got := hex.EncodeToString(c.Encode()); got != tst.data {
						t.Errorf("\t%s\tTest %d:\tShould re-encode to the original bytes.", failed, testID)
						t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.data)
					} else {
						t.Logf("\t%s\tTest %d:\tShould re-encode to the original bytes.", success, testID)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_CoinDecodeFailures(t *testing.T) {
	tt := []struct {
		name string
		data string
	}{
		{name: "script length runs one byte past end", data: "000007"},
		{name: "declared multi-gigabyte script", data: "00008a95c0bb00"},
		{name: "empty input", data: ""},
		{name: "truncated amount", data: "97f23c"},
	}

	t.Log("Given the need to reject malformed coin data.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen decoding %q.", testID, tst.data)
			{
				f := func(t *testing.T) {
					if _, err := coin.Decode(mustHex(t, tst.data)); err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject the input.", failed, testID)
					} else if !errors.Is(err, coin.ErrDecode) {
						t.Fatalf("\t%s\tTest %d:\tShould report a decode error, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould reject the input with a decode error.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_AmountCompression(t *testing.T) {
	amounts := []uint64{0, 1, 9, 10, 100, 546, 110397, 100_000_000, 2_100_000_000_000_000, 60_000_000_000}

	t.Log("Given the need to round-trip amounts through compression.")
	{
		for testID, n := range amounts {
			if got := coin.DecompressAmount(coin.CompressAmount(n)); got != n {
				t.Errorf("\t%s\tTest %d:\tShould round-trip %d, got %d.", failed, testID, n, got)
			} else {
				t.Logf("\t%s\tTest %d:\tShould round-trip %d.", success, testID, n)
			}
		}
	}
}

func Test_CoinEquality(t *testing.T) {
	t.Log("Given the need to compare coins.")
	{
		a := coin.New(5000, 10, false, mustHex(t, "76a914816115944e077fe7c803cfa57f29b36bf87c1d3588ac"))
		b := a
		if !a.Equal(b) {
			t.Fatalf("\t%s\tShould treat identical coins as equal.", failed)
		}
		t.Logf("\t%s\tShould treat identical coins as equal.", success)

		b.Value++
		if a.Equal(b) {
			t.Fatalf("\t%s\tShould treat differing values as unequal.", failed)
		}
		t.Logf("\t%s\tShould treat differing values as unequal.", success)

		spentA := coin.NewSpent()
		spentB := a
		spentB.Clear()
		if !spentA.Equal(spentB) {
			t.Fatalf("\t%s\tShould treat any two spent coins as equal.", failed)
		}
		t.Logf("\t%s\tShould treat any two spent coins as equal.", success)

		if spentA.Equal(a) {
			t.Fatalf("\t%s\tShould treat spent and unspent coins as unequal.", failed)
		}
		t.Logf("\t%s\tShould treat spent and unspent coins as unequal.", success)
	}
}

func Test_OutpointKey(t *testing.T) {
	t.Log("Given the need to round-trip outpoints through their key form.")
	{
		var txID chainhash.Hash
		for i := range txID {
			txID[i] = byte(i)
		}

		op := coin.NewOutpoint(txID, 7)
		back, err := coin.ParseOutpointKey(op.Key())
		if err != nil {
			t.Fatalf("\t%s\tShould parse the key back: %v", failed, err)
		}
		t.Logf("\t%s\tShould parse the key back.", success)

		if back.Compare(op) != 0 {
			t.Fatalf("\t%s\tShould get the original outpoint back.", failed)
		}
		t.Logf("\t%s\tShould get the original outpoint back.", success)
	}
}
