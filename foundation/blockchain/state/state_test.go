package state_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/coin"
	"github.com/utxod/utxod/foundation/blockchain/genesis"
	"github.com/utxod/utxod/foundation/blockchain/headers"
	"github.com/utxod/utxod/foundation/blockchain/peer"
	"github.com/utxod/utxod/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

const easyBits = 0x207fffff

// testGenesis returns chain parameters with a trivially easy target and a
// minimum work bar of chainLength headers.
func testGenesis(chainLength int64) genesis.Genesis {
	minWork := new(big.Int).Mul(headers.WorkFromBits(easyBits), big.NewInt(chainLength))

	return genesis.Genesis{
		ChainID: 1,
		GenesisHeader: genesis.Header{
			Version: 1,
			Time:    1231006505,
			Bits:    easyBits,
			Nonce:   42,
		},
		MinimumChainWork:     minWork.Text(16),
		CommitmentPeriod:     5,
		RedownloadBufferSize: 8,
		MaxHeadersResults:    10,
		PoWLimitBits:         easyBits,
	}
}

func newTestState(t *testing.T, chainLength int64) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		Genesis:    testGenesis(chainLength),
		KnownPeers: peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct state: %v", failed, err)
	}

	return st
}

func generateChain(t *testing.T, count int, start chainhash.Hash) []headers.BlockHeader {
	t.Helper()

	powLimit, _ := headers.CompactToTarget(easyBits)
	checkPoW := headers.NewPoWChecker(powLimit)

	chain := make([]headers.BlockHeader, 0, count)
	prev := start

	for len(chain) < count {
		bh := headers.BlockHeader{
			Version:  1,
			PrevHash: prev,
			Time:     1231006506 + uint32(len(chain)),
			Bits:     easyBits,
		}

		for !checkPoW(&bh) {
			bh.Nonce++
		}

		chain = append(chain, bh)
		prev = bh.Hash()
	}

	return chain
}

// =============================================================================

func Test_CalculateCacheSizes(t *testing.T) {
	type table struct {
		name      string
		totalMiB  int
		blockTree int
		coinsDB   int
		coins     int
	}

	mib := func(n int) int { return n << 20 }

	tt := []table{
		{
			name:      "default budget",
			totalMiB:  450,
			blockTree: mib(2),
			coinsDB:   mib(8),
			coins:     mib(440),
		},
		{
			name:      "small budget splits by ratio",
			totalMiB:  8,
			blockTree: mib(1),
			coinsDB:   mib(8) / 2 - mib(1)/2,
			coins:     mib(8) - mib(1) - (mib(8)/2 - mib(1)/2),
		},
		{
			name:      "below minimum is raised to minimum",
			totalMiB:  1,
			blockTree: mib(4) / 8,
			coinsDB:   (mib(4) - mib(4)/8) / 2,
			coins:     mib(4) - mib(4)/8 - (mib(4)-mib(4)/8)/2,
		},
	}

	t.Log("Given the need to split the memory budget across the caches.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %d MiB budget.", testID, tst.totalMiB)
			{
				sizes := state.CalculateCacheSizes(tst.totalMiB << 20)

				if sizes.BlockTreeDB != tst.blockTree || sizes.CoinsDB != tst.coinsDB || sizes.Coins != tst.coins {
					t.Errorf("\t%s\tTest %d:\tShould split the budget correctly.", failed, testID)
					t.Logf("\t%s\tTest %d:\tgot: %d/%d/%d", failed, testID, sizes.BlockTreeDB, sizes.CoinsDB, sizes.Coins)
					t.Logf("\t%s\tTest %d:\texp: %d/%d/%d", failed, testID, tst.blockTree, tst.coinsDB, tst.coins)
				} else {
					t.Logf("\t%s\tTest %d:\tShould split the budget correctly.", success, testID)
				}

				total := sizes.BlockTreeDB + sizes.CoinsDB + sizes.Coins
				want := tst.totalMiB << 20
				if want < state.MinDBCacheMiB<<20 {
					want = state.MinDBCacheMiB << 20
				}
				if total != want {
					t.Errorf("\t%s\tTest %d:\tShould account for every byte: %d != %d.", failed, testID, total, want)
				} else {
					t.Logf("\t%s\tTest %d:\tShould account for every byte.", success, testID)
				}
			}
		}
	}
}

func Test_CoinLifecycle(t *testing.T) {
	t.Log("Given the need to manage coins through the state API.")
	{
		st := newTestState(t, 30)
		defer st.Shutdown()

		var h chainhash.Hash
		h[0] = 0x33
		op := coin.NewOutpoint(h, 2)

		c := coin.New(5000, 77, false, []byte{0x51})
		st.AddCoin(op, c, false)

		got, exists := st.QueryCoin(op)
		if !exists || !got.Equal(c) {
			t.Fatalf("\t%s\tShould read the coin back through the cache.", failed)
		}
		t.Logf("\t%s\tShould read the coin back through the cache.", success)

		if err := st.FlushCoins(); err != nil {
			t.Fatalf("\t%s\tShould be able to flush: %v", failed, err)
		}

		if _, exists := st.QueryCoin(op); !exists {
			t.Fatalf("\t%s\tShould read the coin back from the store after a flush.", failed)
		}
		t.Logf("\t%s\tShould read the coin back from the store after a flush.", success)

		// The read above left a clean cached copy behind; uncaching drops it
		// without losing the durable coin.
		if entries := st.RetrieveCacheStats().Entries; entries != 1 {
			t.Fatalf("\t%s\tShould hold one clean cached entry, got %d.", failed, entries)
		}
		st.UncacheCoin(op)
		if entries := st.RetrieveCacheStats().Entries; entries != 0 {
			t.Fatalf("\t%s\tShould drop the clean entry on uncache, got %d.", failed, entries)
		}
		if _, exists := st.QueryCoin(op); !exists {
			t.Fatalf("\t%s\tShould still read the coin from the store after uncaching.", failed)
		}
		t.Logf("\t%s\tShould reclaim the clean entry without losing the stored coin.", success)

		if !st.SpendCoin(op) {
			t.Fatalf("\t%s\tShould be able to spend the coin.", failed)
		}
		if _, exists := st.QueryCoin(op); exists {
			t.Fatalf("\t%s\tShould not find a spent coin.", failed)
		}
		t.Logf("\t%s\tShould not find a spent coin.", success)
	}
}

func Test_HeaderSyncThroughState(t *testing.T) {
	t.Log("Given a peer chain verified through the state's pre-sync machinery.")
	{
		const chainLength = 30

		st := newTestState(t, chainLength)
		defer st.Shutdown()

		genesisTip := st.RetrieveTip()
		chain := generateChain(t, chainLength, genesisTip.Hash)

		sync := st.NewHeadersSync()

		// Phase one: deliver the whole chain in protocol sized batches.
		var result headers.Result
		for off := 0; off < len(chain); off += 10 {
			end := min(off+10, len(chain))
			result = sync.ProcessNextHeaders(chain[off:end], end-off == 10)
			if !result.Success {
				t.Fatalf("\t%s\tShould verify batch at offset %d.", failed, off)
			}
			if !result.RequestMore {
				break
			}
		}
		if sync.State() != headers.StateRedownload {
			t.Fatalf("\t%s\tShould reach REDOWNLOAD, state %s.", failed, sync.State())
		}
		t.Logf("\t%s\tShould reach REDOWNLOAD with the full chain delivered.", success)

		// Phase two: redeliver and accept what the machine releases.
		var accepted int
		for off := 0; off < len(chain); off += 10 {
			end := min(off+10, len(chain))
			result = sync.ProcessNextHeaders(chain[off:end], end-off == 10)
			if !result.Success {
				t.Fatalf("\t%s\tShould verify redownload batch at offset %d.", failed, off)
			}

			n, err := st.AcceptHeaders(result.PoWValidatedHeaders)
			if err != nil {
				t.Fatalf("\t%s\tShould accept released headers: %v", failed, err)
			}
			accepted += n

			if !result.RequestMore {
				break
			}
		}

		if accepted != chainLength {
			t.Fatalf("\t%s\tShould accept all %d headers, got %d.", failed, chainLength, accepted)
		}
		t.Logf("\t%s\tShould accept all %d headers.", success, chainLength)

		tip := st.RetrieveTip()
		if tip.Height != chainLength || tip.Hash != chain[len(chain)-1].Hash() {
			t.Fatalf("\t%s\tShould move the tip to the peer's chain head.", failed)
		}
		t.Logf("\t%s\tShould move the tip to the peer's chain head.", success)
	}
}

func Test_HeadersSince(t *testing.T) {
	t.Log("Given a locator based request for headers.")
	{
		const chainLength = 25

		st := newTestState(t, chainLength)
		defer st.Shutdown()

		genesisTip := st.RetrieveTip()
		chain := generateChain(t, chainLength, genesisTip.Hash)

		if _, err := st.AcceptHeaders(chain); err != nil {
			t.Fatalf("\t%s\tShould be able to accept the chain directly: %v", failed, err)
		}

		// A locator at genesis returns the first headers and reports full.
		batch, full := st.HeadersSince(headers.Locator{genesisTip.Hash}, 10)
		if len(batch) != 10 || !full {
			t.Fatalf("\t%s\tShould serve 10 headers from genesis, got %d full %v.", failed, len(batch), full)
		}
		if batch[0].Hash() != chain[0].Hash() {
			t.Fatalf("\t%s\tShould start right after the locator hash.", failed)
		}
		t.Logf("\t%s\tShould serve the first full batch from genesis.", success)

		// A locator at height 20 returns the 5 remaining headers.
		batch, full = st.HeadersSince(headers.Locator{chain[19].Hash()}, 10)
		if len(batch) != 5 || full {
			t.Fatalf("\t%s\tShould serve the 5 remaining headers, got %d full %v.", failed, len(batch), full)
		}
		t.Logf("\t%s\tShould serve the remaining headers without the full flag.", success)

		// An unknown locator restarts from genesis.
		var unknown chainhash.Hash
		unknown[3] = 0x99
		batch, _ = st.HeadersSince(headers.Locator{unknown, genesisTip.Hash}, 10)
		if len(batch) != 10 || batch[0].Hash() != chain[0].Hash() {
			t.Fatalf("\t%s\tShould fall back to the deepest known locator hash.", failed)
		}
		t.Logf("\t%s\tShould fall back to the deepest known locator hash.", success)
	}
}
