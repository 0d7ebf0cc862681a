package headers_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/headers"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

// Test chain parameters: an easy target so header generation is cheap, a
// minimum work bar that needs the full 15,000 header chain to clear.
const (
	targetBlocks     = 15_000
	commitmentPeriod = 600
	bufferSize       = targetBlocks - 2_123
	batchSize        = 2_000
	easyBits         = 0x207fffff
)

var (
	powLimit, _ = headers.CompactToTarget(easyBits)
	minimumWork = new(big.Int).Mul(headers.WorkFromBits(easyBits), big.NewInt(targetBlocks))
)

func testParams() headers.Params {
	return headers.Params{
		CommitmentPeriod:     commitmentPeriod,
		RedownloadBufferSize: bufferSize,
		MaxHeadersResults:    batchSize,
		MinimumWork:          minimumWork,
	}
}

func genesisHeader() headers.BlockHeader {
	return headers.BlockHeader{
		Version: 1,
		Time:    1231006505,
		Bits:    easyBits,
		Nonce:   42,
	}
}

// generateChain builds count headers with valid proof of work on top of the
// given hash. The merkle root seed distinguishes chains.
func generateChain(t *testing.T, count int, start chainhash.Hash, seed byte) []headers.BlockHeader {
	t.Helper()

	checkPoW := headers.NewPoWChecker(powLimit)

	var merkle chainhash.Hash
	merkle[0] = seed

	chain := make([]headers.BlockHeader, 0, count)
	prev := start
	time := uint32(1231006506)

	for len(chain) < count {
		bh := headers.BlockHeader{
			Version:    1,
			PrevHash:   prev,
			MerkleRoot: merkle,
			Time:       time,
			Bits:       easyBits,
		}

		for !checkPoW(&bh) {
			bh.Nonce++
		}

		chain = append(chain, bh)
		prev = bh.Hash()
		time++
	}

	return chain
}

func newSync() (*headers.PreSync, chainhash.Hash) {
	genesis := genesisHeader().Hash()

	return headers.NewPreSync(headers.Config{
		ChainStart: headers.ChainStart{
			Hash:    genesis,
			Height:  0,
			Work:    big.NewInt(0),
			Locator: headers.Locator{genesis},
		},
		Params:   testParams(),
		CheckPoW: headers.NewPoWChecker(powLimit),
	}), genesis
}

// feed delivers a chain in protocol sized batches, collecting everything the
// machine releases. The final batch is marked as not full.
func feed(s *headers.PreSync, chain []headers.BlockHeader) (headers.Result, []headers.BlockHeader) {
	var released []headers.BlockHeader
	var result headers.Result

	for off := 0; off < len(chain); off += batchSize {
		end := off + batchSize
		full := true
		if end >= len(chain) {
			end = len(chain)
			full = false
		}

		result = s.ProcessNextHeaders(chain[off:end], full)
		released = append(released, result.PoWValidatedHeaders...)

		if !result.RequestMore {
			break
		}
	}

	return result, released
}

// =============================================================================

func Test_HappyPath(t *testing.T) {
	t.Log("Given a peer serving a chain with sufficient total work.")
	{
		s, genesis := newSync()
		chain := generateChain(t, targetBlocks, genesis, 0x01)

		result, released := feed(s, chain)
		if !result.Success || !result.RequestMore {
			t.Fatalf("\t%s\tShould finish the first phase wanting more: success %v, more %v.", failed, result.Success, result.RequestMore)
		}
		if s.State() != headers.StateRedownload {
			t.Fatalf("\t%s\tShould be in REDOWNLOAD, state %s.", failed, s.State())
		}
		if len(released) != 0 {
			t.Fatalf("\t%s\tShould release nothing during the first phase.", failed)
		}
		t.Logf("\t%s\tShould reach REDOWNLOAD with nothing released.", success)

		result, released = feed(s, chain)
		if !result.Success || result.RequestMore {
			t.Fatalf("\t%s\tShould complete the second phase: success %v, more %v.", failed, result.Success, result.RequestMore)
		}
		if s.State() != headers.StateFinal {
			t.Fatalf("\t%s\tShould be FINAL, state %s.", failed, s.State())
		}
		t.Logf("\t%s\tShould complete the second phase.", success)

		if len(released) != targetBlocks {
			t.Fatalf("\t%s\tShould release all %d headers, got %d.", failed, targetBlocks, len(released))
		}
		if released[0].PrevHash != genesis {
			t.Fatalf("\t%s\tShould release headers starting from genesis.", failed)
		}
		for i := 1; i < len(released); i++ {
			if released[i].PrevHash != released[i-1].Hash() {
				t.Fatalf("\t%s\tShould release a connected chain, break at %d.", failed, i)
			}
		}
		t.Logf("\t%s\tShould release the full connected chain.", success)
	}
}

func Test_SneakySubstitution(t *testing.T) {
	t.Log("Given a peer substituting a different chain during redownload.")
	{
		s, genesis := newSync()
		chainA := generateChain(t, targetBlocks, genesis, 0x01)
		chainB := generateChain(t, targetBlocks, genesis, 0x02)

		if result, _ := feed(s, chainA); !result.Success {
			t.Fatalf("\t%s\tShould accept chain A in the first phase.", failed)
		}
		if s.State() != headers.StateRedownload {
			t.Fatalf("\t%s\tShould be in REDOWNLOAD, state %s.", failed, s.State())
		}
		t.Logf("\t%s\tShould accept chain A in the first phase.", success)

		result, released := feed(s, chainB)
		if result.Success {
			t.Fatalf("\t%s\tShould reject the substituted chain.", failed)
		}
		if s.State() != headers.StateFinal {
			t.Fatalf("\t%s\tShould be FINAL after the mismatch, state %s.", failed, s.State())
		}
		if len(released) != 0 {
			t.Fatalf("\t%s\tShould release no headers from the substituted chain, got %d.", failed, len(released))
		}
		t.Logf("\t%s\tShould reject the substituted chain with nothing released.", success)
	}
}

func Test_TooLittleWork(t *testing.T) {
	t.Log("Given a peer whose honest chain never meets the minimum work.")
	{
		s, genesis := newSync()
		chain := generateChain(t, targetBlocks-1, genesis, 0x03)

		result := s.ProcessNextHeaders(chain[:1], true)
		if !result.Success || !result.RequestMore {
			t.Fatalf("\t%s\tShould stay hungry after one header: success %v, more %v.", failed, result.Success, result.RequestMore)
		}
		if s.State() != headers.StatePreSync {
			t.Fatalf("\t%s\tShould remain in PRESYNC, state %s.", failed, s.State())
		}
		t.Logf("\t%s\tShould remain in PRESYNC after one header.", success)

		result = s.ProcessNextHeaders(chain[1:], false)
		if !result.Success {
			t.Fatalf("\t%s\tShould treat the weak chain as legitimate.", failed)
		}
		if result.RequestMore || len(result.PoWValidatedHeaders) != 0 {
			t.Fatalf("\t%s\tShould end the sync with nothing admitted.", failed)
		}
		if s.State() != headers.StateFinal {
			t.Fatalf("\t%s\tShould be FINAL, state %s.", failed, s.State())
		}
		t.Logf("\t%s\tShould end legitimately with nothing admitted.", success)
	}
}

func Test_LocatorAdvancement(t *testing.T) {
	t.Log("Given the need to tell the peer where to resume.")
	{
		s, genesis := newSync()
		chain := generateChain(t, targetBlocks, genesis, 0x01)

		if loc := s.NextHeadersRequestLocator(); loc[0] != genesis {
			t.Fatalf("\t%s\tShould start the locator at the chain start.", failed)
		}
		t.Logf("\t%s\tShould start the locator at the chain start.", success)

		s.ProcessNextHeaders(chain[:1], true)
		if loc := s.NextHeadersRequestLocator(); loc[0] != chain[0].Hash() {
			t.Fatalf("\t%s\tShould lead with the last verified header.", failed)
		}
		t.Logf("\t%s\tShould lead with the last verified header.", success)

		if result, _ := feed(s, chain[1:]); !result.Success {
			t.Fatalf("\t%s\tShould reach REDOWNLOAD feeding the rest.", failed)
		}
		if s.State() != headers.StateRedownload {
			t.Fatalf("\t%s\tShould be in REDOWNLOAD, state %s.", failed, s.State())
		}

		if loc := s.NextHeadersRequestLocator(); loc[0] != genesis {
			t.Fatalf("\t%s\tShould rewind the locator to the chain start for redownload.", failed)
		}
		t.Logf("\t%s\tShould rewind the locator to the chain start for redownload.", success)
	}
}

func Test_HeaderCacheFastPath(t *testing.T) {
	t.Log("Given a header cache large enough for the whole chain.")
	{
		genesis := genesisHeader().Hash()
		s := headers.NewPreSync(headers.Config{
			ChainStart: headers.ChainStart{
				Hash:    genesis,
				Height:  0,
				Work:    big.NewInt(0),
				Locator: headers.Locator{genesis},
			},
			Params:           testParams(),
			CheckPoW:         headers.NewPoWChecker(powLimit),
			HeaderCacheBytes: targetBlocks * headers.SerializedSize,
		})

		chain := generateChain(t, targetBlocks, genesis, 0x01)

		result, released := feed(s, chain)
		if !result.Success || result.RequestMore {
			t.Fatalf("\t%s\tShould complete on the first pass: success %v, more %v.", failed, result.Success, result.RequestMore)
		}
		if s.State() != headers.StateFinal {
			t.Fatalf("\t%s\tShould be FINAL, state %s.", failed, s.State())
		}
		if len(released) != targetBlocks {
			t.Fatalf("\t%s\tShould release all %d cached headers, got %d.", failed, targetBlocks, len(released))
		}
		t.Logf("\t%s\tShould skip redownload and release the cached chain.", success)
	}
}

func Test_BatchMustChainFromStart(t *testing.T) {
	t.Log("Given a first batch that does not connect to the chain start.")
	{
		s, _ := newSync()

		var wrong chainhash.Hash
		wrong[5] = 0xff
		chain := generateChain(t, 3, wrong, 0x04)

		result := s.ProcessNextHeaders(chain, true)
		if result.Success {
			t.Fatalf("\t%s\tShould reject the disconnected batch.", failed)
		}
		if s.State() != headers.StateFinal {
			t.Fatalf("\t%s\tShould be FINAL, state %s.", failed, s.State())
		}
		t.Logf("\t%s\tShould reject the disconnected batch.", success)
	}
}
