package headers

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Locator is a sparse, descending sequence of block hashes used to tell a
// peer where our chain leaves off so they can respond with what follows.
type Locator []chainhash.Hash

// BuildLocator constructs the standard locator over a chain of hashes
// ordered genesis first. The most recent 10 hashes are included densely,
// then the stride doubles walking back, and the genesis hash is always last.
func BuildLocator(chain []chainhash.Hash) Locator {
	if len(chain) == 0 {
		return nil
	}

	loc := make(Locator, 0, 32)

	step := 1
	for i := len(chain) - 1; i > 0; i -= step {
		loc = append(loc, chain[i])
		if len(loc) >= 10 {
			step *= 2
		}
	}

	return append(loc, chain[0])
}
