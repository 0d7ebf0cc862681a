// Package genesis maintains access to the chain parameters file.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/utxod/utxod/foundation/blockchain/headers"
	"github.com/utxod/utxod/foundation/validate"
)

// Genesis represents the chain parameters file.
type Genesis struct {
	ChainID              uint16 `json:"chain_id" validate:"required"`
	GenesisHeader        Header `json:"genesis_header"`
	MinimumChainWork     string `json:"minimum_chain_work" validate:"required,hexadecimal"` // Work a header chain must carry before admission.
	CommitmentPeriod     int    `json:"commitment_period" validate:"required,gt=0"`         // Headers between pre-sync commitments.
	RedownloadBufferSize int    `json:"redownload_buffer_size" validate:"required,gt=0"`    // Headers buffered during redownload.
	MaxHeadersResults    int    `json:"max_headers_results" validate:"required,gt=0"`       // Protocol limit on headers per message.
	PoWLimitBits         uint32 `json:"pow_limit_bits" validate:"required"`                 // Easiest allowed difficulty in compact form.
}

// Header carries the genesis block header fields.
type Header struct {
	Version    int32  `json:"version"`
	MerkleRoot string `json:"merkle_root"`
	Time       uint32 `json:"time"`
	Bits       uint32 `json:"bits"`
	Nonce      uint32 `json:"nonce"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := validate.Check(genesis); err != nil {
		return Genesis{}, fmt.Errorf("validating genesis file: %w", err)
	}

	return genesis, nil
}

// BlockHeader converts the genesis header fields into the wire header form.
func (g Genesis) BlockHeader() (headers.BlockHeader, error) {
	bh := headers.BlockHeader{
		Version: g.GenesisHeader.Version,
		Time:    g.GenesisHeader.Time,
		Bits:    g.GenesisHeader.Bits,
		Nonce:   g.GenesisHeader.Nonce,
	}

	if g.GenesisHeader.MerkleRoot != "" {
		root, err := chainhash.NewHashFromStr(g.GenesisHeader.MerkleRoot)
		if err != nil {
			return headers.BlockHeader{}, fmt.Errorf("parsing genesis merkle root: %w", err)
		}
		bh.MerkleRoot = *root
	}

	return bh, nil
}

// MinimumWork parses the minimum chain work into its integer form.
func (g Genesis) MinimumWork() (*big.Int, error) {
	work, ok := new(big.Int).SetString(g.MinimumChainWork, 16)
	if !ok {
		return nil, fmt.Errorf("minimum chain work %q is not hexadecimal", g.MinimumChainWork)
	}
	return work, nil
}

// PoWLimit returns the easiest allowed target.
func (g Genesis) PoWLimit() (*big.Int, error) {
	limit, bad := headers.CompactToTarget(g.PoWLimitBits)
	if bad || limit.Sign() <= 0 {
		return nil, fmt.Errorf("pow limit bits %08x do not form a usable target", g.PoWLimitBits)
	}
	return limit, nil
}

// HeaderParams assembles the pre-sync tuning from the chain parameters.
func (g Genesis) HeaderParams() (headers.Params, error) {
	work, err := g.MinimumWork()
	if err != nil {
		return headers.Params{}, err
	}

	return headers.Params{
		CommitmentPeriod:     g.CommitmentPeriod,
		RedownloadBufferSize: g.RedownloadBufferSize,
		MaxHeadersResults:    g.MaxHeadersResults,
		MinimumWork:          work,
	}, nil
}
