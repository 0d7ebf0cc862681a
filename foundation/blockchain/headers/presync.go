package headers

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// State identifies the phase of a pre-sync instance.
type State int

const (
	// StatePreSync is the first phase: headers are verified and their work
	// accumulated, but nothing beyond per-period commitments is retained,
	// apart from the optional header cache when one is configured.
	StatePreSync State = iota

	// StateRedownload is the second phase: the same chain is requested again
	// and checked against the recorded commitments before release.
	StateRedownload

	// StateFinal is terminal for both success and failure.
	StateFinal
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StatePreSync:
		return "PRESYNC"
	case StateRedownload:
		return "REDOWNLOAD"
	case StateFinal:
		return "FINAL"
	}
	return "UNKNOWN"
}

// =============================================================================

// Params carries the chain supplied tuning for header sync.
type Params struct {
	CommitmentPeriod     int
	RedownloadBufferSize int
	MaxHeadersResults    int
	MinimumWork          *big.Int
}

// ChainStart anchors a pre-sync instance at a block already in our index.
// Locator holds the standard locator ending at genesis for the chain the
// start block sits on, with the start block's own hash first.
type ChainStart struct {
	Hash    chainhash.Hash
	Height  uint32
	Work    *big.Int
	Locator Locator
}

// Result is the outcome of feeding one batch of headers to the machine.
type Result struct {
	// Success is false once the peer has been caught misbehaving: a header
	// that fails proof of work, does not chain, or contradicts a commitment.
	Success bool

	// RequestMore reports whether the machine expects further batches.
	RequestMore bool

	// PoWValidatedHeaders are headers confirmed against the commitments and
	// ready for acceptance into the main index. Only the redownload phase
	// ever releases headers.
	PoWValidatedHeaders []BlockHeader
}

// Config carries the collaborators a pre-sync instance needs.
type Config struct {
	ChainStart ChainStart
	Params     Params

	// CheckPoW is the proof of work predicate.
	CheckPoW func(*BlockHeader) bool

	// HeaderCacheBytes optionally retains full headers during the first
	// phase. When the whole chain fits, the redownload round trip is
	// skipped entirely. Zero disables the cache.
	HeaderCacheBytes int

	EvHandler func(v string, args ...any)
}

// PreSync verifies that a header chain delivered by a single peer carries
// enough cumulative work before any header is admitted to the node's block
// index, then re-requests the chain and verifies it against the recorded
// commitments so the peer cannot substitute a different one. An instance
// serves one peer and is not safe for concurrent use.
type PreSync struct {
	id        uuid.UUID
	params    Params
	start     ChainStart
	checkPoW  func(*BlockHeader) bool
	evHandler func(v string, args ...any)

	state State

	// Commitment salt and the height offset within each period at which a
	// commitment is recorded. Both derive from the instance identity so a
	// peer cannot predict which headers are committed to.
	salt         []byte
	commitOffset uint32

	// First phase.
	lastReceived BlockHeader
	haveLast     bool
	curHeight    uint32
	curWork      *big.Int
	commitments  []bool

	// Optional full header cache.
	cacheBudget int
	cached      []BlockHeader

	// Second phase.
	redownloadBuf  []compressedHeader
	bufLastHash    chainhash.Hash
	bufLastHeight  uint32
	bufFirstPrev   chainhash.Hash
	redownloadWork *big.Int
	commitPos      int
	processAll     bool
}

// NewPreSync constructs a pre-sync instance anchored at the given start
// block.
func NewPreSync(cfg Config) *PreSync {
	id := uuid.New()

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	s := PreSync{
		id:          id,
		params:      cfg.Params,
		start:       cfg.ChainStart,
		checkPoW:    cfg.CheckPoW,
		evHandler:   ev,
		state:       StatePreSync,
		salt:        id[:],
		curHeight:   cfg.ChainStart.Height,
		curWork:     new(big.Int).Set(cfg.ChainStart.Work),
		cacheBudget: cfg.HeaderCacheBytes,
	}
	s.commitOffset = binary.LittleEndian.Uint32(s.salt[:4]) % uint32(cfg.Params.CommitmentPeriod)

	return &s
}

// State returns the current phase.
func (s *PreSync) State() State {
	return s.state
}

// NextHeadersRequestLocator returns the locator to hand the peer for the
// next batch: the furthest verified point of the current phase, followed by
// the anchor chain's own locator.
func (s *PreSync) NextHeadersRequestLocator() Locator {
	loc := make(Locator, 0, len(s.start.Locator)+1)

	switch s.state {
	case StatePreSync:
		if s.haveLast {
			loc = append(loc, s.lastReceived.Hash())
		}
	case StateRedownload:
		loc = append(loc, s.bufLastHash)
	}

	return append(loc, s.start.Locator...)
}

// =============================================================================

// ProcessNextHeaders advances the machine with one batch of headers from the
// peer. fullMessage signals the batch hit the protocol limit, meaning more
// headers may be available.
func (s *PreSync) ProcessNextHeaders(batch []BlockHeader, fullMessage bool) Result {
	switch s.state {
	case StatePreSync:
		return s.processPreSync(batch, fullMessage)
	case StateRedownload:
		return s.processRedownload(batch)
	}

	// Feeding a finalized instance is a no-op failure; the caller should
	// have torn it down.
	return Result{}
}

func (s *PreSync) processPreSync(batch []BlockHeader, fullMessage bool) Result {
	for i := range batch {
		if !s.advancePreSync(batch[i]) {
			s.evHandler("presync: %s: header %d of batch failed verification at height %d", s.id, i, s.curHeight+1)
			return s.finalize(Result{})
		}
	}

	if s.curWork.Cmp(s.params.MinimumWork) >= 0 {

		// The whole chain fit in the header cache, so the redownload phase
		// has nothing left to prove.
		if s.cacheComplete() {
			s.evHandler("presync: %s: chain work sufficient, full chain cached, skipping redownload", s.id)
			cached := s.cached
			s.cached = nil
			return s.finalize(Result{Success: true, PoWValidatedHeaders: cached})
		}

		s.evHandler("presync: %s: chain work sufficient at height %d, starting redownload", s.id, s.curHeight)
		s.beginRedownload()
		return Result{Success: true, RequestMore: true}
	}

	if !fullMessage {
		// The peer's chain ends here and never met the bar. It is a
		// legitimate chain, just too weak to admit.
		s.evHandler("presync: %s: chain ended at height %d with insufficient work", s.id, s.curHeight)
		return s.finalize(Result{Success: true})
	}

	return Result{Success: true, RequestMore: true}
}

// advancePreSync verifies one header chains from the last and accumulates
// its work, recording a commitment at each period boundary.
func (s *PreSync) advancePreSync(bh BlockHeader) bool {
	prev := s.start.Hash
	if s.haveLast {
		prev = s.lastReceived.Hash()
	}

	if bh.PrevHash != prev {
		return false
	}
	if !s.checkPoW(&bh) {
		return false
	}

	if s.cacheBudget > 0 && s.cacheComplete() && (len(s.cached)+1)*SerializedSize <= s.cacheBudget {
		s.cached = append(s.cached, bh)
	}

	s.curHeight++
	s.curWork.Add(s.curWork, WorkFromBits(bh.Bits))

	if s.curHeight%uint32(s.params.CommitmentPeriod) == s.commitOffset {
		s.commitments = append(s.commitments, s.commitBit(bh))
	}

	s.lastReceived = bh
	s.haveLast = true

	return true
}

// cacheComplete reports whether the header cache holds every header received
// so far. Once a header is dropped for budget the cache stays incomplete.
func (s *PreSync) cacheComplete() bool {
	return s.cacheBudget > 0 && uint32(len(s.cached)) == s.curHeight-s.start.Height
}

// beginRedownload resets the verification point back to the chain start for
// the second pass.
func (s *PreSync) beginRedownload() {
	s.state = StateRedownload
	s.redownloadWork = new(big.Int).Set(s.start.Work)
	s.bufLastHash = s.start.Hash
	s.bufLastHeight = s.start.Height
	s.bufFirstPrev = s.start.Hash
	s.cached = nil
}

func (s *PreSync) processRedownload(batch []BlockHeader) Result {
	for i := range batch {
		if !s.advanceRedownload(batch[i]) {
			s.evHandler("presync: %s: redownloaded header %d of batch failed verification at height %d", s.id, i, s.bufLastHeight+1)
			return s.finalize(Result{})
		}
	}

	result := Result{Success: true, PoWValidatedHeaders: s.popReadyHeaders()}

	if s.bufLastHeight == s.curHeight && s.bufLastHash == s.lastReceived.Hash() {
		s.evHandler("presync: %s: redownload reached the presync tip at height %d", s.id, s.curHeight)
		s.state = StateFinal
		return result
	}

	result.RequestMore = true
	return result
}

// advanceRedownload verifies one redownloaded header chains correctly and
// matches the commitment recorded for its height, then buffers it.
func (s *PreSync) advanceRedownload(bh BlockHeader) bool {
	next := s.bufLastHeight + 1

	// The peer may not extend past the tip it showed during the first
	// phase.
	if next > s.curHeight {
		return false
	}

	if bh.PrevHash != s.bufLastHash {
		return false
	}
	if !s.checkPoW(&bh) {
		return false
	}

	if next%uint32(s.params.CommitmentPeriod) == s.commitOffset {
		if s.commitPos >= len(s.commitments) {
			return false
		}
		if s.commitBit(bh) != s.commitments[s.commitPos] {
			return false
		}
		s.commitPos++
	}

	s.redownloadWork.Add(s.redownloadWork, WorkFromBits(bh.Bits))
	if !s.processAll && s.redownloadWork.Cmp(s.params.MinimumWork) >= 0 {
		s.processAll = true
	}

	s.redownloadBuf = append(s.redownloadBuf, compress(bh))
	s.bufLastHash = bh.Hash()
	s.bufLastHeight = next

	return true
}

// popReadyHeaders releases buffered headers that are confirmed final: those
// pushed out of the buffer window, or everything once the redownloaded work
// has met the minimum.
func (s *PreSync) popReadyHeaders() []BlockHeader {
	var out []BlockHeader

	for len(s.redownloadBuf) > 0 &&
		(len(s.redownloadBuf) > s.params.RedownloadBufferSize || s.processAll) {

		bh := s.redownloadBuf[0].expand(s.bufFirstPrev)
		s.redownloadBuf = s.redownloadBuf[1:]
		s.bufFirstPrev = bh.Hash()

		out = append(out, bh)
	}

	return out
}

// commitBit derives the one bit commitment for a header, keyed by the
// instance salt.
func (s *PreSync) commitBit(bh BlockHeader) bool {
	digest := crypto.Keccak256(s.salt, bh.Serialize())
	return digest[0]&1 == 1
}

// finalize moves the machine to its terminal state, discarding everything it
// buffered. Only headers already placed in the result reach the caller.
func (s *PreSync) finalize(result Result) Result {
	s.state = StateFinal
	s.commitments = nil
	s.redownloadBuf = nil
	s.cached = nil
	return result
}
