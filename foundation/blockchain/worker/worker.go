// Package worker implements background cache flushing and header
// synchronization for the node.
package worker

import (
	"sync"
	"time"

	"github.com/utxod/utxod/foundation/blockchain/state"
)

// flushInterval represents the interval at which the coins layer is synced
// to disk so an unclean shutdown loses little work.
const flushInterval = 2 * time.Minute

// syncInterval represents the interval of asking known peers for new
// headers.
const syncInterval = time.Minute

// =============================================================================

// Worker manages the background workflows for the node.
type Worker struct {
	state       *state.State
	wg          sync.WaitGroup
	flushTicker *time.Ticker
	syncTicker  *time.Ticker
	shut        chan struct{}
	startSync   chan bool
	evHandler   state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:       st,
		flushTicker: time.NewTicker(flushInterval),
		syncTicker:  time.NewTicker(syncInterval),
		shut:        make(chan struct{}),
		startSync:   make(chan bool, 1),
		evHandler:   evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Load the set of operations we need to run.
	operations := []func(){
		w.flushOperations,
		w.headerSyncOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.flushTicker.Stop()
	w.syncTicker.Stop()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalHeaderSync starts a header sync operation against the known peers.
// If there is already a signal pending in the channel, just return since a
// sync will start.
func (w *Worker) SignalHeaderSync() {
	select {
	case w.startSync <- true:
	default:
	}
	w.evHandler("worker: SignalHeaderSync: header sync signaled")
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
