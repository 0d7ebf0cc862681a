package worker

// flushOperations handles keeping the coins layer within its memory budget
// and the disk state close behind memory.
func (w *Worker) flushOperations() {
	w.evHandler("worker: flushOperations: G started")
	defer w.evHandler("worker: flushOperations: G completed")

	for {
		select {
		case <-w.flushTicker.C:
			if w.isShutdown() {
				return
			}
			w.runFlushOperation()

		case <-w.shut:
			w.evHandler("worker: flushOperations: received shut signal")
			return
		}
	}
}

// runFlushOperation syncs the coins layer to disk, or flushes it outright
// when it has outgrown its budget.
func (w *Worker) runFlushOperation() {
	w.evHandler("worker: runFlushOperation: MAINT: started")
	defer w.evHandler("worker: runFlushOperation: MAINT: completed")

	flushed, err := w.state.FlushCoinsIfNeeded()
	if err != nil {
		w.evHandler("worker: runFlushOperation: MAINT: ERROR: %s", err)
		return
	}
	if flushed {
		w.evHandler("worker: runFlushOperation: MAINT: cache over budget: flushed")
		return
	}

	if err := w.state.SyncCoins(); err != nil {
		w.evHandler("worker: runFlushOperation: MAINT: ERROR: %s", err)
	}
}
