// Package worker runs a live-resizable set of goroutines over a shared queue.
//
// Each worker moves through idle, running, then finishing (the queue closed
// and drained) or cancelling (Remove was called), and ends stopped. Removal is
// cooperative: a worker never abandons an item it has already dequeued.
package worker
