// Package commandqueue serializes turn execution per session using
// lane-based FIFO queues.
//
// Invariants:
// - Each lane runs at most its concurrency limit of tasks at once;
//   session lanes run one turn at a time, in arrival order.
// - Enqueue blocks the caller until its task completes.
// - Closing the queue cancels the contexts of running tasks.
package commandqueue
