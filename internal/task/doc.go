// Package task runs the worker pipeline: a fixed pool of workers pops job
// ids from the work queue, claims each job with a compare-and-set on its
// ledger status, runs the processing engine, stores the artifacts and
// commits the terminal status. Finished jobs are announced through an
// events.EventEmitter so callbacks and other observers run after the ledger
// is final.
package task
