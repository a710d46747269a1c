// Package service contains the submission use case and the read-side
// queries of the job pipeline. It coordinates the blob store, job ledger and
// work queue contracts from internal/store and never depends on a concrete
// backend.
package service
