// Package memory provides in-process implementations of the blob store, job
// ledger and work queue contracts. They back single-process deployments and
// the pipeline tests; nothing survives a restart.
package memory
