// Package store defines the persistence contracts of the job pipeline: the
// blob store holding payloads and artifacts, the job ledger holding the
// authoritative status record per job, and the work queue handing job ids to
// workers. Implementations live under internal/platform.
package store
