// Package redis implements the job ledger and the work queue on Redis.
//
// Each job is a Hash plus a List of result locators; a Sorted Set per status
// indexes jobs by creation time. Multi-key updates run as Lua scripts so a
// reader never observes part of an update. The queue is a pair of Lists:
// items move atomically from pending to in-flight on pop and are removed from
// in-flight on ack.
//
// The scripts derive index keys from a prefix argument, so all keys of one
// deployment must live on a single node (no Redis Cluster support).
package redis
