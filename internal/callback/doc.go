// Package callback delivers job outcomes to submitter-supplied URLs.
//
// Delivery is a single POST with a bounded timeout. A failed delivery is
// logged and dropped; the job ledger remains the durable record of the
// outcome and clients that need certainty poll GET /jobs/{id}.
package callback
