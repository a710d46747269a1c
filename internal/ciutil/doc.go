// Package ciutil detects CI environments and resolves the optional external
// backends that integration tests run against.
//
// Integration tests for Redis, MinIO and PostgreSQL read their endpoint from
// an environment variable. Locally a missing variable skips the test; in CI
// with JOBPIPE_REQUIRE_BACKENDS set, it fails the test instead so a
// misconfigured pipeline cannot pass by skipping.
package ciutil
