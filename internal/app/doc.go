// Package app builds the process-wide dependency graph from configuration:
// storage backends, the processing engine, the outcome event emitter and the
// services that use them. Each handle is constructed once and released by
// App.Close.
package app
