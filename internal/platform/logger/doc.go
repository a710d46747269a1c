// Package logger configures structured JSON logging for jobpipe processes
// and carries request-scoped loggers through a context.Context.
package logger
