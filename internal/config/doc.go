// Package config loads jobpipe settings from defaults, an optional YAML file
// and JOBPIPE_-prefixed environment variables, and validates them before any
// component is constructed.
package config
