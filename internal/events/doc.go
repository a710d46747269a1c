// Package events carries job outcomes from the worker pipeline to the
// components that react to them (callback delivery, external publishing)
// without the pipeline depending on any of them.
//
// The primary components are:
// - JobFinished: emitted once per job when it reaches a terminal status
// - EventHandler: interface for components that react to events
// - EventEmitter: interface the pipeline emits through
package events
