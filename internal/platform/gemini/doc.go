// Package gemini provides a processing engine that summarizes text inputs
// with Google's Gemini API. It is an infrastructure adapter: the worker
// pipeline only sees the engine.Engine interface.
package gemini
