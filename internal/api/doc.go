// Package api exposes the job pipeline over HTTP: submission, status and
// listing queries, and artifact retrieval and deletion. Handlers translate
// requests into JobService calls and map the error taxonomy onto status
// codes without exposing internal error text.
package api
