// Package api exposes the HTTP interface for the scraper service. It
// validates submissions at the boundary, hands accepted jobs to the
// orchestrator, and serves job status and results from the store.
package api
