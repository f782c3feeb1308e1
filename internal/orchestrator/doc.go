// Package orchestrator owns the scrape job lifecycle. It accepts jobs,
// runs each on its own background worker, records progress in the job
// store, and mediates cancellation.
package orchestrator
