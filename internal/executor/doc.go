// Package executor turns a single scrape request into a result. It drives
// the headless browser session, applies URL safety validation, and hands
// rendered pages to the extraction chain.
package executor
