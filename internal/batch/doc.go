// Package batch fans a list of URLs out over a bounded pool of scrape
// workers while keeping results in input order.
package batch
