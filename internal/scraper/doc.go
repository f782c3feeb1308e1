// Package scraper holds the domain model for the content acquisition
// pipeline: job and result types, the store and executor contracts, and the
// URL safety validator that gates every fetch.
package scraper
