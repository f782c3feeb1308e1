// Package session creates isolated, fingerprint-randomized browsing
// contexts on top of a shared headless Chrome instance. Each context gets a
// random viewport, client identity, locale, and timezone, plus an
// init script that removes automation-detectable markers before any
// navigation: a consistent fingerprint across requests would make the
// scraper trivially blockable.
package session
