// Package extract turns rendered markup into clean readable text through a
// layered fallback of extraction strategies. Strategies are tried in a fixed
// priority order and the first one producing content above a minimum length
// wins; the chain is deterministic for identical input.
package extract
