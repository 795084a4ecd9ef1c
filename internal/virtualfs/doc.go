// Package virtualfs implements the read-only ".dibs" control surface:
// JSON status/locks documents describing live CAS state, and the
// Prometheus metrics that mirror the same state for scraping.
package virtualfs
