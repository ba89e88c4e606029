// Package report turns correlated exchanges into verdicts and renders them.
//
// Build composes parser lookup, parsing and rule evaluation into one
// TestResult per command. Renderers produce the fixed-width text report,
// JSON records, and rows appended to CSV or SQLite logs.
package report
