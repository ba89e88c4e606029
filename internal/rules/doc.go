// Package rules evaluates user-declared validation rules against parsed
// values.
//
// A Rule is a closed variant: Equals, Allowed or Range, optionally scoped to
// a record field. Evaluation is pure and deterministic. A Set maps result
// display names to rule lists; when a name has rules they replace the
// parser's default verdict.
package rules
