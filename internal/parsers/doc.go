// Package parsers maps command identifiers to reply parsers.
//
// A Registry is an explicit object: callers build one (usually through
// NewDefaultRegistry) and inject it into the report builder. Entries are
// immutable once registered unless WithOverride is passed.
package parsers
