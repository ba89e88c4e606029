// Package parsed defines the typed values produced by reply parsers: a
// Scalar, or a Record of named scalars addressable by field.
package parsed
