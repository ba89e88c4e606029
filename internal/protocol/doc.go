// Package protocol owns the text command/response contract spoken with the
// device.
//
// Ownership boundary:
// - wire constants (sentinel, chunk size)
// - terminal status token vocabulary
// - frame primitives (see subpackage frame)
package protocol
