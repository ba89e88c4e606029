package protocol

import "strings"

const (
	// Sentinel terminates every host -> device command on the wire.
	Sentinel = "\r\n.\r\n"

	// MaxChunk bounds a single transport write.
	MaxChunk = 1024
)

// Status is the terminal token closing a device reply. The zero value means
// no terminal line was observed before the deadline.
type Status string

const (
	StatusNone  Status = ""
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// ParseStatus reports whether line is a terminal status token.
func ParseStatus(line string) (Status, bool) {
	switch Status(strings.TrimSpace(line)) {
	case StatusOK:
		return StatusOK, true
	case StatusError:
		return StatusError, true
	default:
		return StatusNone, false
	}
}

// IsStatusLine is a terminator predicate matching any status token.
func IsStatusLine(line string) bool {
	_, ok := ParseStatus(line)
	return ok
}

func (s Status) Observed() bool {
	return s != StatusNone
}

func (s Status) OK() bool {
	return s == StatusOK
}

// String renders StatusNone as "NONE" for logs and reports.
func (s Status) String() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}
