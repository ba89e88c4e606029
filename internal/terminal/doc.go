// Package terminal correlates commands with device replies over a
// transport.Channel.
//
// One background task (the line assembler) polls the channel, splits bytes
// into lines and publishes each line in arrival order to an unbounded queue
// and then to the configured LineObserver. Query, CommandQuery and RunBatch
// run on the caller's goroutine and are the only blocking waits.
//
// Ownership:
// - one outstanding query per Terminal
// - Stop is idempotent and bounded by Config.StopTimeout per task
// - no query or send starts once stop has been requested
package terminal
