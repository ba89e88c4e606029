// Package station runs the modem bench workflow: an AT self-test batch, the
// %CMNG credential write and verify pass, and the reset hook. Results are
// rendered to the operator and appended to the configured durable logs. An
// optional HTTP status server exposes health, metrics and the latest run.
package station
