// Package tools runs external host commands for the station, such as the
// probe reset hook executed after the modem steps.
package tools
