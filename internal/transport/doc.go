// Package transport provides byte channels to the device.
//
// A Channel is half-duplex from the protocol's point of view: TryRead never
// blocks and returns whatever bytes the provider has buffered, Write blocks
// until the provider accepts the bytes. Connection lifecycle (open/close)
// belongs to the caller and must outlive the terminal using the channel.
//
// Implementations:
// - Serial: local serial bridge or CDC-ACM port (go.bug.st/serial)
// - SSH: serial bridge on a remote host reached over SSH
// - Simulator: scripted in-memory device for tests and dry runs
// - Loopback: written bytes become readable
package transport
