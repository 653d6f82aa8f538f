// Package shell provides the transport to the remote interactive shell.
package shell

// Transport is the half-duplex connection to the remote shell. The agent
// engine never manages the connection lifecycle itself; it only writes
// bytes and drains whatever output has arrived.
type Transport interface {
	// Send writes raw bytes to the remote shell.
	Send(data string) error
	// ReadAvailable drains and returns all output received since the
	// previous call, with terminal control codes stripped. It never
	// blocks.
	ReadAvailable() string
	// Connected reports whether the transport is usable.
	Connected() bool
}
