// Package agent drives the outer handshake/reconnect loop (C2) and signal
// coordination (C8): listen for the server's reverse connection, hello,
// accept, then hand every frame read off that connection to pkg/protocol
// until the connection drops or the server says BYE, at which point the
// loop falls back to a resume handshake. A SIGTERM freezes the registry,
// sets the process-wide exiting flag, and closes the wake channel that
// every blocking read in pkg/wire also selects on, unblocking the control
// loop deterministically instead of waiting out its read deadline.
package agent
