// Package wire is the connection layer: frame-level read/write (C1) plus
// the connect/listen/backoff/hello sequence that establishes a control
// connection with the server (C2). Everything above the frame boundary —
// parsing a frame into a command and dispatching it — lives in
// pkg/protocol.
package wire
