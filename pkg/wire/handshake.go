package wire

import (
	"fmt"
	"net"
	"time"
)

// Timeouts and port range from §6/§4.2.
const (
	ReadTimeout   = 20 * time.Second
	WriteTimeout  = 4 * time.Second
	AcceptTimeout = 60 * time.Second

	ListenBasePort = 31089
	ListenPortSpan = 20 // probes [31089, 31108]

	maxBackoff = 32 * time.Second
)

// Listen probes ports starting at ListenBasePort until one binds,
// returning the listener and the actually-bound port. Per §9's resolved
// open question, the actually bound port — not a fixed assumed base — is
// what gets advertised in the hello frame.
func Listen() (net.Listener, int, error) {
	for i := 0; i < ListenPortSpan; i++ {
		port := ListenBasePort + i
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, fmt.Errorf("wire: no listen port available in [%d, %d]", ListenBasePort, ListenBasePort+ListenPortSpan-1)
}

// DialWithBackoff connects to addr, retrying connection refusals with
// binary exponential backoff (1, 2, 4, ..., capped at 32s). If initial is
// true, it returns an error once the 32s backoff step has been slept and the
// following attempt still fails, about 63 seconds of backoff in all (the caller
// maps this to process exit per §2's SERVER_UNREACHABLE); if false (a
// resume handshake after a connection loss) it retries forever until
// stop fires or a connection succeeds.
func DialWithBackoff(addr string, initial bool, stop <-chan struct{}) (net.Conn, error) {
	backoff := time.Second
	var elapsed time.Duration

	for {
		select {
		case <-stop:
			return nil, ErrSocketClosed
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err == nil {
			return conn, nil
		}

		if initial && elapsed >= maxBackoff {
			return nil, fmt.Errorf("wire: server unreachable: %w", err)
		}

		select {
		case <-time.After(backoff):
		case <-stop:
			return nil, ErrSocketClosed
		}
		elapsed += backoff
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// HelloFrame builds the agent's initial or resume greeting, advertising the
// actually-bound listen port.
func HelloFrame(resume bool, listenPort int) []byte {
	greeting := "NGS HELLO"
	if resume {
		greeting = "NGS HELLO AGAIN"
	}
	return []byte(fmt.Sprintf("%s\nCMD PORT %d\n\n", greeting, listenPort))
}

// AcceptReverse waits up to AcceptTimeout for the server to initiate the
// reverse control connection on ln, matching §4.2 step 5.
func AcceptReverse(ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(AcceptTimeout):
		return nil, fmt.Errorf("wire: timed out waiting for reverse connection")
	}
}
