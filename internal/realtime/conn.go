package realtime

import "errors"

// ErrConnClosed is returned by transports asked to send on a closed connection.
var ErrConnClosed = errors.New("realtime: connection closed")

// Conn is what the core needs from a live push channel. Send must only queue the
// event and return without waiting on the network; events queued on one Conn are
// written in the order Send was called. Close must be safe to call more than once.
type Conn interface {
	Send(evt Event) error
	Close() error
}
