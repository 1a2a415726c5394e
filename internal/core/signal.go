package core

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts the messaging transport of one connection.
// Owned by the adapter; the router only calls TrySend and Close.
type SignalConnection interface {
	// TrySend must never block. A full buffer is reported as an error.
	TrySend(Frame) error
	Close()
}
