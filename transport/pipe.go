package transport

import (
	"io"
	"net"
)

// Pipe returns the two ends of an in-process duplex link. One end
// feeds a Mux, the other a board simulator, so the whole stack runs
// without hardware or a pseudo-terminal pair.
func Pipe() (host, board io.ReadWriteCloser) {
	a, b := net.Pipe()
	return a, b
}
