// Package codec implements the HTTP/1.1 wire format: a request writer
// (request line, headers, chunked or fixed-length body framing) and a
// response reader (status line, headers, and the matching body
// dispatch).
package codec

import "errors"

// Fault sentinels returned by Writer/Reader, matching the fault
// vocabulary the client layer maps onto its own error taxonomy.
var (
	// ErrReadAborted means the underlying connection was closed while a
	// response was being read.
	ErrReadAborted = errors.New("codec: read aborted")
	// ErrWriteAborted means the underlying connection was closed while
	// a request body was being written.
	ErrWriteAborted = errors.New("codec: write aborted")
	// ErrWriteAfterFinished means Write was called after Finish.
	ErrWriteAfterFinished = errors.New("codec: write after finish")
	// ErrReceivedDataMalformed means the peer sent bytes that do not
	// parse as HTTP/1.1 (bad status line, unsupported version, bad chunk
	// size). An oversized header block is ErrEntityTooLarge instead.
	ErrReceivedDataMalformed = errors.New("codec: received data malformed")
	// ErrEntityTooLarge means a response exceeded the caller's size
	// limit.
	ErrEntityTooLarge = errors.New("codec: entity too large")
)
