package codec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
)

// Writer streams an HTTP/1.1 request: request line, headers, then a
// chunked or fixed-length body.
type Writer struct {
	bw       *bufio.Writer
	chunked  bool
	finished bool
	started  bool
}

// NewWriter wraps w for writing a single request.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteRequestLine writes "METHOD uri HTTP/1.1\r\n".
func (w *Writer) WriteRequestLine(method, uri string) error {
	_, err := fmt.Fprintf(w.bw, "%s %s HTTP/1.1\r\n", method, uri)
	return err
}

// WriteHeaders writes every header pair followed by the blank line that
// ends the header block. chunked selects the body framing used by
// subsequent Write calls.
func (w *Writer) WriteHeaders(headers *header.Ordered, chunked bool) error {
	for _, p := range headers.Pairs() {
		if _, err := fmt.Fprintf(w.bw, "%s: %s\r\n", p.Key, p.Value); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return err
	}
	w.chunked = chunked
	w.started = true
	return nil
}

// Write streams body bytes, chunk-encoding them if the request uses
// Transfer-Encoding: chunked.
func (w *Writer) Write(p []byte) (int, error) {
	if w.finished {
		return 0, ErrWriteAfterFinished
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !w.chunked {
		return w.bw.Write(p)
	}
	if _, err := fmt.Fprintf(w.bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := w.bw.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Finish writes the terminating chunk (if chunked) and flushes the
// underlying writer. Write returns ErrWriteAfterFinished once Finish has
// run.
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}
	w.finished = true
	if w.chunked {
		if _, err := w.bw.WriteString("0\r\n\r\n"); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}
