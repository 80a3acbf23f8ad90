package codec

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
)

// maxHeaderBytes is the default bound on the status line + header block.
const maxHeaderBytes = 64 * 1024

// ResponseHead is the parsed status line plus headers of a response.
type ResponseHead struct {
	Version    string
	StatusCode int
	StatusText string
	Headers    *header.Ordered
}

// Reader parses one HTTP/1.1 response at a time from the underlying
// stream.
type Reader struct {
	br         *bufio.Reader
	maxInitial int
}

// NewReader wraps r for reading responses with the default initial-block
// bound.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, maxHeaderBytes)
}

// NewReaderSize wraps r with an explicit bound on the status line plus
// header block. maxInitial <= 0 selects the default.
func NewReaderSize(r io.Reader, maxInitial int) *Reader {
	if maxInitial <= 0 {
		maxInitial = maxHeaderBytes
	}
	return &Reader{br: bufio.NewReader(r), maxInitial: maxInitial}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadHead reads the status line and header block.
func (r *Reader) ReadHead() (*ResponseHead, error) {
	statusLine, err := readLine(r.br)
	if err != nil {
		return nil, mapReadErr(err)
	}

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return nil, ErrReceivedDataMalformed
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, ErrReceivedDataMalformed
	}
	text := ""
	if len(parts) == 3 {
		text = parts[2]
	}

	if parts[0] != "HTTP/1.0" && parts[0] != "HTTP/1.1" {
		return nil, ErrReceivedDataMalformed
	}

	head := &ResponseHead{Version: parts[0], StatusCode: code, StatusText: text, Headers: header.New()}

	total := len(statusLine)
	var lastKey string
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			return nil, mapReadErr(err)
		}

		total += len(line)
		if total > r.maxInitial {
			return nil, ErrEntityTooLarge
		}

		if line == "\r\n" || line == "\n" {
			break
		}

		trimmed := strings.TrimRight(line, "\r\n")

		// RFC 7230 3.2.4: a leading space/tab continues the previous
		// header's value.
		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			values := head.Headers.Values(lastKey)
			if len(values) == 0 {
				continue
			}
			head.Headers.Set(lastKey, values[len(values)-1]+strings.TrimSpace(trimmed))
			continue
		}

		kv := strings.SplitN(trimmed, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		head.Headers.Add(key, value)
		lastKey = key
	}

	return head, nil
}

// bodyPolicy decides how a response body must be read given its head
// and the request method that produced it.
type bodyPolicy int

const (
	bodyNone bodyPolicy = iota
	bodyChunked
	bodyFixed
	bodyUntilClose
)

func classify(head *ResponseHead, method string) (bodyPolicy, int64) {
	if method == "HEAD" ||
		(head.StatusCode >= 100 && head.StatusCode < 200) ||
		head.StatusCode == 204 || head.StatusCode == 304 {
		return bodyNone, 0
	}

	if te, _ := head.Headers.Get("Transfer-Encoding"); strings.Contains(strings.ToLower(te), "chunked") {
		return bodyChunked, 0
	}
	if cl, ok := head.Headers.Get("Content-Length"); ok {
		length, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || length < 0 {
			return bodyFixed, 0
		}
		return bodyFixed, length
	}
	return bodyUntilClose, 0
}

// ReadBody reads the response body for head according to the framing it
// declares, writing at most maxBodySize bytes into dst and returning
// ErrEntityTooLarge if the body would exceed it.
func (r *Reader) ReadBody(head *ResponseHead, method string, dst io.Writer, maxBodySize int64) error {
	policy, fixedLen := classify(head, method)

	limited := &limitWriter{w: dst, limit: maxBodySize}

	switch policy {
	case bodyNone:
		return nil
	case bodyChunked:
		return r.readChunked(limited, head.Headers)
	case bodyFixed:
		return r.readFixed(limited, fixedLen)
	default:
		return r.readUntilClose(limited)
	}
}

type limitWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.written+int64(len(p)) > l.limit {
		return 0, ErrEntityTooLarge
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return n, err
}

func (r *Reader) readChunked(dst io.Writer, trailers *header.Ordered) error {
	for {
		line, err := readLine(r.br)
		if err != nil {
			return mapReadErr(err)
		}
		sizeStr := strings.TrimSpace(strings.Split(line, ";")[0])
		size, err := strconv.ParseInt(sizeStr, 16, 64)
		if err != nil {
			return ErrReceivedDataMalformed
		}
		if size == 0 {
			break
		}

		if _, err := io.CopyN(dst, r.br, size); err != nil {
			if err == ErrEntityTooLarge {
				return err
			}
			return mapReadErr(err)
		}
		crlf := make([]byte, 2)
		if _, err := io.ReadFull(r.br, crlf); err != nil {
			return mapReadErr(err)
		}
	}

	for {
		line, err := readLine(r.br)
		if err != nil {
			return mapReadErr(err)
		}
		if line == "" {
			break
		}
		if kv := strings.SplitN(line, ":", 2); len(kv) == 2 {
			trailers.Add(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1]))
		}
	}

	return nil
}

func (r *Reader) readFixed(dst io.Writer, length int64) error {
	if length <= 0 {
		return nil
	}
	_, err := io.CopyN(dst, r.br, length)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Tolerate a short body: some servers misreport Content-Length.
		return nil
	}
	if err == ErrEntityTooLarge {
		return err
	}
	return mapReadErr(err)
}

func (r *Reader) readUntilClose(dst io.Writer) error {
	_, err := io.Copy(dst, r.br)
	if err != nil && err != io.EOF {
		if err == ErrEntityTooLarge {
			return err
		}
		return mapReadErr(err)
	}
	return nil
}

func mapReadErr(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrReadAborted
	}
	return err
}
