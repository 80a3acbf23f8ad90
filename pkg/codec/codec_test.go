package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/WhileEndless/go-rawhttp/v3/pkg/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFixedLengthBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteRequestLine("POST", "/x"))

	h := header.New()
	h.Set("Host", "example.com")
	h.Set("Content-Length", "5")
	require.NoError(t, w.WriteHeaders(h, false))

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "POST /x HTTP/1.1\r\n"))
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))
}

func TestWriterChunkedBody(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteRequestLine("POST", "/x"))
	h := header.New()
	require.NoError(t, w.WriteHeaders(h, true))

	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	assert.Contains(t, buf.String(), "3\r\nabc\r\n0\r\n\r\n")

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrWriteAfterFinished)
}

func TestReaderParsesStatusLineAndHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-Multi: a\r\n continued\r\n\r\nhello"
	r := NewReader(strings.NewReader(raw))

	head, err := r.ReadHead()
	require.NoError(t, err)
	assert.Equal(t, 200, head.StatusCode)
	assert.Equal(t, "OK", head.StatusText)
	v, _ := head.Headers.Get("X-Multi")
	assert.Equal(t, "acontinued", v)

	var body bytes.Buffer
	require.NoError(t, r.ReadBody(head, "GET", &body, 1024))
	assert.Equal(t, "hello", body.String())
}

func TestReaderChunkedBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	r := NewReader(strings.NewReader(raw))
	head, err := r.ReadHead()
	require.NoError(t, err)

	var body bytes.Buffer
	require.NoError(t, r.ReadBody(head, "GET", &body, 1024))
	assert.Equal(t, "Wikipedia", body.String())
}

func TestReaderHeadResponseHasNoBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n"
	r := NewReader(strings.NewReader(raw))
	head, err := r.ReadHead()
	require.NoError(t, err)

	var body bytes.Buffer
	require.NoError(t, r.ReadBody(head, "HEAD", &body, 1024))
	assert.Equal(t, 0, body.Len())
}

func TestReaderEntityTooLarge(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n0123456789"
	r := NewReader(strings.NewReader(raw))
	head, err := r.ReadHead()
	require.NoError(t, err)

	var body bytes.Buffer
	err = r.ReadBody(head, "GET", &body, 4)
	assert.ErrorIs(t, err, ErrEntityTooLarge)
}

func TestReaderInitialBlockTooLarge(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Big: " + strings.Repeat("a", 100) + "\r\n\r\n"
	r := NewReaderSize(strings.NewReader(raw), 64)
	_, err := r.ReadHead()
	assert.ErrorIs(t, err, ErrEntityTooLarge)
}

func TestReaderMalformedStatusLine(t *testing.T) {
	r := NewReader(strings.NewReader("NOT A STATUS LINE\r\n\r\n"))
	_, err := r.ReadHead()
	assert.ErrorIs(t, err, ErrReceivedDataMalformed)
}

func TestReaderRejectsUnsupportedVersion(t *testing.T) {
	r := NewReader(strings.NewReader("HTTP/1.2 200 OK\r\n\r\n"))
	_, err := r.ReadHead()
	assert.ErrorIs(t, err, ErrReceivedDataMalformed)
}

func TestReaderUntilCloseBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\nrest of the stream"
	r := NewReader(strings.NewReader(raw))
	head, err := r.ReadHead()
	require.NoError(t, err)

	var body bytes.Buffer
	require.NoError(t, r.ReadBody(head, "GET", &body, 1024))
	assert.Equal(t, "rest of the stream", body.String())
}
