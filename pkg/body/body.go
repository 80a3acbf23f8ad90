// Package body implements the request body producer contract: a small
// streaming interface plus the concrete producers (raw bytes, URL-encoded
// forms, JSON, multipart/form-data) that satisfy it.
package body

import (
	"encoding/json"
	"io"
	"net/url"
)

// Producer streams a request body in chunks. Read follows io.Reader
// semantics: it returns io.EOF once exhausted, and may be called again
// after Rewind (if the producer implements Rewinder).
type Producer interface {
	Read(p []byte) (int, error)
}

// Lener is an optional capability: a producer that knows its total
// length up front without consuming itself.
type Lener interface {
	// Len returns the body length and whether it is known. A producer
	// that cannot determine its length (unbounded streams) returns
	// (0, false), which signals the caller to use chunked framing.
	Len() (int64, bool)
}

// Rewinder is an optional capability: a producer that can reset its
// internal cursor to replay a body, needed for 307/308 redirect replay.
type Rewinder interface {
	Rewind() error
}

// ContentTyper is an optional capability: a producer with an opinion on
// its own Content-Type (multipart bodies need to report their boundary).
type ContentTyper interface {
	ContentType() string
}

// Bytes is a Producer backed by an in-memory byte slice.
type Bytes struct {
	data []byte
	pos  int
}

// NewBytes wraps data as a request body.
func NewBytes(data []byte) *Bytes {
	return &Bytes{data: data}
}

func (b *Bytes) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// Len implements Lener.
func (b *Bytes) Len() (int64, bool) { return int64(len(b.data)), true }

// Rewind implements Rewinder.
func (b *Bytes) Rewind() error { b.pos = 0; return nil }

// UrlEncoded is a Producer over application/x-www-form-urlencoded data.
type UrlEncoded struct {
	*Bytes
}

// NewUrlEncoded builds a URL-encoded body from a flat form.
func NewUrlEncoded(form url.Values) *UrlEncoded {
	return &UrlEncoded{Bytes: NewBytes([]byte(form.Encode()))}
}

func (u *UrlEncoded) ContentType() string { return "application/x-www-form-urlencoded" }

// JSON is a Producer over a json.Marshal'd value.
type JSON struct {
	*Bytes
}

// NewJSON marshals v as the request body.
func NewJSON(v any) (*JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &JSON{Bytes: NewBytes(data)}, nil
}

func (j *JSON) ContentType() string { return "application/json" }

// Empty is a Producer with no content, used for bodyless requests.
type Empty struct{}

// NewEmpty returns the empty body producer. A fresh value is returned
// each time rather than a shared singleton, since nothing about Empty is
// mutable but callers should not rely on pointer identity.
func NewEmpty() *Empty { return &Empty{} }

func (*Empty) Read(p []byte) (int, error) { return 0, io.EOF }
func (*Empty) Len() (int64, bool)         { return 0, true }
func (*Empty) Rewind() error              { return nil }

// ResponseBody is the fully-read body of a response, with convenience
// decoders mirroring the request-side producers.
type ResponseBody []byte

// ToJSON unmarshals the body into v.
func (r ResponseBody) ToJSON(v any) error {
	return json.Unmarshal(r, v)
}

// ToString returns the body decoded as UTF-8 text.
func (r ResponseBody) ToString() string {
	return string(r)
}

// Bytes returns the raw body.
func (r ResponseBody) Bytes() []byte {
	return []byte(r)
}

// EmptyResponseBody is returned for responses with no body.
var EmptyResponseBody = ResponseBody(nil)
