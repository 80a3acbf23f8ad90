package body

import (
	"io"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, p Producer) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 4)
	for {
		n, err := p.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	b := NewBytes([]byte("hello world"))
	assert.Equal(t, []byte("hello world"), readAll(t, b))

	length, ok := b.Len()
	require.True(t, ok)
	assert.EqualValues(t, 11, length)

	require.NoError(t, b.Rewind())
	assert.Equal(t, []byte("hello world"), readAll(t, b))
}

func TestUrlEncoded(t *testing.T) {
	form := url.Values{"a": {"1"}, "b": {"x y"}}
	u := NewUrlEncoded(form)
	assert.Equal(t, "application/x-www-form-urlencoded", u.ContentType())
	assert.Equal(t, form.Encode(), string(readAll(t, u)))
}

func TestJSON(t *testing.T) {
	j, err := NewJSON(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "application/json", j.ContentType())
	assert.JSONEq(t, `{"n":1}`, string(readAll(t, j)))
}

func TestEmpty(t *testing.T) {
	e := NewEmpty()
	n, err := e.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	length, ok := e.Len()
	require.True(t, ok)
	assert.EqualValues(t, 0, length)
}

func TestResponseBody(t *testing.T) {
	rb := ResponseBody([]byte(`{"ok":true}`))
	var v struct{ Ok bool }
	require.NoError(t, rb.ToJSON(&v))
	assert.True(t, v.Ok)
	assert.Equal(t, `{"ok":true}`, rb.ToString())
}
