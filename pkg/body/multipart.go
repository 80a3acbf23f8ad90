package body

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// File is a multipart form field carrying binary content plus an
// optional filename, used to derive its Content-Type.
type File struct {
	Filename string
	Content  []byte
	Headers  map[string]string
}

// NewFile wraps content as a file field. filename may be empty, in
// which case the part is sent as application/octet-stream.
func NewFile(filename string, content []byte) *File {
	return &File{Filename: filename, Content: content}
}

func (f *File) contentType() string {
	if f.Headers != nil {
		if ct, ok := f.Headers["Content-Type"]; ok {
			return ct
		}
	}
	if f.Filename != "" {
		if ct := mime.TypeByExtension(filepath.Ext(f.Filename)); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

type multipartField struct {
	reader Producer
	length int64
}

// Multipart implements multipart/form-data encoding as a streaming
// Producer: each field is framed with its own boundary/disposition
// header, followed by a single trailing boundary affix.
type Multipart struct {
	boundary string
	fields   []multipartField

	mu       sync.Mutex
	cursor   int   // index into fields currently being read
	affixPos int   // bytes of the affix already emitted, once all fields drained
	bodyLen  int64 // memoized Len(), -1 until computed
}

// NewMultipart builds a multipart/form-data body from an ordered set of
// named values. Supported value types are string, []byte and *File;
// anything else is rejected.
func NewMultipart(fields []struct {
	Name  string
	Value any
}) (*Multipart, error) {
	boundary := "--------HiyoriFormBoundary" + strings.ReplaceAll(uuid.New().String(), "-", "")

	m := &Multipart{boundary: boundary, bodyLen: -1}

	for _, f := range fields {
		var part []byte
		switch v := f.Value.(type) {
		case string:
			part = buildStringPart(boundary, f.Name, v)
		case []byte:
			// A raw byte buffer is sent as a file part with no filename,
			// which defaults its type to application/octet-stream.
			part = buildFilePart(boundary, f.Name, &File{Content: v})
		case *File:
			part = buildFilePart(boundary, f.Name, v)
		default:
			return nil, fmt.Errorf("body: unsupported multipart field value type %T for %q", f.Value, f.Name)
		}
		b := NewBytes(part)
		m.fields = append(m.fields, multipartField{reader: b, length: int64(len(part))})
	}

	return m, nil
}

func buildStringPart(boundary, name, value string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
	b.WriteString(value)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// File parts carry their Content-Type before the disposition line, and
// the file bytes run straight into the next boundary with no CRLF of
// their own.
func buildFilePart(boundary, name string, f *File) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", f.contentType())
	if f.Filename != "" {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=%q; filename=%q\r\n\r\n", name, f.Filename)
	} else {
		fmt.Fprintf(&b, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
	}
	data := make([]byte, 0, b.Len()+len(f.Content))
	data = append(data, []byte(b.String())...)
	data = append(data, f.Content...)
	return data
}

// ContentType implements ContentTyper.
func (m *Multipart) ContentType() string {
	return "multipart/form-data; boundary=" + m.boundary
}

func (m *Multipart) affix() []byte {
	return []byte("--" + m.boundary + "--\r\n")
}

// Len implements Lener. It memoizes the sum of every field's length
// plus the trailing boundary affix.
func (m *Multipart) Len() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bodyLen >= 0 {
		return m.bodyLen, true
	}

	var total int64
	for _, f := range m.fields {
		total += f.length
	}
	total += int64(len(m.affix()))
	m.bodyLen = total
	return total, true
}

// Rewind implements Rewinder: resets the field cursor and every child
// field's own cursor.
func (m *Multipart) Rewind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursor = 0
	m.affixPos = 0
	for _, f := range m.fields {
		if r, ok := f.reader.(Rewinder); ok {
			if err := r.Rewind(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read implements Producer, walking each field's reader in turn and
// finally emitting the trailing boundary affix.
func (m *Multipart) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.cursor < len(m.fields) {
		n, err := m.fields[m.cursor].reader.Read(p)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF {
			m.cursor++
			continue
		}
		if err != nil {
			return 0, err
		}
	}

	affix := m.affix()
	if m.affixPos >= len(affix) {
		return 0, io.EOF
	}
	n := copy(p, affix[m.affixPos:])
	m.affixPos += n
	return n, nil
}
