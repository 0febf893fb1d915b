package core

// streaming.go cleans uploaded bytes on their way into ReadText.
//
//   - BOMSkippingReader drops the UTF-8 BOM that spreadsheet exports prepend,
//     which would otherwise glue itself onto the "date" header.
//   - UTF8Sanitizer replaces invalid UTF-8 bytes with '?'.
//   - limitedReader fails with ErrFileTooLarge past the configured size.
//   - contextReader stops reading once the request context is done.
//
// WrapForReading applies them in the order they must run.

import (
	"context"
	"errors"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned when an upload exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader skips a leading UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. The first call peeks at up to three bytes.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if n == 3 && head == utf8BOM {
			n = 0
		}
		r.pending = append(r.pending[:0], head[:n]...)
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// sanitizeChunkSize is how much UTF8Sanitizer reads from its source at once.
const sanitizeChunkSize = 32 << 10

// UTF8Sanitizer replaces invalid UTF-8 bytes with '?' without growing the
// data. It decodes a chunk at a time into its own buffer, so callers may
// read with a buffer of any size. A multi-byte sequence split across chunks
// is carried to the front of the next chunk before it is judged.
type UTF8Sanitizer struct {
	reader io.Reader
	buf    []byte
	out    []byte // sanitized bytes not yet returned; aliases buf
	tail   int    // buf[tail:end] is a truncated sequence awaiting more input
	end    int
	err    error
}

// NewUTF8Sanitizer creates a new sanitizing reader.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader: r,
		buf:    make([]byte, sanitizeChunkSize),
	}
}

// Read implements io.Reader. The source's error is returned once every
// byte read before it has been handed out.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads the next chunk behind any carried bytes and sanitizes it.
func (s *UTF8Sanitizer) fill() {
	carry := copy(s.buf, s.buf[s.tail:s.end])
	n, err := s.reader.Read(s.buf[carry:])
	n += carry
	s.err = err

	write, read := sanitize(s.buf[:n], err != nil)
	s.out = s.buf[:write]
	s.tail, s.end = read, n
}

// sanitize rewrites data in place. It returns how many bytes are ready and
// where an unfinished trailing sequence starts; with final set, nothing is
// held back and a truncated tail becomes '?'.
func sanitize(data []byte, final bool) (write, read int) {
	for read < len(data) {
		if b := data[read]; b < utf8.RuneSelf {
			data[write] = b
			write++
			read++
			continue
		}
		if !final && !utf8.FullRune(data[read:]) {
			return write, read
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write, read
}

// limitedReader returns ErrFileTooLarge once more than max bytes were read.
type limitedReader struct {
	reader io.Reader
	max    int64
	read   int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.reader.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}

// contextReader fails with the context error once ctx is done.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.reader.Read(p)
}

// WrapForReading applies, outermost last: context check, size limit, BOM
// skipping, then UTF-8 sanitization. maxBytes <= 0 disables the limit.
func WrapForReading(ctx context.Context, r io.Reader, maxBytes int64) io.Reader {
	var wrapped io.Reader = &contextReader{ctx: ctx, reader: r}
	wrapped = &limitedReader{reader: wrapped, max: maxBytes}
	wrapped = NewBOMSkippingReader(wrapped)
	return NewUTF8Sanitizer(wrapped)
}
