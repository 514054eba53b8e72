package media

import (
	"bufio"
	"bytes"
	"io"
)

// signatures is matched in order against the first four bytes.
var signatures = []struct {
	magic []byte
	typ   Type
}{
	{[]byte{0x89, 0x50, 0x4E, 0x47}, PNG},
	{[]byte{0x47, 0x49, 0x46, 0x38}, GIF},
	{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, JPG},
	{[]byte{0xFF, 0xD8, 0xFF, 0xE1}, JPG},
	{[]byte{0xFF, 0xD8, 0xFF, 0xE2}, JPG},
	{[]byte{0xFF, 0xD8, 0xFF, 0xE3}, JPG},
	{[]byte{0xFF, 0xD8, 0xFF, 0xE8}, JPG},
}

// Sniff classifies b by its magic bytes. Buffers shorter than four bytes
// are always Unknown, even if they start with the bitmap marker.
func Sniff(b []byte) Type {
	if len(b) < 4 {
		return Unknown
	}
	if b[0] == 0x42 && b[1] == 0x4D {
		return BMP
	}
	head := b[:4]
	for _, sig := range signatures {
		if bytes.Equal(head, sig.magic) {
			return sig.typ
		}
	}
	return Unknown
}

// SniffReader classifies the stream r without consuming it. The returned
// reader yields the full original stream.
func SniffReader(r io.Reader) (Type, io.Reader) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)
	return Sniff(head), br
}
