package symtab

import (
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"

	"github.com/sxrt/sxrt/heap"
)

// ToUTF16 re-encodes a Go string as the UTF-16 code-unit buffer a TEXT
// cell indexes into — the Go-native analogue of the original
// implementation's wchar_t buffers.
func ToUTF16(s string) []uint16 { return utf16.Encode([]rune(s)) }

// FromUTF16 decodes a wide-character buffer slice back to a Go string.
func FromUTF16(buf []uint16) string { return string(utf16.Decode(buf)) }

// utf8ToUTF16 transcodes via golang.org/x/text/encoding/unicode rather
// than the stdlib-only ToUTF16 above; it is the engine behind
// MkTextUTF8/mk_text_utf8 (spec.md §6) so that non-BMP and malformed
// input go through a real streaming transcoder instead of naive rune
// conversion, matching how a production embedder would feed in text read
// from an arbitrary external encoding.
func utf8ToUTF16(s string) ([]uint16, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := enc.String(s)
	if err != nil {
		return nil, err
	}
	raw := []byte(encoded)
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return out, nil
}

// MkText allocates a TEXT cell over an explicit UTF-16 buffer (mk_text).
func (t *Table) MkText(buf []uint16) (Ref, error) {
	return t.h.MkTextFrom(append([]uint16(nil), buf...))
}

// MkTextUTF8 allocates a TEXT cell from a UTF-8 Go string, transcoding
// through golang.org/x/text/encoding/unicode (mk_text_utf8, spec.md §6).
func (t *Table) MkTextUTF8(s string) (Ref, error) {
	buf, err := utf8ToUTF16(s)
	if err != nil {
		return heap.NIL, err
	}
	return t.h.MkTextFrom(buf)
}

// TextString reads a TEXT cell back out as a Go string.
func (t *Table) TextString(r Ref) string { return FromUTF16(t.h.TextOf(r)) }
