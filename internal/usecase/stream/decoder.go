package stream

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeBufSize is the scratch buffer used per Transform call. It must be
// larger than utf8.UTFMax.
const decodeBufSize = 4096

// ChunkDecoder turns raw transport chunks into complete newline-terminated
// lines. Multi-byte characters split across chunk boundaries are carried to
// the next Feed; invalid byte sequences decode to U+FFFD.
type ChunkDecoder struct {
	dec     transform.Transformer
	pending []byte // undecoded bytes (incomplete UTF-8 sequence)
	carry   string // decoded text after the last newline
	scratch []byte
}

// NewChunkDecoder creates a decoder with empty carry-over state.
func NewChunkDecoder() *ChunkDecoder {
	return &ChunkDecoder{
		dec:     unicode.UTF8.NewDecoder(),
		scratch: make([]byte, decodeBufSize),
	}
}

// Feed decodes chunk and returns every line completed by it, in order,
// without the trailing newline (a preceding '\r' is stripped too).
func (d *ChunkDecoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.pending = append(d.pending, chunk...)
	text := d.decode(false)
	if text == "" {
		return nil
	}

	buf := d.carry + text
	idx := strings.LastIndexByte(buf, '\n')
	if idx < 0 {
		d.carry = buf
		return nil
	}
	d.carry = buf[idx+1:]

	parts := strings.Split(buf[:idx], "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

// Flush decodes any remaining bytes and returns the trailing partial line.
// It is only meaningful once the transport has ended normally; the decoder
// is empty afterwards.
func (d *ChunkDecoder) Flush() (string, bool) {
	buf := d.carry + d.decode(true)
	d.carry = ""
	d.pending = nil
	d.dec.Reset()

	buf = strings.TrimSuffix(buf, "\r")
	if buf == "" {
		return "", false
	}
	return buf, true
}

// Buffered reports the number of decoded characters and raw bytes held back
// waiting for more input.
func (d *ChunkDecoder) Buffered() (text, raw int) {
	return len(d.carry), len(d.pending)
}

// decode runs the streaming transformer over pending bytes. With atEOF false
// an incomplete trailing sequence stays in pending.
func (d *ChunkDecoder) decode(atEOF bool) string {
	var sb strings.Builder
	for len(d.pending) > 0 {
		nDst, nSrc, err := d.dec.Transform(d.scratch, d.pending, atEOF)
		sb.Write(d.scratch[:nDst])
		d.pending = d.pending[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		break
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return sb.String()
}
