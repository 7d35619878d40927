// Package frame implements the mbus wire framing: a length-prefixed,
// optionally zlib-compressed container around one JSON envelope string.
//
// A frame is:
//   - compression none: u32be length | length bytes of UTF-8 JSON
//   - compression zlib:  u32be length | u32be uncompressed_length | zlib(payload)
//
// The codec does no JSON parsing; that is internal/envelope's job.
//
// Called by: internal/broker, internal/client.
// Calls: compress/zlib (via github.com/klauspost/compress/zlib), encoding/binary.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compression selects the frame body encoding.
type Compression string

// Recognized compression methods, in the broker's preference order
// (first entry is most preferred). "none" is always last resort.
const (
	CompressionZlib Compression = "zlib"
	CompressionNone Compression = "none"
)

// Preference is the broker's compression preference order, used during
// command.create negotiation (spec.md §4.4): the broker picks the first
// entry here that also appears in the client's offered list.
var Preference = []Compression{CompressionZlib, CompressionNone}

// ErrCorruptFrame is returned by TryPop when a compressed frame's declared
// uncompressed length does not match the decompressed body.
var ErrCorruptFrame = fmt.Errorf("frame: corrupt frame")

const lengthHeaderSize = 4

// PushString appends a frame carrying s to buf using the given
// compression, returning the extended buffer.
func PushString(buf []byte, compression Compression, s string) ([]byte, error) {
	switch compression {
	case CompressionZlib:
		return pushZlib(buf, s)
	case CompressionNone, "":
		return pushPlain(buf, s), nil
	default:
		return nil, fmt.Errorf("frame: unknown compression %q", compression)
	}
}

func pushPlain(buf []byte, s string) []byte {
	header := make([]byte, lengthHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(s)))
	buf = append(buf, header...)
	buf = append(buf, s...)
	return buf
}

func pushZlib(buf []byte, s string) ([]byte, error) {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := io.WriteString(w, s); err != nil {
		return nil, fmt.Errorf("frame: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("frame: zlib close: %w", err)
	}

	body := compressed.Bytes()
	outer := make([]byte, lengthHeaderSize)
	binary.BigEndian.PutUint32(outer, uint32(lengthHeaderSize+len(body)))
	buf = append(buf, outer...)

	inner := make([]byte, lengthHeaderSize)
	binary.BigEndian.PutUint32(inner, uint32(len(s)))
	buf = append(buf, inner...)

	buf = append(buf, body...)
	return buf, nil
}

// TryPop removes and decodes the first complete frame from buf, returning
// the decoded JSON string, the remaining buffer, and whether a frame was
// available. If buf does not yet contain a full frame, ok is false and buf
// is returned unchanged.
func TryPop(buf []byte, compression Compression) (s string, rest []byte, ok bool, err error) {
	if len(buf) < lengthHeaderSize {
		return "", buf, false, nil
	}
	length := binary.BigEndian.Uint32(buf[:lengthHeaderSize])
	total := lengthHeaderSize + int(length)
	if len(buf) < total {
		return "", buf, false, nil
	}

	body := buf[lengthHeaderSize:total]
	rest = buf[total:]

	switch compression {
	case CompressionZlib:
		s, err = popZlib(body)
		if err != nil {
			return "", rest, false, err
		}
	case CompressionNone, "":
		s = string(body)
	default:
		return "", rest, false, fmt.Errorf("frame: unknown compression %q", compression)
	}
	return s, rest, true, nil
}

func popZlib(body []byte) (string, error) {
	if len(body) < lengthHeaderSize {
		return "", ErrCorruptFrame
	}
	uncompressedLength := binary.BigEndian.Uint32(body[:lengthHeaderSize])
	payload := body[lengthHeaderSize:]

	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", ErrCorruptFrame
	}
	defer r.Close()

	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", ErrCorruptFrame
	}
	if uint32(len(decoded)) != uncompressedLength {
		return "", ErrCorruptFrame
	}
	return string(decoded), nil
}

// Negotiate returns the first compression in the broker's preference
// order that also appears in offered, preserving spec.md's negotiation
// rule: the broker's order wins, not the client's.
func Negotiate(offered []string) Compression {
	offeredSet := make(map[string]bool, len(offered))
	for _, o := range offered {
		offeredSet[o] = true
	}
	for _, pref := range Preference {
		if offeredSet[string(pref)] {
			return pref
		}
	}
	return CompressionNone
}
