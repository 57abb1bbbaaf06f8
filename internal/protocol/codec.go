package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrDecode marks a malformed frame: a non-decimal or negative length prefix, a
// length over MaxFrameBytes, more than 20 buffered bytes with no space after a
// length prefix, or a payload that fails to unmarshal. The connection
// owning the Reader must close on this error (spec §7, DecodeError).
var ErrDecode = errors.New("protocol: malformed frame")

// MaxFrameBytes bounds a single payload's length to guard against a hostile or
// corrupt length prefix forcing unbounded buffering.
const MaxFrameBytes = 16 << 20 // 16 MiB

// Reader incrementally parses the length-prefixed frame stream described in
// the wire framing: "<decimal length> <payload bytes>" repeated. Feed may be
// called with arbitrarily chunked reads; a trailing partial frame is held
// across calls.
type Reader struct {
	buf []byte
}

// Feed appends data to the reader's internal buffer and returns every complete
// message now parseable, in wire order. Any trailing partial frame is retained
// for the next call. A malformed frame returns ErrDecode; the caller must stop
// using the Reader and close the connection.
func (r *Reader) Feed(data []byte) ([]*Message, error) {
	r.buf = append(r.buf, data...)

	var out []*Message
	for {
		sp := bytes.IndexByte(r.buf, ' ')
		if sp < 0 {
			if len(r.buf) > 20 {
				// No plausible decimal length this long; the stream is garbage.
				return out, ErrDecode
			}
			break
		}

		n, err := strconv.Atoi(string(r.buf[:sp]))
		if err != nil || n < 0 {
			return out, ErrDecode
		}
		if n > MaxFrameBytes {
			return out, ErrDecode
		}

		frameEnd := sp + 1 + n
		if len(r.buf) < frameEnd {
			break // payload not fully arrived yet
		}

		payload := r.buf[sp+1 : frameEnd]
		msg := &Message{}
		if err := json.Unmarshal(payload, msg); err != nil {
			return out, ErrDecode
		}
		out = append(out, msg)

		r.buf = r.buf[frameEnd:]
	}
	return out, nil
}

// Encode serializes msg into one length-prefixed frame: the ASCII decimal
// length of its JSON payload, a single space, then the payload itself.
func Encode(msg *Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	prefix := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(prefix)+1+len(payload))
	out = append(out, prefix...)
	out = append(out, ' ')
	out = append(out, payload...)
	return out, nil
}

// EncodeAuthReply formats the fixed-width reply to the first (AUTH) frame: a
// signed, zero-padded, 4-character decimal id, sent unframed (no length
// prefix). id is either the newly assigned peer id, AuthFailedID, or
// RegistryFullID.
func EncodeAuthReply(id int) []byte {
	return []byte(fmt.Sprintf("%04d", id))
}

// WriteMessage encodes msg and writes the complete frame to w, retrying
// through short writes.
func WriteMessage(w io.Writer, msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	return writeAll(w, frame)
}

// WriteFrameBytes writes an already-encoded frame to w, retrying through
// short writes. Used by callers (e.g. the dispatch worker) that encode once
// and fan the same frame out to many connections.
func WriteFrameBytes(w io.Writer, frame []byte) error {
	return writeAll(w, frame)
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
