// Package sse frames an upstream byte stream into discrete event payloads.
//
// The decoder is protocol-agnostic: it knows about newline-delimited lines, the
// "data:" event marker and the "[DONE]" end-of-stream sentinel, and nothing about
// what the JSON payloads mean. Transport bytes are accumulated across reads, so
// an event whose bytes span two or more reads (including a multi-byte UTF-8
// sequence split at a read boundary) reassembles intact; incomplete trailing
// bytes simply stay buffered until their newline arrives.
package sse

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
)

const doneSentinel = "[DONE]"

var dataMarker = []byte("data:")

// Decoder decodes one event stream. Not safe for concurrent use; each call owns
// its own Decoder.
type Decoder struct {
	r     io.Reader
	buf   []byte // unconsumed bytes, possibly ending mid-line
	chunk []byte
	err   error // pending transport error, surfaced once the buffer drains
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, 4096)}
}

// Next returns the JSON payload of the next event. It returns io.EOF when the
// end-of-stream sentinel is observed or the transport signals end-of-data, and
// never blocks once the transport is exhausted. A malformed JSON payload
// discards only that single event; it never aborts the read loop.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		for {
			nl := bytes.IndexByte(d.buf, '\n')
			if nl < 0 {
				break
			}
			line := d.buf[:nl]
			d.buf = d.buf[nl+1:]

			payload, done, ok := decodeLine(line)
			if done {
				return nil, io.EOF
			}
			if ok {
				return payload, nil
			}
		}

		if d.err != nil {
			// Flush a final line the transport ended without a newline.
			if len(d.buf) > 0 {
				line := d.buf
				d.buf = nil
				payload, done, ok := decodeLine(line)
				if done {
					return nil, io.EOF
				}
				if ok {
					return payload, nil
				}
			}
			return nil, d.err
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf = append(d.buf, d.chunk[:n]...)
		}
		if err != nil {
			// Drain buffered lines before surfacing the error.
			d.err = err
		}
	}
}

// decodeLine extracts an event payload from one line. ok is false for non-event
// lines (blank lines, comments, "event:" type markers) and for payloads that are
// not valid JSON; done is true for the end-of-stream sentinel, which is never
// parsed as JSON.
func decodeLine(line []byte) (payload json.RawMessage, done, ok bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	rest, found := bytes.CutPrefix(line, dataMarker)
	if !found {
		return nil, false, false
	}
	rest = bytes.TrimSpace(rest)
	if len(rest) == 0 {
		return nil, false, false
	}
	if string(rest) == doneSentinel {
		return nil, true, false
	}
	if !json.Valid(rest) {
		slog.Debug("discarding malformed stream event", "payload", string(rest))
		return nil, false, false
	}
	// Copy out of the shared buffer: the caller may retain the payload past the
	// next Read into the same backing array.
	return json.RawMessage(bytes.Clone(rest)), false, true
}
