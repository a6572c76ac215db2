package jsonrpc

import (
	"bytes"
	"encoding/json"
	"io"
)

// frameDelimiter terminates every frame on the wire: the hub writes one JSON
// object per line. Matching the closing brace plus newline assumes that byte
// pair never occurs inside a JSON string value. The hub's encoder escapes
// newlines so this holds in practice, but it is a property of the peer, not
// of JSON itself.
var frameDelimiter = []byte("}\n")

// EncodeFrame marshals a message and appends the newline terminator
func EncodeFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FrameReader assembles newline-delimited JSON frames from a byte stream.
// Bytes received beyond the first complete frame are kept for the next call,
// so coalesced and split frames both come out whole.
type FrameReader struct {
	reader io.Reader
	buffer bytes.Buffer
	chunk  []byte
}

// NewFrameReader wraps a connection or any other byte stream
func NewFrameReader(reader io.Reader) *FrameReader {
	return &FrameReader{
		reader: reader,
		chunk:  make([]byte, 4096),
	}
}

// ReadFrame returns the next complete frame without its trailing newline.
// A read deadline expiring on the underlying connection surfaces as that
// connection's timeout error with any partial frame retained. A closed peer
// surfaces as ErrConnectionBroken.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		if frame := fr.takeFrame(); frame != nil {
			return frame, nil
		}
		n, err := fr.reader.Read(fr.chunk)
		if n > 0 {
			fr.buffer.Write(fr.chunk[:n])
			continue
		}
		if err == io.EOF {
			return nil, ErrConnectionBroken
		}
		if err != nil {
			return nil, err
		}
	}
}

// takeFrame cuts the first complete frame off the buffer, nil if none yet
func (fr *FrameReader) takeFrame() []byte {
	data := fr.buffer.Bytes()
	index := bytes.Index(data, frameDelimiter)
	if index < 0 {
		return nil
	}
	frame := make([]byte, index+1)
	copy(frame, data[:index+1])
	fr.buffer.Next(index + 2)
	return frame
}
