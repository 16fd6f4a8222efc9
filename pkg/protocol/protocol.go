// Package protocol defines the chat wire format: one JSON object per line,
// UTF-8, newline-terminated.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the default maximum frame size (64KB), newline excluded.
const MaxFrameSize = 65536

var (
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrMalformedFrame = errors.New("protocol: malformed frame")
)

// Encoder writes frames to a stream. It is not safe for concurrent use.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes msg as a single newline-terminated frame with one Write call,
// so a frame is never split between concurrent writers of the same stream.
func (e *Encoder) Encode(msg *Message) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// Marshal encodes msg into a frame including the trailing newline.
func Marshal(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	// encoding/json escapes control characters, so data holds no raw newline.
	return append(data, '\n'), nil
}

// Decoder reads frames from a stream.
type Decoder struct {
	r   *bufio.Reader
	max int
}

// NewDecoder returns a decoder with the default frame size limit.
func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderSize(r, MaxFrameSize)
}

// NewDecoderSize returns a decoder rejecting frames longer than max bytes.
func NewDecoderSize(r io.Reader, max int) *Decoder {
	if max <= 0 {
		max = MaxFrameSize
	}
	return &Decoder{r: bufio.NewReader(r), max: max}
}

// Decode reads the next frame. Blank lines are skipped. It returns io.EOF when
// the stream ends cleanly between frames, ErrFrameTooLarge for oversize lines,
// and an error wrapping ErrMalformedFrame for anything that is not a JSON
// object (including the literal null).
func (d *Decoder) Decode() (*Message, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return Unmarshal(line)
	}
}

// Unmarshal decodes a single frame without its newline.
func Unmarshal(data []byte) (*Message, error) {
	var msg *Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: null frame", ErrMalformedFrame)
	}
	return msg, nil
}

func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		if len(line)+len(chunk) > d.max+1 {
			return nil, ErrFrameTooLarge
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(bytes.TrimSpace(line)) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, fmt.Errorf("protocol: read: %w", err)
		}
	}
}
