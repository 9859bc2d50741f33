// thermal-streamer - stream live thermal video to remote viewers
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package protocol implements the two wire formats used to carry encoded
// images over a stream connection.
//
// LengthPrefixed (the default) sends every image as a 4 byte big-endian
// length followed by exactly that many payload bytes. Raw sends images back
// to back without any prefix; the receiver finds the image boundaries by
// walking the JPEG marker structure. Raw only works for JPEG payloads and
// only interoperates with a peer using the same format.
package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// Framing selects a wire format.
type Framing int

const (
	LengthPrefixed Framing = iota
	Raw
)

func (f Framing) String() string {
	switch f {
	case LengthPrefixed:
		return "length-prefixed"
	case Raw:
		return "raw"
	}
	return fmt.Sprintf("framing(%d)", int(f))
}

// ParseFraming converts a config value into a Framing. An empty string
// selects LengthPrefixed.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "length-prefixed":
		return LengthPrefixed, nil
	case "raw":
		return Raw, nil
	}
	return 0, fmt.Errorf("unknown framing %q (want length-prefixed or raw)", s)
}

// FrameWriter writes one complete frame per call and flushes it.
type FrameWriter interface {
	WriteFrame(payload []byte) error
}

// FrameReader returns one complete frame per call. io.EOF means the peer
// closed the stream cleanly between frames.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// NewFrameWriter returns a writer for the given framing.
func NewFrameWriter(w io.Writer, framing Framing) FrameWriter {
	if framing == Raw {
		return &RawWriter{w: bufio.NewWriter(w)}
	}
	return NewWriter(w)
}

// NewFrameReader returns a reader for the given framing. maxSize limits
// length prefixed frames; 0 means no limit.
func NewFrameReader(r io.Reader, framing Framing, maxSize uint32) FrameReader {
	if framing == Raw {
		return NewJPEGReader(r)
	}
	fr := NewReader(r)
	fr.MaxSize = maxSize
	return fr
}

// TruncatedFrameError is returned when the stream ends part way through a
// frame. Want is zero when the frame size is not known up front.
type TruncatedFrameError struct {
	Want uint32
	Got  int
}

func (e *TruncatedFrameError) Error() string {
	if e.Want == 0 {
		return fmt.Sprintf("truncated frame: stream ended after %d bytes", e.Got)
	}
	return fmt.Sprintf("truncated frame: got %d of %d bytes", e.Got, e.Want)
}

// FrameTooLargeError is returned when a length prefix exceeds the reader's
// MaxSize.
type FrameTooLargeError struct {
	Size    uint32
	MaxSize uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds limit of %d", e.Size, e.MaxSize)
}
