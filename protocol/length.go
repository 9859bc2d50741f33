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

package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	// HeaderSize is the size of the length prefix.
	HeaderSize = 4

	// Payloads are read in steps of at most this so a bogus prefix can't
	// reserve memory the stream never fills.
	readChunk = 64 << 10
)

// ErrPayloadTooLong is returned when a payload can't be described by a
// length prefix.
var ErrPayloadTooLong = errors.New("payload longer than a length prefix can describe")

// PutLength writes a length prefix into b, which must be at least
// HeaderSize long.
func PutLength(b []byte, n uint32) {
	binary.BigEndian.PutUint32(b, n)
}

// Length decodes a length prefix.
func Length(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Writer writes length prefixed frames.
type Writer struct {
	w      *bufio.Writer
	header [HeaderSize]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame writes the prefix and payload and flushes both.
func (fw *Writer) WriteFrame(payload []byte) error {
	if err := checkLength(uint64(len(payload))); err != nil {
		return err
	}
	PutLength(fw.header[:], uint32(len(payload)))
	if _, err := fw.w.Write(fw.header[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return fw.w.Flush()
}

func checkLength(n uint64) error {
	if n > math.MaxUint32 {
		return ErrPayloadTooLong
	}
	return nil
}

// Reader reads length prefixed frames.
type Reader struct {
	r       io.Reader
	header  [HeaderSize]byte
	MaxSize uint32 // 0 for no limit
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame blocks until a whole frame has arrived. A stream that closes
// before or inside the prefix ends with io.EOF. A stream that closes inside
// the payload ends with a *TruncatedFrameError.
func (fr *Reader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	size := Length(fr.header[:])
	if fr.MaxSize > 0 && size > fr.MaxSize {
		return nil, &FrameTooLargeError{Size: size, MaxSize: fr.MaxSize}
	}

	var payload bytes.Buffer
	payload.Grow(int(min(size, readChunk)))
	n, err := io.CopyN(&payload, fr.r, int64(size))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &TruncatedFrameError{Want: size, Got: int(n)}
		}
		return nil, err
	}
	return payload.Bytes(), nil
}

// RawWriter writes frames without any prefix.
type RawWriter struct {
	w *bufio.Writer
}

func (rw *RawWriter) WriteFrame(payload []byte) error {
	if _, err := rw.w.Write(payload); err != nil {
		return err
	}
	return rw.w.Flush()
}
