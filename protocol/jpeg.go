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
	"errors"
	"io"
)

const (
	markerPrefix = 0xff
	markerSOI    = 0xd8
	markerEOI    = 0xd9
	markerSOS    = 0xda
	markerTEM    = 0x01
	markerRST0   = 0xd0
	markerRST7   = 0xd7
)

// ErrBadJPEG is returned when the marker structure of an image cannot be
// followed.
var ErrBadJPEG = errors.New("malformed JPEG marker structure")

// JPEGReader splits a stream of back to back JPEG images. Bytes before the
// start of an image are discarded and counted in Skipped.
type JPEGReader struct {
	r       *bufio.Reader
	Skipped int64
}

func NewJPEGReader(r io.Reader) *JPEGReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	return &JPEGReader{r: br}
}

// ReadFrame returns the bytes of the next complete image, from SOI to EOI
// inclusive. It returns io.EOF if the stream ends before another image
// starts and a *TruncatedFrameError if it ends inside one.
func (jr *JPEGReader) ReadFrame() ([]byte, error) {
	if err := jr.skipToSOI(); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 64*1024))
	buf.Write([]byte{markerPrefix, markerSOI})

	marker, err := jr.nextMarker(buf)
	for {
		if err != nil {
			return nil, truncated(buf, err)
		}
		switch {
		case marker == markerEOI:
			return buf.Bytes(), nil
		case marker == markerSOI:
			return nil, ErrBadJPEG
		case marker == markerTEM || (marker >= markerRST0 && marker <= markerRST7):
			marker, err = jr.nextMarker(buf)
		default:
			if err = jr.copySegment(buf); err != nil {
				continue
			}
			if marker == markerSOS {
				marker, err = jr.scanEntropyData(buf)
			} else {
				marker, err = jr.nextMarker(buf)
			}
		}
	}
}

func (jr *JPEGReader) skipToSOI() error {
	prevFF := false
	for {
		c, err := jr.r.ReadByte()
		if err != nil {
			return err
		}
		if prevFF && c == markerSOI {
			// The 0xff that preceded this was counted as skipped.
			jr.Skipped--
			return nil
		}
		prevFF = c == markerPrefix
		jr.Skipped++
	}
}

// nextMarker reads a marker that must start at the current position,
// skipping any fill bytes.
func (jr *JPEGReader) nextMarker(buf *bytes.Buffer) (byte, error) {
	c, err := jr.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if c != markerPrefix {
		return 0, ErrBadJPEG
	}
	for c == markerPrefix {
		if c, err = jr.r.ReadByte(); err != nil {
			return 0, err
		}
	}
	buf.WriteByte(markerPrefix)
	buf.WriteByte(c)
	return c, nil
}

// copySegment copies a marker segment whose 2 byte length includes itself.
func (jr *JPEGReader) copySegment(buf *bytes.Buffer) error {
	var size [2]byte
	if _, err := io.ReadFull(jr.r, size[:]); err != nil {
		return err
	}
	buf.Write(size[:])
	n := int64(size[0])<<8 | int64(size[1])
	if n < 2 {
		return ErrBadJPEG
	}
	_, err := io.CopyN(buf, jr.r, n-2)
	return err
}

// scanEntropyData copies entropy coded data up to the next marker that is
// neither a stuffed zero nor a restart marker, and returns that marker.
func (jr *JPEGReader) scanEntropyData(buf *bytes.Buffer) (byte, error) {
	for {
		c, err := jr.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c != markerPrefix {
			buf.WriteByte(c)
			continue
		}
		for c == markerPrefix {
			if c, err = jr.r.ReadByte(); err != nil {
				return 0, err
			}
		}
		buf.WriteByte(markerPrefix)
		buf.WriteByte(c)
		if c == 0x00 || (c >= markerRST0 && c <= markerRST7) {
			continue
		}
		return c, nil
	}
}

func truncated(buf *bytes.Buffer, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &TruncatedFrameError{Got: buf.Len()}
	}
	return err
}
