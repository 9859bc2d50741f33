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

// Package codec converts between raw pixel buffers, images and the
// compressed bytes that go on the wire.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultQuality matches what phone camera pipelines typically use for a
// live preview.
const DefaultQuality = 70

// Encoder compresses an image.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// Decoder decompresses an image.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// EncodeError wraps a failure to compress a frame.
type EncodeError struct {
	Cause error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode failed: %v", e.Cause)
}

func (e *EncodeError) Unwrap() error { return e.Cause }

// DecodeError wraps a failure to decompress a frame.
type DecodeError struct {
	Size  int
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode of %d byte frame failed: %v", e.Size, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// JPEG implements Encoder and Decoder. A zero Quality uses DefaultQuality.
type JPEG struct {
	Quality int
}

func (c JPEG) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, &EncodeError{Cause: fmt.Errorf("nil image")}
	}
	quality := c.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, &EncodeError{Cause: err}
	}
	return buf.Bytes(), nil
}

func (c JPEG) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Size: len(data), Cause: err}
	}
	return img, nil
}
