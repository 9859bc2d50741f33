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

package codec

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// NV21 wraps a planar NV21 buffer (a full resolution Y plane followed by
// interleaved V/U samples at quarter resolution) as a 4:2:0 YCbCr image.
// Width and height must be even.
func NV21(buf []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("invalid NV21 dimensions %dx%d", width, height)
	}
	ySize := width * height
	want := ySize + ySize/2
	if len(buf) < want {
		return nil, fmt.Errorf("NV21 buffer too short: got %d bytes, want %d", len(buf), want)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	copy(img.Y, buf[:ySize])
	vu := buf[ySize:want]
	for i := 0; i < len(img.Cb); i++ {
		img.Cr[i] = vu[2*i]
		img.Cb[i] = vu[2*i+1]
	}
	return img, nil
}

// NormaliseThermal stretches a frame of 16 bit sensor values across the
// full 8 bit grey range. A frame with a single value becomes mid grey.
func NormaliseThermal(pix [][]uint16) *image.Gray {
	height := len(pix)
	width := 0
	if height > 0 {
		width = len(pix[0])
	}
	img := image.NewGray(image.Rect(0, 0, width, height))

	var valMax uint16
	var valMin uint16 = math.MaxUint16
	for _, row := range pix {
		for _, val := range row {
			if val > valMax {
				valMax = val
			}
			if val < valMin {
				valMin = val
			}
		}
	}

	span := float64(valMax) - float64(valMin)
	for y, row := range pix {
		off := y * img.Stride
		for x, val := range row {
			if x >= width {
				break
			}
			if span == 0 {
				img.Pix[off+x] = 128
				continue
			}
			img.Pix[off+x] = uint8(math.Round(float64(val-valMin) * 255 / span))
		}
	}
	return img
}

// Scale enlarges img by an integer factor using nearest neighbour
// sampling, which keeps individual sensor pixels sharp.
func Scale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor)

	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(r)
	} else {
		dst = image.NewRGBA(r)
	}
	draw.NearestNeighbor.Scale(dst, r, img, b, draw.Src, nil)
	return dst
}
