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

package headers

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/TheCacophonyProject/lepton3"
	"gopkg.in/yaml.v1"
)

// Keys sent by the camera service at the start of a frame connection.
const (
	XResolution = "ResX"
	YResolution = "ResY"
	FPS         = "FPS"
	FrameSize   = "FrameSize"
	Brand       = "Brand"
	Model       = "Model"
)

// HeaderInfo contains the camera description fields returned by a
// camera service.
type HeaderInfo struct {
	resX      int
	resY      int
	fps       int
	framesize int
	brand     string
	model     string
}

// New describes a camera from its geometry, checking the values make
// sense. Frames are assumed to carry no telemetry.
func New(resX, resY, fps int, brand, model string) (*HeaderInfo, error) {
	h := &HeaderInfo{
		resX:      resX,
		resY:      resY,
		fps:       fps,
		framesize: resX * resY * 2,
		brand:     brand,
		model:     model,
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Lepton3 describes a FLIR Lepton 3 as driven by leptond.
func Lepton3() *HeaderInfo {
	return &HeaderInfo{
		resX:      lepton3.FrameCols,
		resY:      lepton3.FrameRows,
		fps:       lepton3.FramesHz,
		framesize: lepton3.FrameCols * lepton3.FrameRows * 2,
		brand:     "flir",
		model:     "lepton3",
	}
}

// ResX implements cptvframe.CameraSpec.
func (h *HeaderInfo) ResX() int {
	return h.resX
}

// ResY implements cptvframe.CameraSpec.
func (h *HeaderInfo) ResY() int {
	return h.resY
}

// FPS implements cptvframe.CameraSpec.
func (h *HeaderInfo) FPS() int {
	return h.fps
}

// FrameSize returns the number of bytes in each frame (include any
// telemetry bytes).
func (h *HeaderInfo) FrameSize() int {
	return h.framesize
}

// PixelOffset returns where the 16 bit pixel data starts within a frame.
// Anything before it is telemetry.
func (h *HeaderInfo) PixelOffset() int {
	return h.framesize - h.resX*h.resY*2
}

// Model returns the camera model.
func (h *HeaderInfo) Model() string {
	return h.model
}

// Brand returns the camera brand.
func (h *HeaderInfo) Brand() string {
	return h.brand
}

func (h *HeaderInfo) validate() error {
	if h.resX <= 0 || h.resY <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", h.resX, h.resY)
	}
	if h.fps <= 0 {
		return fmt.Errorf("invalid frame rate %d", h.fps)
	}
	if h.PixelOffset() < 0 {
		return fmt.Errorf("frame size %d too small for %dx%d pixels", h.framesize, h.resX, h.resY)
	}
	return nil
}

// ReadHeaderInfo reads YAML header lines up to the first blank line.
func ReadHeaderInfo(reader *bufio.Reader) (*HeaderInfo, error) {
	var buf bytes.Buffer
	for {
		line, err := reader.ReadString(byte('\n'))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		buf.WriteString(line)
	}
	h := make(map[string]interface{})
	err := yaml.Unmarshal(buf.Bytes(), &h)
	if err != nil {
		return nil, err
	}

	info := &HeaderInfo{
		resX:      toInt(h[XResolution]),
		resY:      toInt(h[YResolution]),
		fps:       toInt(h[FPS]),
		framesize: toInt(h[FrameSize]),
		brand:     toStr(h[Brand]),
		model:     toStr(h[Model]),
	}
	if err := info.validate(); err != nil {
		return nil, fmt.Errorf("bad camera header: %v", err)
	}
	return info, nil
}

func toInt(v interface{}) int {
	out, ok := v.(int)
	if !ok {
		return 0
	}
	return out
}

func toStr(v interface{}) string {
	out, ok := v.(string)
	if !ok {
		return ""
	}
	return out
}
