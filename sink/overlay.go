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

package sink

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/TheCacophonyProject/thermal-streamer/client"
)

const (
	rateWindow    = time.Second
	overlayMargin = 2
)

// Overlay stamps the local time and the measured frame rate onto each
// image before passing it to Next. The input image is not modified.
type Overlay struct {
	Next client.DisplaySink

	mu          sync.Mutex
	nowFunc     func() time.Time
	windowStart time.Time
	windowCount int
	fps         float64
}

func NewOverlay(next client.DisplaySink) *Overlay {
	return &Overlay{
		Next:    next,
		nowFunc: time.Now,
	}
}

func (o *Overlay) Show(img image.Image) {
	o.Next.Show(o.stamp(img, o.label()))
}

// label updates the frame rate estimate and returns the text to draw.
func (o *Overlay) label() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.nowFunc()
	if o.windowStart.IsZero() {
		o.windowStart = now
	}
	o.windowCount++
	if elapsed := now.Sub(o.windowStart); elapsed >= rateWindow {
		o.fps = float64(o.windowCount) / elapsed.Seconds()
		o.windowStart = now
		o.windowCount = 0
	}
	return fmt.Sprintf("%s %.1ffps", now.Format("15:04:05"), o.fps)
}

func (o *Overlay) stamp(img image.Image, text string) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.RGBA{R: 0xff, G: 0xff, A: 0xff}),
		Face: face,
		Dot:  fixed.P(b.Min.X+overlayMargin, b.Min.Y+overlayMargin+face.Ascent),
	}
	d.DrawString(text)
	return out
}
