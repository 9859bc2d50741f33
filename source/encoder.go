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

// Package source feeds raw camera frames into a frame buffer.
package source

import (
	"image"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/framebuffer"
	"github.com/TheCacophonyProject/thermal-streamer/loglimiter"
)

const logRepeatInterval = 10 * time.Second

// Handler receives raw frames from a capture pipeline.
type Handler interface {
	OnRawFrame(img image.Image)
}

// Encoder compresses raw frames and publishes them to a buffer. Encoding
// runs on its own goroutine so a slow encode never holds up the caller.
// There is only ever one encode in flight; a raw frame that arrives while
// the encoder is busy waits in a single slot and is replaced by any newer
// frame.
type Encoder struct {
	enc    codec.Encoder
	buf    *framebuffer.Buffer
	logger *loglimiter.LogLimiter

	mu      sync.Mutex
	pending image.Image
	skipped uint64
	wake    chan struct{}

	t tomb.Tomb
}

// NewEncoder starts an encoder publishing into buf.
func NewEncoder(enc codec.Encoder, buf *framebuffer.Buffer) *Encoder {
	e := &Encoder{
		enc:    enc,
		buf:    buf,
		logger: loglimiter.New(logRepeatInterval),
		wake:   make(chan struct{}, 1),
	}
	e.t.Go(e.run)
	return e
}

// OnRawFrame implements Handler. It never blocks.
func (e *Encoder) OnRawFrame(img image.Image) {
	e.mu.Lock()
	if e.pending != nil {
		e.skipped++
	}
	e.pending = img
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Skipped returns how many raw frames were replaced before being encoded.
func (e *Encoder) Skipped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipped
}

// Stop ends the encoder goroutine. A frame being encoded is still
// published; a pending one is discarded.
func (e *Encoder) Stop() {
	e.t.Kill(nil)
	e.t.Wait()
}

func (e *Encoder) run() error {
	for {
		select {
		case <-e.t.Dying():
			return nil
		case <-e.wake:
		}

		e.mu.Lock()
		img := e.pending
		e.pending = nil
		e.mu.Unlock()
		if img == nil {
			continue
		}

		data, err := e.enc.Encode(img)
		if err != nil {
			e.logger.Printf("skipping frame: %v", err)
			continue
		}
		e.buf.Publish(data)
	}
}
