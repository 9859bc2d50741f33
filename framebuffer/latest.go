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

package framebuffer

import (
	"sync"
	"time"
)

// Frame is one encoded image held by a Buffer. Seq and Time are local
// bookkeeping only.
type Frame struct {
	Seq  uint64
	Data []byte
	Time time.Time
}

// Stats describes what has happened to a Buffer so far.
type Stats struct {
	Published uint64
	Dropped   uint64 // overwritten before anyone peeked at them
	Peeks     uint64
}

// Buffer holds the most recently published frame. Publishing replaces
// whatever was there, it never queues. Any number of readers may Peek at
// the same frame concurrently.
type Buffer struct {
	mu     sync.Mutex
	frame  *Frame
	seen   bool
	nowFn  func() time.Time
	stats  Stats
	nextID uint64
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{nowFn: time.Now}
}

// Publish makes data the latest frame. The caller must not modify data
// afterwards; readers share the slice.
func (b *Buffer) Publish(data []byte) {
	now := b.nowFn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame != nil && !b.seen {
		b.stats.Dropped++
	}
	b.nextID++
	b.frame = &Frame{
		Seq:  b.nextID,
		Data: data,
		Time: now,
	}
	b.seen = false
	b.stats.Published++
}

// Peek returns the latest frame without consuming it. The second return
// value is false if nothing has been published since the buffer was
// created or cleared.
func (b *Buffer) Peek() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Peeks++
	if b.frame == nil {
		return Frame{}, false
	}
	b.seen = true
	return *b.frame, true
}

// Clear drops the held frame.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = nil
	b.seen = false
}

// Stats returns a copy of the buffer's counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
