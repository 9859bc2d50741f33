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

package loglimiter

import (
	"bytes"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	logs, reset := captureLogs()
	defer reset()

	limiter := New(time.Minute)
	limiter.Print("hello")
	limiter.Print("world")

	assert.Equal(t, "hello\nworld\n", logs.String())
}

func TestPrintf(t *testing.T) {
	logs, reset := captureLogs()
	defer reset()

	limiter := New(time.Minute)
	limiter.Printf("frame %d: %v", 42, "bad marker")

	assert.Equal(t, "frame 42: bad marker\n", logs.String())
}

func TestLimitPrint(t *testing.T) {
	logs, reset := captureLogs()
	defer reset()

	now := time.Now()

	limiter := New(2 * time.Second)
	limiter.nowFunc = func() time.Time { return now }

	limiter.Print("decode failed")
	assert.Equal(t, "decode failed\n", logs.String())

	// Within the window: suppressed.
	now = now.Add(time.Second)
	limiter.Print("decode failed")
	limiter.Print("decode failed")
	assert.Equal(t, "decode failed\n", logs.String())

	// Past the window the line comes through with a repeat count.
	now = now.Add(time.Second)
	limiter.Print("decode failed")
	assert.Equal(t, "decode failed\ndecode failed (2 repeats suppressed)\n", logs.String())

	// Something else is let through straight away.
	limiter.Print("stream ended")
	assert.Equal(t, "decode failed\ndecode failed (2 repeats suppressed)\nstream ended\n", logs.String())
}

func TestConcurrentUse(t *testing.T) {
	var mu sync.Mutex
	count := 0

	limiter := New(time.Hour)
	limiter.output = func(v ...interface{}) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				limiter.Print("same")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, count)
}

func captureLogs() (*bytes.Buffer, func()) {
	flags := log.Flags()
	log.SetFlags(0)

	logs := new(bytes.Buffer)
	log.SetOutput(logs)

	return logs, func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}
}
