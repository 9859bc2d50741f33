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

package source

import (
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	cptv "github.com/TheCacophonyProject/go-cptv"
	"github.com/TheCacophonyProject/go-cptv/cptvframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/thermal-streamer/headers"
)

const testFPS = 30

// writeRecording writes a recording of n frames, each a left to right
// gradient, and returns its path.
func writeRecording(t *testing.T, camera cptvframe.CameraSpec, n int) string {
	path := filepath.Join(t.TempDir(), "test.cptv")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := cptv.NewWriter(f, camera)
	require.NoError(t, w.WriteHeader(cptv.Header{FPS: camera.FPS()}))
	frame := cptvframe.NewFrame(camera)
	for i := 0; i < n; i++ {
		for y := range frame.Pix {
			for x := range frame.Pix[y] {
				frame.Pix[y][x] = uint16(1000 + x + i)
			}
		}
		require.NoError(t, w.WriteFrame(frame))
	}
	require.NoError(t, w.Close())
	return path
}

// frameCounter keeps the last image shown and how many there were.
type frameCounter struct {
	mu    sync.Mutex
	count int
	last  image.Image
}

func (c *frameCounter) OnRawFrame(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.last = img
}

func (c *frameCounter) get() (int, image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, c.last
}

func waitDead(t *testing.T, src *CPTVSource) error {
	select {
	case <-src.t.Dead():
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not end")
	}
	return src.t.Err()
}

func TestCPTVSourceRecordingSize(t *testing.T) {
	camera, err := headers.New(640, 480, testFPS, "test", "large")
	require.NoError(t, err)
	path := writeRecording(t, camera, 3)

	src := NewCPTVSource(path, 1)
	src.Loop = false
	frames := &frameCounter{}
	require.NoError(t, src.Start(frames))
	assert.NoError(t, waitDead(t, src))

	count, last := frames.get()
	assert.Equal(t, 3, count)
	require.NotNil(t, last)
	assert.Equal(t, image.Rect(0, 0, 640, 480), last.Bounds())
	g := last.(*image.Gray)
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(639, 479).Y)
}

func TestCPTVSourceScales(t *testing.T) {
	camera, err := headers.New(80, 60, testFPS, "test", "small")
	require.NoError(t, err)
	path := writeRecording(t, camera, 1)

	src := NewCPTVSource(path, 2)
	src.Loop = false
	frames := &frameCounter{}
	require.NoError(t, src.Start(frames))
	assert.NoError(t, waitDead(t, src))

	_, last := frames.get()
	require.NotNil(t, last)
	assert.Equal(t, image.Rect(0, 0, 160, 120), last.Bounds())
}

func TestCPTVSourceLoops(t *testing.T) {
	path := writeRecording(t, headers.Lepton3(), 2)

	src := NewCPTVSource(path, 1)
	frames := &frameCounter{}
	require.NoError(t, src.Start(frames))

	// Playback carries on past the end of the two frame recording.
	require.Eventually(t, func() bool {
		count, _ := frames.get()
		return count >= 6
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-src.t.Dead():
		t.Fatalf("playback ended: %v", src.t.Err())
	default:
	}
	src.Stop()
	assert.NoError(t, src.t.Err())

	_, last := frames.get()
	assert.Equal(t, image.Rect(0, 0, 160, 120), last.Bounds())
}

func TestCPTVSourceEmptyRecording(t *testing.T) {
	path := writeRecording(t, headers.Lepton3(), 0)

	src := NewCPTVSource(path, 1)
	frames := &frameCounter{}
	require.NoError(t, src.Start(frames))
	assert.EqualError(t, waitDead(t, src), "recording has no frames")

	count, _ := frames.get()
	assert.Equal(t, 0, count)
	src.Stop()
}

func TestCPTVSourceNotARecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.cptv")
	require.NoError(t, os.WriteFile(path, []byte("not a recording"), 0644))

	src := NewCPTVSource(path, 1)
	assert.Error(t, src.Start(&frameCounter{}))
}
