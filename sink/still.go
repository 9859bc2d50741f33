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

// Package sink has the display sinks used by the viewer: writing stills to
// disk, stamping an overlay onto frames, logging the frame rate, and fanning
// frames out to several sinks.
package sink

import (
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheCacophonyProject/thermal-streamer/client"
	"github.com/TheCacophonyProject/thermal-streamer/codec"
)

const (
	StillName          = "still.jpg"
	DefaultStillPeriod = 500 * time.Millisecond
	tempExt            = ".temp"
)

// WriteStill replaces dir/still.jpg with data. The file is written under a
// temporary name and renamed so readers never see a partial image.
func WriteStill(dir string, data []byte) (string, error) {
	finalName := filepath.Join(dir, StillName)
	tempName := finalName + tempExt
	if err := os.WriteFile(tempName, data, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tempName, finalName); err != nil {
		os.Remove(tempName)
		return "", err
	}
	return finalName, nil
}

// DeleteStill removes a still written by WriteStill, if there is one.
func DeleteStill(dir string) {
	if err := os.Remove(filepath.Join(dir, StillName)); err != nil && !os.IsNotExist(err) {
		log.Printf("error deleting still image: %v", err)
	}
}

// Still saves the shown frames to a directory, at most once per Period.
type Still struct {
	Dir    string
	Period time.Duration

	enc     codec.Encoder
	mu      sync.Mutex
	last    time.Time
	nowFunc func() time.Time
}

var _ client.DisplaySink = (*Still)(nil)

func NewStill(dir string, period time.Duration, enc codec.Encoder) *Still {
	return &Still{
		Dir:     dir,
		Period:  period,
		enc:     enc,
		nowFunc: time.Now,
	}
}

func (s *Still) Show(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if !s.last.IsZero() && now.Sub(s.last) < s.Period {
		return
	}

	data, err := s.enc.Encode(img)
	if err != nil {
		log.Printf("failed to encode still: %v", err)
		return
	}
	if _, err := WriteStill(s.Dir, data); err != nil {
		log.Printf("failed to write still: %v", err)
		return
	}
	// the time will be changed only if the attempt is successful
	s.last = now
}
