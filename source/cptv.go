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
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	cptv "github.com/TheCacophonyProject/go-cptv"
	"github.com/TheCacophonyProject/go-cptv/cptvframe"
	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/headers"
)

// CPTVSource plays back a CPTV recording at the frame rate it was recorded
// at, standing in for a live camera.
type CPTVSource struct {
	Filename string
	Scale    int
	Loop     bool

	// Heartbeat, if set, is called every few seconds of playback.
	Heartbeat func()

	t *tomb.Tomb
}

// NewCPTVSource plays filename in a loop.
func NewCPTVSource(filename string, scale int) *CPTVSource {
	return &CPTVSource{
		Filename: filename,
		Scale:    scale,
		Loop:     true,
	}
}

// Start checks the recording can be opened and begins playback.
func (s *CPTVSource) Start(h Handler) error {
	rec, err := openCPTV(s.Filename)
	if err != nil {
		return err
	}
	log.Printf("playing %s (%dx%d at %d fps)", s.Filename, rec.camera.ResX(), rec.camera.ResY(), rec.camera.FPS())

	s.t = new(tomb.Tomb)
	s.t.Go(func() error {
		return s.run(h, rec)
	})
	return nil
}

// Stop ends playback.
func (s *CPTVSource) Stop() {
	if s.t == nil {
		return
	}
	s.t.Kill(nil)
	if err := s.t.Wait(); err != nil {
		log.Printf("cptv playback stopped with: %v", err)
	}
}

func (s *CPTVSource) run(h Handler, rec *recording) error {
	defer func() { rec.file.Close() }()

	ticker := time.NewTicker(rec.interval())
	defer ticker.Stop()

	frame := cptvframe.NewFrame(rec.camera)
	played := 0
	total := 0
	for {
		err := rec.reader.ReadFrame(frame)
		if err == io.EOF {
			if !s.Loop {
				return nil
			}
			if played == 0 {
				return errors.New("recording has no frames")
			}
			next, err := openCPTV(s.Filename)
			if err != nil {
				return err
			}
			rec.file.Close()
			rec = next
			// The file may have been replaced with a different recording.
			frame = cptvframe.NewFrame(rec.camera)
			ticker.Reset(rec.interval())
			played = 0
			continue
		}
		if err != nil {
			return err
		}

		played++
		total++
		if s.Heartbeat != nil && total%(heartbeatSecs*rec.camera.FPS()) == 0 {
			s.Heartbeat()
		}
		h.OnRawFrame(codec.Scale(codec.NormaliseThermal(frame.Pix), s.Scale))

		select {
		case <-s.t.Dying():
			return nil
		case <-ticker.C:
		}
	}
}

type recording struct {
	file   *os.File
	reader *cptv.Reader
	camera *headers.HeaderInfo
}

func (r *recording) interval() time.Duration {
	return time.Second / time.Duration(r.camera.FPS())
}

func openCPTV(filename string) (*recording, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	reader, err := cptv.NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	camera, err := headers.New(reader.ResX(), reader.ResY(), reader.FPS(), reader.BrandName(), reader.ModelName())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("bad recording %s: %v", filename, err)
	}
	return &recording{file: file, reader: reader, camera: camera}, nil
}
