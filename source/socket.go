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
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/headers"
)

const (
	frameLogIntervalFirstMin = 15
	frameLogInterval         = 60 * 5
	heartbeatSecs            = 5
)

// SocketSource accepts frames from the camera service over a unix socket.
// The service sends a YAML header describing the camera followed by
// fixed-size raw frames. Only one camera connection is handled at a time.
type SocketSource struct {
	Path  string
	Scale int

	// Heartbeat, if set, is called every few seconds while frames arrive.
	Heartbeat func()

	t        *tomb.Tomb
	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
}

func NewSocketSource(path string, scale int) *SocketSource {
	return &SocketSource{
		Path:  path,
		Scale: scale,
	}
}

// Start begins listening for the camera service. Failing to create the
// socket is reported straight away.
func (s *SocketSource) Start(h Handler) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	s.t = new(tomb.Tomb)
	s.listener = listener
	s.conn = nil
	s.t.Go(func() error {
		s.t.Go(func() error {
			<-s.t.Dying()
			s.closeAll()
			return nil
		})
		return s.run(h, listener)
	})
	return nil
}

// Stop closes the socket and any camera connection.
func (s *SocketSource) Stop() {
	if s.t == nil {
		return
	}
	s.t.Kill(nil)
	if err := s.t.Wait(); err != nil {
		log.Printf("frame socket stopped with: %v", err)
	}
	os.Remove(s.Path)
}

func (s *SocketSource) listen() (net.Listener, error) {
	// Set up listener for frames sent by the camera service.
	os.Remove(s.Path)
	return net.Listen("unix", s.Path)
}

func (s *SocketSource) run(h Handler, listener net.Listener) error {
	for {
		if listener == nil {
			var err error
			if listener, err = s.listen(); err != nil {
				return err
			}
			if !s.setListener(listener) {
				listener.Close()
				return nil
			}
		}
		log.Print("waiting for camera connection")

		conn, err := listener.Accept()
		// Prevent concurrent connections.
		listener.Close()
		listener = nil
		if err != nil {
			if !s.t.Alive() {
				return nil
			}
			log.Printf("socket accept failed: %v", err)
			continue
		}
		if !s.setConn(conn) {
			conn.Close()
			return nil
		}

		err = s.handleConn(conn, h)
		conn.Close()
		if !s.t.Alive() {
			return nil
		}
		log.Printf("camera connection ended with: %v", err)
	}
}

func (s *SocketSource) handleConn(conn net.Conn, h Handler) error {
	reader := bufio.NewReader(conn)
	header, err := headers.ReadHeaderInfo(reader)
	if err != nil {
		return err
	}
	log.Printf("connection from %s %s (%dx%d@%dfps)",
		header.Brand(), header.Model(), header.ResX(), header.ResY(), header.FPS())

	raw := make([]byte, header.FrameSize())
	pix := newPix(header.ResX(), header.ResY())
	fps := header.FPS()

	totalFrames := 0
	for {
		if _, err := io.ReadFull(reader, raw); err != nil {
			return err
		}
		totalFrames++

		if totalFrames%(frameLogIntervalFirstMin*fps) == 0 &&
			totalFrames <= 60*fps || totalFrames%(frameLogInterval*fps) == 0 {
			log.Printf("%d frames for this connection", totalFrames)
		}
		if s.Heartbeat != nil && totalFrames%(heartbeatSecs*fps) == 0 {
			s.Heartbeat()
		}

		if err := readPixels(raw[header.PixelOffset():], pix); err != nil {
			return err
		}
		h.OnRawFrame(codec.Scale(codec.NormaliseThermal(pix), s.Scale))
	}
}

func (s *SocketSource) setListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.t.Alive() {
		return false
	}
	s.listener = l
	return true
}

func (s *SocketSource) setConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.t.Alive() {
		return false
	}
	s.conn = c
	return true
}

func (s *SocketSource) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		s.listener.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

func newPix(width, height int) [][]uint16 {
	pix := make([][]uint16, height)
	for y := range pix {
		pix[y] = make([]uint16, width)
	}
	return pix
}

// readPixels decodes big-endian 16 bit pixels into pix.
func readPixels(data []byte, pix [][]uint16) error {
	i := 0
	for _, row := range pix {
		for x := range row {
			if i+1 >= len(data) {
				return errors.New("raw frame shorter than its resolution")
			}
			row[x] = binary.BigEndian.Uint16(data[i:])
			i += 2
		}
	}
	return nil
}
