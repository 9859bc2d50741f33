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

// Package controller starts and stops the streaming and viewing roles as
// whole units.
package controller

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/framebuffer"
	"github.com/TheCacophonyProject/thermal-streamer/server"
	"github.com/TheCacophonyProject/thermal-streamer/sink"
	"github.com/TheCacophonyProject/thermal-streamer/source"
)

// ErrNoFrames is returned by Snapshot before the first frame is encoded.
var ErrNoFrames = errors.New("no frames yet")

// Source produces raw frames for a stream.
type Source interface {
	Start(h source.Handler) error
	Stop()
}

// StreamerConfig configures one streaming session.
type StreamerConfig struct {
	// Addr is the host:port to listen on.
	Addr        string
	Server      server.Config
	JPEGQuality int
}

func DefaultStreamerConfig() StreamerConfig {
	return StreamerConfig{
		Addr:        fmt.Sprintf(":%d", server.DefaultPort),
		Server:      server.DefaultConfig(),
		JPEGQuality: codec.DefaultQuality,
	}
}

// Status describes the streamer.
type Status struct {
	Running     bool
	Addr        string
	Since       time.Time
	Connections int
	Published   uint64
	Dropped     uint64
	Skipped     uint64
}

// Streamer owns the pipeline of a streaming session: the source, the
// encoder, the frame buffer and the server. Every Start builds a new
// pipeline, so nothing from a previous session reaches a new viewer.
type Streamer struct {
	conf StreamerConfig
	src  Source

	mu      sync.Mutex
	buf     *framebuffer.Buffer
	enc     *source.Encoder
	srv     *server.Server
	started time.Time
}

func NewStreamer(conf StreamerConfig, src Source) *Streamer {
	return &Streamer{
		conf: conf,
		src:  src,
	}
}

// Start binds the server and starts the source. Calling Start while running
// does nothing.
func (s *Streamer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	buf := framebuffer.New()
	srv := server.New(buf, s.conf.Server)
	if err := srv.ListenAddr(s.conf.Addr); err != nil {
		return err
	}
	enc := source.NewEncoder(codec.JPEG{Quality: s.conf.JPEGQuality}, buf)
	if err := s.src.Start(enc); err != nil {
		enc.Stop()
		srv.Stop()
		return fmt.Errorf("failed to start frame source: %v", err)
	}

	s.buf = buf
	s.enc = enc
	s.srv = srv
	s.started = time.Now()
	log.Print("streaming started")
	return nil
}

// Stop tears down the current session. It is safe to call when stopped.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return
	}

	s.src.Stop()
	s.enc.Stop()
	if err := s.srv.Stop(); err != nil {
		log.Printf("server stopped with: %v", err)
	}
	stats := s.buf.Stats()
	s.buf.Clear()
	log.Printf("streaming stopped after %s: %d frames encoded, %d skipped before encoding, %d never sent",
		time.Since(s.started).Round(time.Second), stats.Published, s.enc.Skipped(), stats.Dropped)

	s.buf = nil
	s.enc = nil
	s.srv = nil
}

func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr returns the address the server is bound to, or nil when stopped.
func (s *Streamer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Addr()
}

func (s *Streamer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return Status{}
	}
	stats := s.buf.Stats()
	st := Status{
		Running:     true,
		Since:       s.started,
		Connections: s.srv.Connections(),
		Published:   stats.Published,
		Dropped:     stats.Dropped,
		Skipped:     s.enc.Skipped(),
	}
	if addr := s.srv.Addr(); addr != nil {
		st.Addr = addr.String()
	}
	return st
}

// Snapshot writes the latest encoded frame to dir and returns its path.
func (s *Streamer) Snapshot(dir string) (string, error) {
	s.mu.Lock()
	buf := s.buf
	s.mu.Unlock()
	if buf == nil {
		return "", errors.New("not streaming")
	}
	frame, ok := buf.Peek()
	if !ok {
		return "", ErrNoFrames
	}
	return sink.WriteStill(dir, frame.Data)
}
