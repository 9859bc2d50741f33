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

// Package server sends the latest encoded frame to every connected viewer
// at a fixed cadence.
package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/ratelimit"
	"gopkg.in/tomb.v2"

	"github.com/TheCacophonyProject/thermal-streamer/framebuffer"
	"github.com/TheCacophonyProject/thermal-streamer/loglimiter"
	"github.com/TheCacophonyProject/thermal-streamer/protocol"
)

const (
	DefaultPort         = 8080
	DefaultInterval     = 60 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second

	acceptRetryDelay = 100 * time.Millisecond
)

// Config controls how frames are sent.
type Config struct {
	// Interval is the minimum time between two frames on one connection.
	Interval time.Duration
	// WriteTimeout bounds how long one frame may take to write before the
	// viewer is dropped.
	WriteTimeout time.Duration
	Framing      protocol.Framing
}

func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		WriteTimeout: DefaultWriteTimeout,
		Framing:      protocol.LengthPrefixed,
	}
}

// BindError is returned when the listening socket can't be opened.
type BindError struct {
	Addr  string
	Cause error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Cause)
}

func (e *BindError) Unwrap() error { return e.Cause }

// WriteError ends a single viewer connection.
type WriteError struct {
	Remote string
	Cause  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s failed: %v", e.Remote, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// Server accepts viewer connections and runs one send loop for each. The
// send loops only ever read the frame buffer, so a slow viewer can't hold
// up frame production or other viewers.
type Server struct {
	conf   Config
	buf    *framebuffer.Buffer
	logger *loglimiter.LogLimiter

	mu       sync.Mutex
	listener net.Listener
	t        *tomb.Tomb

	conns int32
}

// New returns a server for buf. Zero config fields take their defaults.
func New(buf *framebuffer.Buffer, conf Config) *Server {
	if conf.Interval <= 0 {
		conf.Interval = DefaultInterval
	}
	if conf.WriteTimeout <= 0 {
		conf.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{
		conf:   conf,
		buf:    buf,
		logger: loglimiter.New(time.Minute),
	}
}

// Listen binds all interfaces on port and starts accepting viewers.
func (s *Server) Listen(port uint16) error {
	return s.ListenAddr(fmt.Sprintf(":%d", port))
}

// ListenAddr binds addr (host:port) and starts accepting viewers.
func (s *Server) ListenAddr(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return &BindError{Addr: addr, Cause: errors.New("server already listening")}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return &BindError{Addr: addr, Cause: err}
	}
	log.Printf("listening for viewers on %s (%s, one frame per %v)",
		listener.Addr(), s.conf.Framing, s.conf.Interval)

	t := new(tomb.Tomb)
	s.listener = listener
	s.t = t
	t.Go(func() error {
		t.Go(func() error {
			<-t.Dying()
			listener.Close()
			return nil
		})
		return s.acceptLoop(t, listener)
	})
	return nil
}

// Addr returns the bound address, or nil if the server isn't listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of viewers currently connected.
func (s *Server) Connections() int {
	return int(atomic.LoadInt32(&s.conns))
}

// Stop closes the listening socket and every viewer connection, and waits
// for all send loops to finish. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	t := s.t
	s.t = nil
	s.listener = nil
	s.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Kill(nil)
	return t.Wait()
}

func (s *Server) acceptLoop(t *tomb.Tomb, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !t.Alive() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Printf("accept failed: %v", err)
			select {
			case <-t.Dying():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		id := uuid.New().String()
		t.Go(func() error {
			s.serve(t, conn, id)
			return nil
		})
	}
}

func (s *Server) serve(t *tomb.Tomb, conn net.Conn, id string) {
	atomic.AddInt32(&s.conns, 1)
	defer atomic.AddInt32(&s.conns, -1)

	log.Printf("viewer %s connected from %s", id, conn.RemoteAddr())

	// Closing the connection is what interrupts a blocked write.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.Dying():
			conn.Close()
		case <-done:
		}
	}()

	sent, err := s.sendLoop(t, conn)
	conn.Close()
	if err != nil {
		log.Printf("viewer %s dropped after %d frames: %v", id, sent, err)
		return
	}
	log.Printf("viewer %s closed after %d frames", id, sent)
}

// sendLoop writes the latest frame at most once per interval until the
// connection fails or the server stops. Nothing is written while the
// buffer is empty.
func (s *Server) sendLoop(t *tomb.Tomb, conn net.Conn) (int, error) {
	w := protocol.NewFrameWriter(conn, s.conf.Framing)
	bucket := ratelimit.NewBucket(s.conf.Interval, 1)

	sent := 0
	for {
		if wait := bucket.Take(1); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-t.Dying():
				timer.Stop()
				return sent, nil
			case <-timer.C:
			}
		} else if !t.Alive() {
			return sent, nil
		}

		frame, ok := s.buf.Peek()
		if !ok {
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(s.conf.WriteTimeout))
		if err := w.WriteFrame(frame.Data); err != nil {
			if !t.Alive() {
				return sent, nil
			}
			return sent, &WriteError{Remote: conn.RemoteAddr().String(), Cause: err}
		}
		sent++
	}
}
