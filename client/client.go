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

// Package client connects to a stream server, reads encoded frames off the
// connection and hands each decoded image to a display sink.
package client

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/loglimiter"
	"github.com/TheCacophonyProject/thermal-streamer/protocol"
)

const (
	DefaultDialTimeout = 5 * time.Second

	logRepeatInterval = 10 * time.Second
)

// DisplaySink shows decoded images. Show is called from the receive loop,
// in stream order, once per frame.
type DisplaySink interface {
	Show(img image.Image)
}

// Notifier is told when a stream can't be started or ends without being
// stopped. Each failure is reported exactly once.
type Notifier interface {
	ConnectFailed(err error)
	StreamLost(err error)
}

// Config controls how the client connects and reads.
type Config struct {
	Framing      protocol.Framing
	DialTimeout  time.Duration
	MaxFrameSize uint32 // 0 for no limit
}

func DefaultConfig() Config {
	return Config{
		Framing:     protocol.LengthPrefixed,
		DialTimeout: DefaultDialTimeout,
	}
}

// ConnectError is returned when the server can't be reached.
type ConnectError struct {
	Addr  string
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// ReadError ends a stream when the connection fails for any reason other
// than the peer closing it or a frame being cut short.
type ReadError struct {
	Cause error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("stream read failed: %v", e.Cause)
}

func (e *ReadError) Unwrap() error { return e.Cause }

// Dial opens a TCP connection to host:port.
func Dial(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Cause: err}
	}
	return conn, nil
}

// Session is one connection to a server and the loop reading from it.
type Session struct {
	Addr string

	conn   net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	frames uint64
}

// Wait blocks until the receive loop has exited and the connection is
// closed. It returns nil when the stream was stopped or the server closed
// it cleanly.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Done is closed once the receive loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Frames returns how many frames have been shown.
func (s *Session) Frames() uint64 {
	return atomic.LoadUint64(&s.frames)
}

// ErrSuperseded is returned by Start when Stop or another Start was called
// while it was still connecting.
var ErrSuperseded = errors.New("start superseded before connecting")

// Client runs at most one session at a time.
type Client struct {
	conf     Config
	decoder  codec.Decoder
	sink     DisplaySink
	notifier Notifier
	logger   *loglimiter.LogLimiter
	dial     func(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error)

	mu      sync.Mutex
	session *Session
	// gen changes on every Start and Stop so a slow dial can tell it has
	// been overtaken.
	gen uint64
}

// New returns a client. A zero DialTimeout uses DefaultDialTimeout and a nil
// notifier only logs.
func New(conf Config, decoder codec.Decoder, sink DisplaySink, notifier Notifier) *Client {
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = DefaultDialTimeout
	}
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Client{
		conf:     conf,
		decoder:  decoder,
		sink:     sink,
		notifier: notifier,
		logger:   loglimiter.New(logRepeatInterval),
		dial:     Dial,
	}
}

// Start connects to host:port and starts a receive loop. Any session
// already running is stopped first and its connection closed before the
// new one is dialled. The client isn't locked while dialling so Stop and
// Session return straight away.
func (c *Client) Start(ctx context.Context, host string, port uint16) error {
	c.mu.Lock()
	c.stopLocked()
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(ctx, host, port, c.conf.DialTimeout)
	if err != nil {
		c.notifier.ConnectFailed(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		conn.Close()
		return ErrSuperseded
	}
	log.Printf("connected to %s", conn.RemoteAddr())

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		Addr:   conn.RemoteAddr().String(),
		conn:   conn,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.session = s
	go c.receive(s)
	return nil
}

// Stop ends the current session, if any, and waits for its receive loop to
// exit. A read blocked on the connection returns straight away. A Start
// still connecting gives up.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Client) stopLocked() {
	c.gen++
	if c.session == nil {
		return
	}
	c.session.cancel()
	<-c.session.done
	c.session = nil
}

// Session returns the current session, or nil if there isn't one.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Done is closed when the current session ends. With no session the
// returned channel is already closed.
func (c *Client) Done() <-chan struct{} {
	if s := c.Session(); s != nil {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

func (c *Client) receive(s *Session) {
	defer close(s.done)

	// Closing the connection is what interrupts a blocked read.
	stopClose := context.AfterFunc(s.ctx, func() { s.conn.Close() })
	err := c.receiveLoop(s)
	stopClose()
	s.conn.Close()

	if s.ctx.Err() != nil {
		log.Printf("stream from %s stopped after %d frames", s.Addr, s.Frames())
		return
	}
	s.err = err
	if err == nil {
		log.Printf("stream from %s closed by server after %d frames", s.Addr, s.Frames())
		c.notifier.StreamLost(io.EOF)
		return
	}
	log.Printf("stream from %s lost after %d frames: %v", s.Addr, s.Frames(), err)
	c.notifier.StreamLost(err)
}

// receiveLoop returns nil when the server closes the stream between frames.
func (c *Client) receiveLoop(s *Session) error {
	r := protocol.NewFrameReader(s.conn, c.conf.Framing, c.conf.MaxFrameSize)
	for {
		data, err := r.ReadFrame()
		if err != nil {
			return classify(err)
		}
		img, err := c.decoder.Decode(data)
		if err != nil {
			// The cause alone, so repeats of different sizes are suppressed.
			var decErr *codec.DecodeError
			if errors.As(err, &decErr) {
				err = decErr.Cause
			}
			c.logger.Printf("skipping frame that failed to decode: %v", err)
			continue
		}
		c.sink.Show(img)
		atomic.AddUint64(&s.frames, 1)
	}
}

func classify(err error) error {
	if err == io.EOF {
		return nil
	}
	var truncErr *protocol.TruncatedFrameError
	var sizeErr *protocol.FrameTooLargeError
	if errors.As(err, &truncErr) || errors.As(err, &sizeErr) {
		return err
	}
	return &ReadError{Cause: err}
}

type logNotifier struct{}

func (logNotifier) ConnectFailed(err error) {
	log.Printf("connect failed: %v", err)
}

func (logNotifier) StreamLost(err error) {
	log.Printf("stream lost: %v", err)
}
