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

package client

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/protocol"
)

// widthDecoder turns a payload into an image as wide as the payload, and
// fails on anything starting with "bad".
type widthDecoder struct{}

func (widthDecoder) Decode(data []byte) (image.Image, error) {
	if strings.HasPrefix(string(data), "bad") {
		return nil, &codec.DecodeError{Size: len(data), Cause: errors.New("bad frame")}
	}
	return image.NewGray(image.Rect(0, 0, len(data), 1)), nil
}

type recordingSink struct {
	shown chan image.Image
}

func newRecordingSink() *recordingSink {
	return &recordingSink{shown: make(chan image.Image, 100)}
}

func (s *recordingSink) Show(img image.Image) {
	s.shown <- img
}

func (s *recordingSink) widths() []int {
	var w []int
	for {
		select {
		case img := <-s.shown:
			w = append(w, img.Bounds().Dx())
		default:
			return w
		}
	}
}

type recordingNotifier struct {
	mu            sync.Mutex
	connectFailed []error
	lost          []error
}

func (n *recordingNotifier) ConnectFailed(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectFailed = append(n.connectFailed, err)
}

func (n *recordingNotifier) StreamLost(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lost = append(n.lost, err)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.connectFailed), len(n.lost)
}

// fakeServer accepts connections and hands each to handle.
type fakeServer struct {
	listener net.Listener
	conns    chan net.Conn
}

func newFakeServer(t *testing.T, handle func(net.Conn)) *fakeServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{listener: listener, conns: make(chan net.Conn, 10)}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.conns <- conn
			if handle != nil {
				go handle(conn)
			}
		}
	}()
	return s
}

func (s *fakeServer) hostPort(t *testing.T) (string, uint16) {
	host, port, err := net.SplitHostPort(s.listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, uint16(p)
}

func sendFrames(frames ...string) func(net.Conn) {
	return func(conn net.Conn) {
		w := protocol.NewWriter(conn)
		for _, f := range frames {
			w.WriteFrame([]byte(f))
		}
		conn.Close()
	}
}

func waitSession(t *testing.T, s *Session) error {
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
	}
	return s.Wait()
}

func TestFramesShownInOrder(t *testing.T) {
	srv := newFakeServer(t, sendFrames("a", "bb", "ccc"))
	sink := newRecordingSink()
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, sink, notifier)

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	s := c.Session()
	assert.NoError(t, waitSession(t, s))

	assert.Equal(t, []int{1, 2, 3}, sink.widths())
	assert.Equal(t, uint64(3), s.Frames())

	_, lost := notifier.counts()
	require.Equal(t, 1, lost)
	assert.Equal(t, io.EOF, notifier.lost[0])
}

func TestDecodeErrorsSkipped(t *testing.T) {
	srv := newFakeServer(t, sendFrames("a", "bad", "ccc"))
	sink := newRecordingSink()
	c := New(DefaultConfig(), widthDecoder{}, sink, &recordingNotifier{})

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	assert.NoError(t, waitSession(t, c.Session()))
	assert.Equal(t, []int{1, 3}, sink.widths())
}

func TestDecodeErrorsLoggedOnce(t *testing.T) {
	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	srv := newFakeServer(t, sendFrames("bad", "bad!", "bad!!", "bad!!!", "ok"))
	sink := newRecordingSink()
	c := New(DefaultConfig(), widthDecoder{}, sink, &recordingNotifier{})

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	assert.NoError(t, waitSession(t, c.Session()))
	assert.Equal(t, []int{2}, sink.widths())

	// Bad frames of different sizes are still the same problem.
	assert.Equal(t, 1, strings.Count(logged.String(), "skipping frame that failed to decode: bad frame"))
	assert.NotContains(t, logged.String(), "byte frame")
}

func TestTruncatedFrame(t *testing.T) {
	srv := newFakeServer(t, func(conn net.Conn) {
		conn.Write([]byte{0, 0, 0, 10, 1, 2, 3})
		conn.Close()
	})
	sink := newRecordingSink()
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, sink, notifier)

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	err := waitSession(t, c.Session())

	var truncErr *protocol.TruncatedFrameError
	require.True(t, errors.As(err, &truncErr))
	assert.Equal(t, uint32(10), truncErr.Want)
	assert.Equal(t, 3, truncErr.Got)
	assert.Empty(t, sink.widths())

	_, lost := notifier.counts()
	assert.Equal(t, 1, lost)
}

func TestFrameTooLarge(t *testing.T) {
	srv := newFakeServer(t, sendFrames("this frame is too big"))
	conf := DefaultConfig()
	conf.MaxFrameSize = 4
	c := New(conf, widthDecoder{}, newRecordingSink(), &recordingNotifier{})

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	var sizeErr *protocol.FrameTooLargeError
	assert.True(t, errors.As(waitSession(t, c.Session()), &sizeErr))
}

func TestStopWhileBlockedOnRead(t *testing.T) {
	// The server never sends anything.
	srv := newFakeServer(t, nil)
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, newRecordingSink(), notifier)

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	s := c.Session()

	var serverConn net.Conn
	select {
	case serverConn = <-srv.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("no connection")
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	c.Stop()
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
	assert.NoError(t, s.Wait())
	assert.Nil(t, c.Session())

	// The server sees the socket close.
	serverConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := serverConn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)

	failed, lost := notifier.counts()
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, lost)

	// Stopping again is a no-op.
	c.Stop()
}

func TestCancelledContextStops(t *testing.T) {
	srv := newFakeServer(t, nil)
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, newRecordingSink(), notifier)

	ctx, cancel := context.WithCancel(context.Background())
	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(ctx, host, port))
	cancel()

	assert.NoError(t, waitSession(t, c.Session()))
	_, lost := notifier.counts()
	assert.Equal(t, 0, lost)
}

func TestStartReplacesSession(t *testing.T) {
	first := newFakeServer(t, nil)
	second := newFakeServer(t, sendFrames("abcd"))
	sink := newRecordingSink()
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, sink, notifier)
	defer c.Stop()

	host, port := first.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	old := c.Session()
	var firstConn net.Conn
	select {
	case firstConn = <-first.conns:
	case <-time.After(5 * time.Second):
		t.Fatal("no connection")
	}

	host, port = second.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))

	// The old session has fully ended.
	select {
	case <-old.Done():
	default:
		t.Fatal("previous session still running")
	}
	firstConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := firstConn.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)

	assert.NoError(t, waitSession(t, c.Session()))
	assert.Equal(t, []int{4}, sink.widths())

	// Only the second stream ending is reported.
	_, lost := notifier.counts()
	assert.Equal(t, 1, lost)
}

func TestConnectFailed(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	listener.Close()
	port, _ := strconv.Atoi(portStr)

	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, newRecordingSink(), notifier)
	err = c.Start(context.Background(), "127.0.0.1", uint16(port))

	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "127.0.0.1:"+portStr, connErr.Addr)
	assert.Nil(t, c.Session())

	failed, lost := notifier.counts()
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, lost)

	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed without a session")
	}
}

func TestRawFraming(t *testing.T) {
	var img bytes.Buffer
	require.NoError(t, jpeg.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 4)), nil))

	srv := newFakeServer(t, func(conn net.Conn) {
		conn.Write([]byte("junk"))
		for i := 0; i < 3; i++ {
			conn.Write(img.Bytes())
		}
		conn.Close()
	})
	sink := newRecordingSink()
	conf := DefaultConfig()
	conf.Framing = protocol.Raw
	c := New(conf, codec.JPEG{}, sink, &recordingNotifier{})

	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	assert.NoError(t, waitSession(t, c.Session()))
	assert.Equal(t, []int{8, 8, 8}, sink.widths())
}

func TestReadErrorWraps(t *testing.T) {
	err := classify(protocol.ErrBadJPEG)
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.True(t, errors.Is(err, protocol.ErrBadJPEG))
	assert.Nil(t, classify(io.EOF))
}

// slowDial blocks until release is closed and then connects to one end of
// a pipe.
func slowDial(t *testing.T, dialing chan<- struct{}, release <-chan struct{}) func(context.Context, string, uint16, time.Duration) (net.Conn, error) {
	return func(ctx context.Context, host string, port uint16, timeout time.Duration) (net.Conn, error) {
		dialing <- struct{}{}
		<-release
		local, remote := net.Pipe()
		t.Cleanup(func() { remote.Close() })
		return local, nil
	}
}

func TestStopDuringSlowDial(t *testing.T) {
	notifier := &recordingNotifier{}
	c := New(DefaultConfig(), widthDecoder{}, newRecordingSink(), notifier)
	dialing := make(chan struct{}, 1)
	release := make(chan struct{})
	c.dial = slowDial(t, dialing, release)

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), "streamer", 8080) }()
	select {
	case <-dialing:
	case <-time.After(5 * time.Second):
		t.Fatal("dial not started")
	}

	// Neither call waits for the dial to finish.
	stopped := make(chan struct{})
	go func() {
		assert.Nil(t, c.Session())
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("blocked behind dial")
	}

	close(release)
	assert.Equal(t, ErrSuperseded, <-started)
	assert.Nil(t, c.Session())

	failed, lost := notifier.counts()
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, lost)
}

func TestLaterStartWins(t *testing.T) {
	srv := newFakeServer(t, sendFrames("abc"))
	sink := newRecordingSink()
	c := New(DefaultConfig(), widthDecoder{}, sink, &recordingNotifier{})
	defer c.Stop()
	dialing := make(chan struct{}, 1)
	release := make(chan struct{})
	c.dial = slowDial(t, dialing, release)

	started := make(chan error, 1)
	go func() { started <- c.Start(context.Background(), "streamer", 8080) }()
	select {
	case <-dialing:
	case <-time.After(5 * time.Second):
		t.Fatal("dial not started")
	}

	c.dial = Dial
	host, port := srv.hostPort(t)
	require.NoError(t, c.Start(context.Background(), host, port))
	s := c.Session()

	close(release)
	assert.Equal(t, ErrSuperseded, <-started)
	assert.Same(t, s, c.Session())
	assert.NoError(t, waitSession(t, s))
	assert.Equal(t, []int{3}, sink.widths())
}
