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

package controller

import (
	"context"
	"log"

	"github.com/TheCacophonyProject/thermal-streamer/client"
)

// Viewer drives the viewing role. Watching a new stream always tears down
// the previous one first.
type Viewer struct {
	client *client.Client
}

func NewViewer(c *client.Client) *Viewer {
	return &Viewer{client: c}
}

// Watch connects to a streamer. A connection failure is returned and has
// already been reported to the client's notifier.
func (v *Viewer) Watch(ctx context.Context, host string, port uint16) error {
	log.Printf("watching %s:%d", host, port)
	return v.client.Start(ctx, host, port)
}

// StopWatching closes the current stream, if any.
func (v *Viewer) StopWatching() {
	v.client.Stop()
}

// Done is closed when the current stream ends.
func (v *Viewer) Done() <-chan struct{} {
	return v.client.Done()
}

// Wait blocks until the current stream ends and returns why it ended.
func (v *Viewer) Wait() error {
	s := v.client.Session()
	if s == nil {
		return nil
	}
	return s.Wait()
}
