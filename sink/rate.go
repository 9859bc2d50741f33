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

package sink

import (
	"image"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/thermal-streamer/client"
)

// RateLogger logs the frame rate every Every frames.
type RateLogger struct {
	Every int

	mu      sync.Mutex
	count   int
	start   time.Time
	nowFunc func() time.Time
	output  func(format string, v ...interface{})
}

func NewRateLogger(every int) *RateLogger {
	if every < 1 {
		every = 1
	}
	return &RateLogger{
		Every:   every,
		nowFunc: time.Now,
		output:  log.Printf,
	}
}

func (r *RateLogger) Show(image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if r.start.IsZero() {
		r.start = now
	}
	r.count++
	if r.count < r.Every {
		return
	}
	if elapsed := now.Sub(r.start); elapsed > 0 {
		r.output("%.1f fps", float64(r.count)/elapsed.Seconds())
	}
	r.count = 0
	r.start = now
}

// Multi shows each image on every sink in turn.
type Multi []client.DisplaySink

func (m Multi) Show(img image.Image) {
	for _, s := range m {
		s.Show(img)
	}
}
