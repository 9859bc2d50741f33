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
	"errors"
	"io"
	"log"
	"time"

	"github.com/TheCacophonyProject/event-reporter/eventclient"

	"github.com/TheCacophonyProject/thermal-streamer/client"
)

const (
	connectFailedEvent = "streamConnectFailed"
	streamLostEvent    = "streamLost"
)

// EventNotifier reports failed and lost streams to the event service so
// they show up with the device's other events.
type EventNotifier struct {
	addEvent func(eventclient.Event) error
	nowFunc  func() time.Time
}

var _ client.Notifier = (*EventNotifier)(nil)

func NewEventNotifier() *EventNotifier {
	return &EventNotifier{
		addEvent: eventclient.AddEvent,
		nowFunc:  time.Now,
	}
}

func (n *EventNotifier) ConnectFailed(err error) {
	log.Printf("could not connect to stream: %v", err)
	details := map[string]interface{}{"error": err.Error()}
	var connErr *client.ConnectError
	if errors.As(err, &connErr) {
		details["address"] = connErr.Addr
	}
	n.send(connectFailedEvent, details)
}

func (n *EventNotifier) StreamLost(err error) {
	if err == io.EOF {
		log.Print("stream closed by server")
	} else {
		log.Printf("stream lost: %v", err)
	}
	n.send(streamLostEvent, map[string]interface{}{"error": err.Error()})
}

func (n *EventNotifier) send(eventType string, details map[string]interface{}) {
	event := eventclient.Event{
		Timestamp: n.nowFunc(),
		Type:      eventType,
		Details:   details,
	}
	if err := n.addEvent(event); err != nil {
		log.Printf("failed to queue %s event: %v", eventType, err)
	}
}
