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

// Package camera asks the camera service to adjust the camera while it is
// streaming.
package camera

import "github.com/godbus/dbus"

const (
	dbusPath   = "/org/cacophony/leptond"
	dbusDest   = "org.cacophony.leptond"
	methodBase = "org.cacophony.leptond"
)

// Caller makes a D-Bus method call on the camera service.
type Caller func(method string, args ...interface{}) error

// Control sends commands to the camera service.
type Control struct {
	call Caller
}

// New returns a Control talking to the camera service on the system bus.
func New() *Control {
	return NewWithCaller(systemBusCall)
}

func NewWithCaller(call Caller) *Control {
	return &Control{call: call}
}

// RunFFC runs a flat field correction, which evens out the image after the
// camera has warmed up or drifted.
func (c *Control) RunFFC() error {
	return c.call(methodBase + ".RunFFC")
}

// SetAutoFFC turns the camera's own periodic flat field correction on or
// off.
func (c *Control) SetAutoFFC(automatic bool) error {
	return c.call(methodBase+".SetAutoFFC", automatic)
}

func systemBusCall(method string, args ...interface{}) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	obj := conn.Object(dbusDest, dbusPath)
	return obj.Call(method, 0, args...).Store()
}
