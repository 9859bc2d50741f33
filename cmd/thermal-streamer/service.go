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

package main

import (
	"errors"
	"log"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/thermal-streamer/controller"
)

const (
	dbusName = "org.cacophony.thermalstreamer"
	dbusPath = "/org/cacophony/thermalstreamer"
)

// streamer is the part of controller.Streamer the service drives.
type streamer interface {
	Start() error
	Stop()
	Status() controller.Status
	Snapshot(dir string) (string, error)
}

// cameraControl is the part of camera.Control the service drives.
type cameraControl interface {
	RunFFC() error
	SetAutoFFC(automatic bool) error
}

// service lets other device services, such as the management interface
// when its live view is opened or closed, turn streaming on and off.
type service struct {
	streamer    streamer
	camera      cameraControl
	snapshotDir string
	ffcOnStart  bool
	autoFFC     *bool
}

func startService(s streamer, cam cameraControl, conf *Config) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	svc := &service{
		streamer:    s,
		camera:      cam,
		snapshotDir: conf.SnapshotDir,
		ffcOnStart:  conf.FFCOnStart,
		autoFFC:     conf.AutoFFC,
	}
	conn.Export(svc, dbusPath, dbusName)
	conn.Export(genIntrospectable(svc), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// StartStream starts streaming. It does nothing if already streaming.
func (s *service) StartStream() *dbus.Error {
	if err := s.streamer.Start(); err != nil {
		return makeDbusError("StartStream", err)
	}
	if s.autoFFC != nil {
		if err := s.camera.SetAutoFFC(*s.autoFFC); err != nil {
			log.Printf("failed to set automatic flat field correction: %v", err)
		}
	}
	if s.ffcOnStart {
		if err := s.camera.RunFFC(); err != nil {
			log.Printf("flat field correction failed: %v", err)
		}
	}
	return nil
}

// SetAutoFFC turns the camera's periodic flat field correction on or off.
func (s *service) SetAutoFFC(automatic bool) *dbus.Error {
	if err := s.camera.SetAutoFFC(automatic); err != nil {
		return makeDbusError("SetAutoFFC", err)
	}
	return nil
}

// RunFFC asks the camera service for a flat field correction.
func (s *service) RunFFC() *dbus.Error {
	if err := s.camera.RunFFC(); err != nil {
		return makeDbusError("RunFFC", err)
	}
	return nil
}

// StopStream stops streaming and drops every viewer.
func (s *service) StopStream() *dbus.Error {
	s.streamer.Stop()
	return nil
}

// TakeSnapshot saves the latest frame and returns the file it was saved to.
func (s *service) TakeSnapshot() (string, *dbus.Error) {
	name, err := s.streamer.Snapshot(s.snapshotDir)
	if err != nil {
		return "", makeDbusError("TakeSnapshot", err)
	}
	return name, nil
}

// Status returns whether streaming is on, the listen address, the number
// of viewers, and the number of frames encoded since streaming started.
func (s *service) Status() (bool, string, int32, uint64, *dbus.Error) {
	st := s.streamer.Status()
	return st.Running, st.Addr, int32(st.Connections), st.Published, nil
}

// Uptime returns how long streaming has been on, in seconds.
func (s *service) Uptime() (int64, *dbus.Error) {
	st := s.streamer.Status()
	if !st.Running {
		return 0, nil
	}
	return int64(time.Since(st.Since) / time.Second), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
