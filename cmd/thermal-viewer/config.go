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
	"fmt"
	"os"
	"time"

	"github.com/TheCacophonyProject/thermal-streamer/client"
	"github.com/TheCacophonyProject/thermal-streamer/protocol"
)

const defaultMaxFrameSize = 32 << 20

type Config struct {
	Host         string
	Port         uint16
	Client       client.Config
	OutputDir    string
	StillPeriod  time.Duration
	Overlay      bool
	RateEvery    int
	ReportEvents bool
}

func (conf *Config) Validate() error {
	if conf.Host == "" {
		return errors.New("host must be set")
	}
	if conf.Port == 0 {
		return errors.New("port must be set")
	}
	if conf.StillPeriod < 0 {
		return fmt.Errorf("still period can't be negative, got %v", conf.StillPeriod)
	}
	if conf.OutputDir != "" {
		info, err := os.Stat(conf.OutputDir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", conf.OutputDir)
		}
	}
	return nil
}

// ParseArgs turns the command line into a validated Config.
func ParseArgs(args Args) (*Config, error) {
	framing, err := protocol.ParseFraming(args.Framing)
	if err != nil {
		return nil, err
	}
	conf := &Config{
		Host: args.Host,
		Port: args.Port,
		Client: client.Config{
			Framing:      framing,
			DialTimeout:  args.DialTimeout,
			MaxFrameSize: args.MaxFrameSize,
		},
		OutputDir:    args.OutputDir,
		StillPeriod:  args.StillPeriod,
		Overlay:      args.Overlay,
		RateEvery:    args.RateEvery,
		ReportEvents: args.Events,
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
