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
	"io/ioutil"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/protocol"
	"github.com/TheCacophonyProject/thermal-streamer/server"
)

type Config struct {
	DeviceName   string        `yaml:"-"`
	Port         uint16        `yaml:"port"`
	SendInterval time.Duration `yaml:"send-interval"`
	WriteTimeout time.Duration `yaml:"write-timeout"`
	Framing      string        `yaml:"framing"`
	JPEGQuality  int           `yaml:"jpeg-quality"`
	Scale        int           `yaml:"scale"`
	FrameInput   string        `yaml:"frame-input"`
	CPTVFile     string        `yaml:"cptv-file"`
	SnapshotDir  string        `yaml:"snapshot-dir"`
	AutoStart    bool          `yaml:"auto-start"`
	FFCOnStart   bool          `yaml:"ffc-on-start"`

	// AutoFFC, if set, turns the camera's own periodic flat field
	// correction on or off whenever streaming starts.
	AutoFFC *bool `yaml:"auto-ffc"`
}

var defaultConfig = Config{
	Port:         server.DefaultPort,
	SendInterval: server.DefaultInterval,
	WriteTimeout: server.DefaultWriteTimeout,
	Framing:      protocol.LengthPrefixed.String(),
	JPEGQuality:  codec.DefaultQuality,
	Scale:        1,
	FrameInput:   "/var/run/lepton-frames",
	SnapshotDir:  "/var/spool/cptv",
	AutoStart:    false,
	FFCOnStart:   true,
}

func (conf *Config) Validate() error {
	if conf.Port == 0 {
		return errors.New("port must be set")
	}
	if conf.SendInterval <= 0 {
		return fmt.Errorf("send-interval must be positive, got %v", conf.SendInterval)
	}
	if conf.WriteTimeout <= 0 {
		return fmt.Errorf("write-timeout must be positive, got %v", conf.WriteTimeout)
	}
	if _, err := protocol.ParseFraming(conf.Framing); err != nil {
		return err
	}
	if conf.JPEGQuality < 1 || conf.JPEGQuality > 100 {
		return fmt.Errorf("jpeg-quality must be between 1 and 100, got %d", conf.JPEGQuality)
	}
	if conf.Scale < 1 || conf.Scale > 10 {
		return fmt.Errorf("scale must be between 1 and 10, got %d", conf.Scale)
	}
	if conf.FrameInput == "" && conf.CPTVFile == "" {
		return errors.New("one of frame-input or cptv-file must be set")
	}
	return nil
}

// ServerConfig returns the send loop settings.
func (conf *Config) ServerConfig() server.Config {
	framing, _ := protocol.ParseFraming(conf.Framing)
	return server.Config{
		Interval:     conf.SendInterval,
		WriteTimeout: conf.WriteTimeout,
		Framing:      framing,
	}
}

// ParseConfigFiles reads the streamer's YAML file along with the device
// name and the camera's frame socket from the Cacophony config directory.
// A missing streamer file leaves every setting at its default.
func ParseConfigFiles(filename, configDir string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	deviceName, frameOutput, err := readCacophonyConfig(configDir)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf, deviceName, frameOutput)
}

func readCacophonyConfig(configDir string) (string, string, error) {
	configRW, err := goconfig.New(configDir)
	if err != nil {
		return "", "", err
	}

	leptonConfig := goconfig.DefaultLepton()
	if err := configRW.Unmarshal(goconfig.LeptonKey, &leptonConfig); err != nil {
		return "", "", err
	}

	var deviceConfig goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &deviceConfig); err != nil {
		return "", "", err
	}
	return deviceConfig.Name, leptonConfig.FrameOutput, nil
}

// ParseConfig decodes buf over the defaults. frameOutput, if set, is where
// the camera service writes frames and replaces the default frame input.
func ParseConfig(buf []byte, deviceName, frameOutput string) (*Config, error) {
	conf := defaultConfig
	if frameOutput != "" {
		conf.FrameInput = frameOutput
	}
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	conf.DeviceName = deviceName

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
