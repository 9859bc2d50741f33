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
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"

	"github.com/TheCacophonyProject/thermal-streamer/client"
	"github.com/TheCacophonyProject/thermal-streamer/codec"
	"github.com/TheCacophonyProject/thermal-streamer/controller"
	"github.com/TheCacophonyProject/thermal-streamer/server"
	"github.com/TheCacophonyProject/thermal-streamer/sink"
)

var version = "<not set>"

type Args struct {
	Host         string        `arg:"positional,required" help:"address of the streaming device"`
	Port         uint16        `arg:"-p,--port" help:"port the device streams on"`
	Framing      string        `arg:"--framing" help:"wire format: length-prefixed or raw"`
	OutputDir    string        `arg:"-o,--output" help:"directory to keep the latest frame in as still.jpg"`
	StillPeriod  time.Duration `arg:"--still-period" help:"minimum time between still updates"`
	MaxFrameSize uint32        `arg:"--max-frame-size" help:"largest frame accepted in bytes, 0 for no limit"`
	DialTimeout  time.Duration `arg:"--dial-timeout" help:"how long to wait for the device to accept the connection"`
	Overlay      bool          `arg:"--overlay" help:"stamp the time and frame rate on each frame"`
	RateEvery    int           `arg:"--rate-every" help:"log the frame rate every this many frames"`
	Events       bool          `arg:"--events" help:"report failed and lost streams to the event service"`
	Timestamps   bool          `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		Port:         server.DefaultPort,
		Framing:      "length-prefixed",
		StillPeriod:  sink.DefaultStillPeriod,
		MaxFrameSize: defaultMaxFrameSize,
		DialTimeout:  client.DefaultDialTimeout,
		RateEvery:    100,
	}
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseArgs(args)
	if err != nil {
		return err
	}
	logConfig(conf)

	var notifier client.Notifier
	if conf.ReportEvents {
		notifier = controller.NewEventNotifier()
	}
	viewer := controller.NewViewer(client.New(conf.Client, codec.JPEG{}, newSink(conf), notifier))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := viewer.Watch(ctx, conf.Host, conf.Port); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Print("stopping")
		viewer.StopWatching()
		return nil
	case <-viewer.Done():
	}
	return viewer.Wait()
}

func newSink(conf *Config) client.DisplaySink {
	sinks := sink.Multi{sink.NewRateLogger(conf.RateEvery)}
	if conf.OutputDir != "" {
		var still client.DisplaySink = sink.NewStill(conf.OutputDir, conf.StillPeriod, codec.JPEG{})
		if conf.Overlay {
			still = sink.NewOverlay(still)
		}
		sinks = append(sinks, still)
	}
	return sinks
}

func logConfig(conf *Config) {
	log.Printf("streamer: %s:%d", conf.Host, conf.Port)
	log.Printf("framing: %s", conf.Client.Framing)
	log.Printf("dial timeout: %v", conf.Client.DialTimeout)
	log.Printf("max frame size: %d", conf.Client.MaxFrameSize)
	if conf.OutputDir != "" {
		log.Printf("output dir: %s (every %v)", conf.OutputDir, conf.StillPeriod)
		log.Printf("overlay: %v", conf.Overlay)
	}
}
