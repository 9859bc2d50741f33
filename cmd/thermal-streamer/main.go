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
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"golang.org/x/sync/errgroup"

	"github.com/TheCacophonyProject/thermal-streamer/camera"
	"github.com/TheCacophonyProject/thermal-streamer/controller"
	"github.com/TheCacophonyProject/thermal-streamer/sink"
	"github.com/TheCacophonyProject/thermal-streamer/source"
)

// Idle streamers still need to tell systemd they're alive.
const idleWatchdogInterval = 5 * time.Second

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir  string `arg:"--config-dir" help:"path to Cacophony configuration directory"`
	CPTVFile   string `arg:"-f,--cptv" help:"stream a CPTV recording instead of the camera"`
	Start      bool   `arg:"-s,--start" help:"start streaming without waiting for a d-bus request"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/thermal-streamer.yaml"
	args.ConfigDir = goconfig.DefaultConfigDir
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
	conf, err := ParseConfigFiles(args.ConfigFile, args.ConfigDir)
	if err != nil {
		return err
	}
	if args.CPTVFile != "" {
		conf.CPTVFile = args.CPTVFile
	}
	if args.Start {
		conf.AutoStart = true
	}
	logConfig(conf)

	streamer := controller.NewStreamer(controller.StreamerConfig{
		Addr:        fmt.Sprintf(":%d", conf.Port),
		Server:      conf.ServerConfig(),
		JPEGQuality: conf.JPEGQuality,
	}, newSource(conf))

	log.Println("starting d-bus service")
	if err := startService(streamer, camera.New(), conf); err != nil {
		return err
	}

	if conf.AutoStart {
		if err := streamer.Start(); err != nil {
			return err
		}
	}
	daemon.SdNotify(false, "READY=1")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idleWatchdog(ctx, streamer)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Print("shutting down")
		streamer.Stop()
		sink.DeleteStill(conf.SnapshotDir)
		return nil
	})
	return g.Wait()
}

// newSource picks the camera socket, or a recording if one is configured.
// While streaming, systemd is notified as frames arrive, the same as the
// camera service does.
func newSource(conf *Config) controller.Source {
	heartbeat := func() { daemon.SdNotify(false, "WATCHDOG=1") }
	if conf.CPTVFile != "" {
		src := source.NewCPTVSource(conf.CPTVFile, conf.Scale)
		src.Heartbeat = heartbeat
		return src
	}
	src := source.NewSocketSource(conf.FrameInput, conf.Scale)
	src.Heartbeat = heartbeat
	return src
}

func idleWatchdog(ctx context.Context, streamer *controller.Streamer) {
	ticker := time.NewTicker(idleWatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !streamer.Running() {
			daemon.SdNotify(false, "WATCHDOG=1")
		}
	}
}

func logConfig(conf *Config) {
	log.Printf("device name: %s", conf.DeviceName)
	log.Printf("port: %d", conf.Port)
	log.Printf("send interval: %v", conf.SendInterval)
	log.Printf("write timeout: %v", conf.WriteTimeout)
	log.Printf("framing: %s", conf.Framing)
	log.Printf("jpeg quality: %d", conf.JPEGQuality)
	log.Printf("scale: %d", conf.Scale)
	if conf.CPTVFile != "" {
		log.Printf("cptv file: %s", conf.CPTVFile)
	} else {
		log.Printf("frame input: %s", conf.FrameInput)
	}
	log.Printf("snapshot dir: %s", conf.SnapshotDir)
	log.Printf("auto start: %v", conf.AutoStart)
	log.Printf("ffc on start: %v", conf.FFCOnStart)
	if conf.AutoFFC != nil {
		log.Printf("auto ffc: %v", *conf.AutoFFC)
	}
}
