// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xtaci/udpconn/link"
	"github.com/xtaci/udpconn/std"
)

// drainInterval is how often this CLI pumps deferred events (client
// connected/disconnected, data received, ...). A GUI host would instead call
// link.Drain() once per frame; this binary has no frame loop, so it ticks.
const drainInterval = 20 * time.Millisecond

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		// Enable timestamps + file:line to simplify debugging self-built binaries.
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "udpconn-server"
	myApp.Usage = "connection-oriented UDP messaging server"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "port,p",
			Value: 29900,
			Usage: "UDP port to listen on",
		},
		cli.StringFlag{
			Name:   "password",
			Value:  "",
			Usage:  "pre-shared admission password",
			EnvVar: "UDPCONN_PASSWORD",
		},
		cli.BoolFlag{
			Name:  "passwordrequired",
			Usage: "require a matching password before admitting a new client",
		},
		cli.Float64Flag{
			Name:  "timeout",
			Value: 10,
			Usage: "seconds of silence from a client before it is disconnected",
		},
		cli.Float64Flag{
			Name:  "updaterate",
			Value: link.DefaultTickRate,
			Usage: "ticks per second driving client timeout checks and per-second bookkeeping",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable snappy compression of Data frame payloads",
		},
		cli.BoolFlag{
			Name:  "denyconnections",
			Usage: "start with admission of new clients disabled",
		},
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect stats to file, aware of timeformat in golang, like: ./stats-20060102.log",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collect period, in seconds",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "to suppress the 'client connected/disconnected' messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "", // when set, the JSON file must exist on disk
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.Port = c.Int("port")
		config.Password = c.String("password")
		config.PasswordRequired = c.Bool("passwordrequired")
		config.Timeout = c.Float64("timeout")
		config.UpdateRate = c.Float64("updaterate")
		config.NoComp = c.Bool("nocomp")
		config.AllowConnections = !c.Bool("denyconnections")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")
		config.Log = c.String("log")
		config.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			// Only JSON configuration files are supported at the moment.
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		// Redirect logs when the user supplied a dedicated log file.
		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("port:", config.Port)
		log.Println("password required:", config.PasswordRequired)
		log.Println("timeout:", config.Timeout)
		log.Println("update rate:", config.UpdateRate)
		log.Println("compression:", !config.NoComp)
		log.Println("accepting connections:", config.AllowConnections)
		log.Println("statslog:", config.StatsLog)
		log.Println("statsperiod:", config.StatsPeriod)
		log.Println("quiet:", config.Quiet)

		if config.PasswordRequired && config.Password == "" {
			color.Red("warning: passwordrequired is set but no password was given — only clients sending an empty password will be admitted")
		}
		keepAlive := 1 / config.UpdateRate
		if config.Timeout < 4*keepAlive {
			color.Red("warning: timeout (%.2fs) is less than 4x the keep-alive interval (%.2fs) — clients may be disconnected spuriously", config.Timeout, keepAlive)
		}

		server := link.NewServer()
		ep := server.Endpoint()
		ep.SetPort(uint16(config.Port))
		ep.SetTimeout(config.Timeout)
		ep.SetUpdateInterval(config.UpdateRate)
		ep.SetCompression(!config.NoComp)
		server.AllowClientConnection(config.AllowConnections)
		server.SetPasswordRequired(config.PasswordRequired, config.Password)

		if !config.Quiet {
			server.OnClientConnected(func(id uint32) {
				log.Println("client connected:", link.FormatClientID(id))
			})
			server.OnClientDisconnected(func(id uint32, reason string) {
				log.Println("client disconnected:", link.FormatClientID(id), "reason:", reason)
			})
		}

		statsSource = ep

		if config.StatsLog != "" {
			go std.StatsLogger(config.StatsLog, config.StatsPeriod, func() std.Snapshot {
				return ep.Stats.Snapshot()
			})
		}

		if !server.TryOpenConnection() {
			log.Fatal("failed to bind UDP port", config.Port)
		}
		log.Printf("listening on :%d/udp", ep.Port())

		drainStop := make(chan struct{})
		go func() {
			t := time.NewTicker(drainInterval)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					link.Drain()
				case <-drainStop:
					return
				}
			}
		}()
		defer close(drainStop)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("shutting down")
		server.CloseConnection("Server Closing")
		return nil
	}
	myApp.Run(os.Args)
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
