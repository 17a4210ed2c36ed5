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
	"bufio"
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

// drainInterval is how often this CLI pumps deferred events. A GUI host
// would call link.Drain() once per frame; this binary has no frame loop, so
// it ticks instead.
const drainInterval = 20 * time.Millisecond

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "udpconn-client"
	myApp.Usage = "connection-oriented UDP messaging client"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "serveraddr,r",
			Value: "127.0.0.1:29900",
			Usage: `server address, eg: "IP:29900"`,
		},
		cli.StringFlag{
			Name:   "password",
			Value:  "",
			Usage:  "admission password, sent only if the server challenges for one",
			EnvVar: "UDPCONN_PASSWORD",
		},
		cli.Float64Flag{
			Name:  "timeout",
			Value: 10,
			Usage: "seconds of server silence before this client disconnects locally",
		},
		cli.Float64Flag{
			Name:  "updaterate",
			Value: link.DefaultTickRate,
			Usage: "ticks per second driving the local timeout check",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable snappy compression of Data frame payloads",
		},
		cli.BoolFlag{
			Name:  "reconnect",
			Usage: "automatically retry the handshake after a disconnect",
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
			Usage: "to suppress the 'data received' messages",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.ServerAddr = c.String("serveraddr")
		config.Password = c.String("password")
		config.Timeout = c.Float64("timeout")
		config.UpdateRate = c.Float64("updaterate")
		config.NoComp = c.Bool("nocomp")
		config.Reconnect = c.Bool("reconnect")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")
		config.Log = c.String("log")
		config.Quiet = c.Bool("quiet")

		if c.String("c") != "" {
			err := parseJSONConfig(&config, c.String("c"))
			checkError(err)
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)
		log.Println("server address:", config.ServerAddr)
		log.Println("timeout:", config.Timeout)
		log.Println("update rate:", config.UpdateRate)
		log.Println("compression:", !config.NoComp)
		log.Println("reconnect:", config.Reconnect)
		log.Println("statslog:", config.StatsLog)
		log.Println("statsperiod:", config.StatsPeriod)
		log.Println("quiet:", config.Quiet)

		client := link.NewClient()
		ep := client.Endpoint()
		ep.SetTimeout(config.Timeout)
		ep.SetUpdateInterval(config.UpdateRate)
		ep.SetCompression(!config.NoComp)

		if err := client.SetServerHostPort(config.ServerAddr); err != nil {
			log.Fatalf("%+v", err)
		}

		client.OnPasswordRequest(func() {
			if client.WasIncorrectPassword() {
				color.Red("server rejected the password, retrying is unlikely to help without -password")
			}
			client.SetAndSendPassword(config.Password)
		})
		ep.OnConnectionOpen(func() {
			log.Println("connection open, id:", link.FormatClientID(ep.ID()))
		})
		ep.OnConnectionClose(func(reason string) {
			log.Println("connection closed, reason:", reason)
		})
		if !config.Quiet {
			ep.OnDataReceived(func(payload []byte, from uint32) {
				log.Println("data received from", link.FormatClientID(from), ":", string(payload))
			})
		}

		statsSource = ep
		if config.StatsLog != "" {
			go std.StatsLogger(config.StatsLog, config.StatsPeriod, func() std.Snapshot {
				return ep.Stats.Snapshot()
			})
		}

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

		if !client.TryOpenConnection() {
			log.Fatal("failed to send connection request")
		}

		if config.Reconnect {
			ep.OnConnectionClose(func(reason string) {
				if reason == "Client Closing" {
					return
				}
				log.Println("reconnecting after:", reason)
				time.Sleep(time.Second)
				client.SetServerHostPort(config.ServerAddr)
				client.TryOpenConnection()
			})
		}

		// Lines typed on stdin are forwarded to the server as Data frames,
		// giving this CLI something concrete to exercise SendToServer with.
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := scanner.Text()
				if err := client.SendToServer(link.DataFrame{Payload: []byte(line)}); err != nil {
					log.Println("send:", err)
				}
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("shutting down")
		client.CloseConnection("Client Closing")
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
