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

package std

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is anything that can render itself as a CSV header and a single
// data row. link.Snapshot implements it; std stays dependency-free of the
// link package so cmd/server and cmd/client wire the two together.
type Snapshot interface {
	Header() []string
	Row() []string
}

// StatsLogger periodically appends a CSV row produced by snapshot to path,
// exactly as the source tool's SnmpLogger did for KCP's SNMP counters: a
// time-formatted filename, a header written once per (possibly rotating)
// file, one row per period. Here it snapshots this protocol's own Stats
// instead of kcp.DefaultSnmp, since KCP is not part of this protocol (see
// SPEC_FULL.md §5).
func StatsLogger(path string, interval int, snapshot func() Snapshot) {
	if path == "" || interval == 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Println(err)
			return
		}

		w := csv.NewWriter(f)
		s := snapshot()
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write(append([]string{"Unix"}, s.Header()...)); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, s.Row()...)); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
