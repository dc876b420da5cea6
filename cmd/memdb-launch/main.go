// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// memdb-launch starts a tracer and drives a small instrumented workload
// against it, bracketed by "before"/"after" markers, the same shape as the
// original tool's own demo program. It exists to exercise the Control API
// end to end against a real observer connection rather than as a
// deliverable on its own.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/Arjan-Janssen/memdb/internal/wire"
	"github.com/Arjan-Janssen/memdb/pkg/heaptrace"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:8989", "address the tracer listens on for its observer connection")
	batch := flag.Int("batch", 64, "events per flushed frame")
	backtrace := flag.Bool("backtrace", true, "capture a backtrace on every traced allocation")
	count := flag.Int("count", 10000, "demo loop bound: count-1 elements are pushed onto a growing slice that starts with 3")
	flag.Parse()

	fmt.Println("memdb heap tracer launcher")

	// Start blocks until it has accepted the one observer connection it
	// will ever take, so the demo observer has to be dialing concurrently
	// rather than being spawned after Start returns.
	go runDemoObserver(*addr)

	tracer, err := heaptrace.Start(heaptrace.NewSettings(
		heaptrace.WithListenAddress(*addr),
		heaptrace.WithEventsPerBatch(*batch),
		heaptrace.WithBacktraceCapture(*backtrace),
	))
	if err != nil {
		log.Fatalf("starting tracer: %v", err)
	}

	heaptrace.SendMarker("before")

	growDemoSlice(*count)

	heaptrace.SendMarker("after")

	fmt.Println("sending terminate signal to the tracer")
	heaptrace.SendTerminate()
	tracer.Join()

	fmt.Println("closing")
}

// growDemoSlice is instrumented by hand the way an application without
// compiler or linker support for intercepting make() would be: every
// growth step that needs new backing storage goes through Alloc
// explicitly instead of append's ordinary (untraced) growth.
func growDemoSlice(count int) {
	const elemSize = 8 // int on a 64-bit target
	capacity := 4
	ptr := heaptrace.Alloc(uint64(capacity*elemSize), elemSize)
	length := 3 // vec![1, 2, 3]

	for i := 1; i < count; i++ {
		if length == capacity {
			oldPtr := ptr
			oldCapacity := capacity
			capacity *= 2
			ptr = heaptrace.Alloc(uint64(capacity*elemSize), elemSize)
			heaptrace.Free(oldPtr, uint64(oldCapacity*elemSize), elemSize)
		}
		length++
	}
}

// runDemoObserver is the launcher's own, minimal stand-in for an external
// trace-collection process: it connects once, decodes every frame until
// the tracer closes the connection, and logs a one-line summary per frame
// so running this binary directly shows the trace flowing end to end.
func runDemoObserver(addr string) {
	var conn net.Conn
	var err error
	for i := 0; i < 200; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo observer: dial failed: %v\n", err)
		return
	}
	defer conn.Close()

	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			return
		}
		fmt.Printf("frame: %d events, %d markers\n", len(frame.Events), len(frame.Markers))
	}
}
