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

package heaptrace

import (
	"testing"
	"time"

	"github.com/Arjan-Janssen/memdb/internal/gid"
)

func TestEventChannelDeliversInSendOrderPerProducer(t *testing.T) {
	c := newEventChannel(8)
	c.bindTracerGoroutine(0) // no real tracer goroutine in this test

	for i := 0; i < 5; i++ {
		if ok := c.send(channelMessage{kind: msgMarker, markerName: string(rune('a' + i))}); !ok {
			t.Fatalf("send %d: expected success", i)
		}
	}

	for i := 0; i < 5; i++ {
		msg, ok := c.recv()
		if !ok {
			t.Fatalf("recv %d: channel closed unexpectedly", i)
		}
		want := string(rune('a' + i))
		if msg.markerName != want {
			t.Fatalf("recv %d: got marker %q, want %q", i, msg.markerName, want)
		}
	}
}

func TestEventChannelSelfSubmissionIsElided(t *testing.T) {
	c := newEventChannel(1)
	c.bindTracerGoroutine(gid.Current())

	if ok := c.send(channelMessage{kind: msgMarker, markerName: "self"}); ok {
		t.Fatalf("send from the bound tracer goroutine must be elided, not delivered")
	}

	select {
	case <-c.ch:
		t.Fatalf("elided self-submission must never reach the channel buffer")
	default:
	}
}

// TestEventChannelBlocksProducerWhenFull is the backpressure boundary
// behavior from spec.md §8 ("channel full: send_* blocks") at the channel
// layer, where it can be checked deterministically; driving the same
// behavior through a live Tracer and a real TCP connection would make the
// blocking window depend on OS socket buffer sizes instead.
func TestEventChannelBlocksProducerWhenFull(t *testing.T) {
	c := newEventChannel(1)
	c.bindTracerGoroutine(0)

	if ok := c.send(channelMessage{kind: msgMarker, markerName: "first"}); !ok {
		t.Fatalf("first send into an empty capacity-1 channel must succeed immediately")
	}

	done := make(chan struct{})
	go func() {
		c.send(channelMessage{kind: msgMarker, markerName: "second"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second send on a full channel must block until drained")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := c.recv(); !ok {
		t.Fatalf("recv: channel closed unexpectedly")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("second send never unblocked after the channel was drained")
	}
}

func TestEventChannelClampsNonPositiveCapacity(t *testing.T) {
	c := newEventChannel(0)
	if cap(c.ch) != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d", cap(c.ch))
	}
}
