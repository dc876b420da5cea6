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
	"sync/atomic"

	"github.com/Arjan-Janssen/memdb/internal/gid"
)

// eventChannel is the bounded multi-producer/single-consumer queue
// carrying ChannelMessages from application goroutines to the tracer
// goroutine. A buffered Go channel already is a bounded MPSC queue with
// per-sender FIFO ordering into the receiver, which is exactly the
// contract spec §4.4 asks for; the only behavior layered on top here is
// the self-submission filter.
type eventChannel struct {
	ch        chan channelMessage
	tracerGID atomic.Uint64
}

func newEventChannel(capacity int) *eventChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &eventChannel{ch: make(chan channelMessage, capacity)}
}

// bindTracerGoroutine records the id of the goroutine that will drain
// this channel, so sends made from that same goroutine can be elided
// rather than deadlocking the tracer against its own buffer growth.
func (c *eventChannel) bindTracerGoroutine(id uint64) {
	c.tracerGID.Store(id)
}

// send enqueues msg, blocking the caller when the channel is full
// (backpressure). It reports false without blocking when the calling
// goroutine is the tracer goroutine itself.
func (c *eventChannel) send(msg channelMessage) bool {
	if gid.Current() == c.tracerGID.Load() {
		return false
	}
	c.ch <- msg
	return true
}

// recv blocks until a message is available.
func (c *eventChannel) recv() (channelMessage, bool) {
	msg, ok := <-c.ch
	return msg, ok
}
