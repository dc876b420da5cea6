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
	"fmt"
	"net"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/avast/retry-go/v4"
	"github.com/wissance/stringFormatter"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Arjan-Janssen/memdb/internal/gid"
	"github.com/Arjan-Janssen/memdb/internal/wire"
)

// Tracer owns the observer connection, the accumulation buffer, marker
// bookkeeping, and the run loop that drains the event channel, batches
// events, and flushes frames. Every field below spec §3's TracerState is
// touched only by the tracer goroutine once Start has returned; the
// exceptions are the channel, which owns its own producer-side
// synchronization, and the reentrancy guard and settings, which the hook
// reads from application goroutines.
type Tracer struct {
	settings Settings

	channel *eventChannel
	guard   *reentrancyGuard
	lock    *processLock

	listener net.Listener
	conn     net.Conn

	gid       uint64
	startTime time.Time

	accum          *skipmap.Uint64Map[HeapEvent]
	pendingMarkers []Marker
	markerNextIdx  *haxmap.Map[string, int64]

	eventsSentTotal int64
	bytesSentTotal  int64
	terminate       bool

	logger *zap.SugaredLogger
	doneCh chan struct{}
}

// Start spawns the tracer goroutine, which opens the listener, accepts
// exactly one connection, publishes the server handle, and only then
// lets this call return. Application code that begins allocating after
// Start returns successfully is guaranteed to see either a fully-live
// tracer or no tracer at all (spec §4.5).
func Start(settings Settings) (*Tracer, error) {
	if err := settings.validate(); err != nil {
		return nil, &StartupError{Err: err}
	}

	logger, err := newLogger()
	if err != nil {
		return nil, &StartupError{Err: err}
	}

	t := &Tracer{
		settings:      settings,
		channel:       newEventChannel(settings.ChannelCapacity),
		guard:         newReentrancyGuard(settings.ReentrancyLimit),
		accum:         skipmap.NewUint64[HeapEvent](),
		markerNextIdx: haxmap.New[string, int64](),
		logger:        logger,
		doneCh:        make(chan struct{}),
	}

	ready := make(chan error, 1)
	go t.runStartup(ready)

	if err := <-ready; err != nil {
		return nil, err
	}
	return t, nil
}

// StartDefault starts a tracer with NewSettings()'s defaults.
func StartDefault() (*Tracer, error) {
	return Start(NewSettings())
}

func (t *Tracer) runStartup(ready chan<- error) {
	t.gid = gid.Current()
	t.channel.bindTracerGoroutine(t.gid)

	lock, err := acquireProcessLock(t.settings)
	if err != nil {
		ready <- &StartupError{Err: err}
		return
	}
	t.lock = lock

	listener, err := listenWithRetry(t.settings.ListenAddress)
	if err != nil {
		_ = t.lock.release()
		ready <- &StartupError{Err: err}
		return
	}
	t.listener = listener

	conn, err := listener.Accept()
	// Exactly one connection is ever accepted; close the listener
	// immediately so later connection attempts are refused outright.
	_ = listener.Close()
	if err != nil {
		_ = t.lock.release()
		ready <- &StartupError{Err: err}
		return
	}
	t.conn = conn
	t.startTime = time.Now()

	publish(t)
	ready <- nil

	if t.settings.MarkerWatchDir != "" {
		go t.runMarkerWatch()
	}

	t.runLoop()
}

func listenWithRetry(addr string) (net.Listener, error) {
	var listener net.Listener
	err := retry.Do(
		func() error {
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			listener = l
			return nil
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
	)
	return listener, err
}

// submit routes a HeapEvent through the channel, honoring the self-
// submission filter: the tracer goroutine never submits to its own
// channel (spec §3 invariant, §4.4).
func (t *Tracer) submit(e HeapEvent) bool {
	return t.channel.send(channelMessage{kind: msgEvent, event: e})
}

func (t *Tracer) submitMarker(name string) bool {
	return t.channel.send(channelMessage{kind: msgMarker, markerName: name})
}

func (t *Tracer) submitTerminate() bool {
	return t.channel.send(channelMessage{kind: msgTerminate})
}

// runLoop repeatedly receives a ChannelMessage and dispatches it, until
// a Terminate message is observed.
func (t *Tracer) runLoop() {
	defer close(t.doneCh)

	for {
		msg, ok := t.channel.recv()
		if !ok {
			break
		}

		switch msg.kind {
		case msgEvent:
			t.handleEvent(msg.event)
		case msgMarker:
			t.handleMarker(msg.markerName)
		case msgTerminate:
			t.terminate = true
			// appendEvent, not handleEvent: terminate must produce
			// exactly one further frame (spec boundary rule), and
			// shutdown's flush below is that frame. Triggering an
			// early threshold flush here would emit a second,
			// empty one right after it.
			t.appendEvent(sentinelEvent())
		}

		if t.terminate {
			break
		}
	}

	t.shutdown()
}

func (t *Tracer) currentOrdinal() int64 {
	return t.eventsSentTotal + int64(t.accum.Len())
}

func (t *Tracer) handleEvent(e HeapEvent) {
	t.appendEvent(e)
	if int64(t.accum.Len()) >= int64(t.settings.EventsPerBatch) {
		t.flush()
	}
}

func (t *Tracer) appendEvent(e HeapEvent) {
	e.MonotonicOffset = t.monotonicOffset()
	ordinal := t.currentOrdinal()
	t.accum.Store(uint64(ordinal), e)
}

// monotonicOffset computes the duration since tracer start. time.Since
// cannot itself fail on any platform this core targets, but the branch
// models spec §7's ClockError entry: a negative reading (which would
// only happen if the system clock were corrupted) is logged and
// substituted with zero rather than propagated.
func (t *Tracer) monotonicOffset() time.Duration {
	d := time.Since(t.startTime)
	if d < 0 {
		t.logger.Warnw("clock error computing monotonic offset, using 0", "raw", d)
		return 0
	}
	return d
}

func (t *Tracer) handleMarker(name string) {
	nextIdx, _ := t.markerNextIdx.GetOrCompute(name, func() int64 { return 0 })
	t.markerNextIdx.Set(name, nextIdx+1)

	t.pendingMarkers = append(t.pendingMarkers, Marker{
		Name:            name,
		Index:           nextIdx,
		FirstEventSeqNo: t.currentOrdinal(),
	})
}

// flush writes the accumulation buffer and pending markers as one frame.
// A partial or failed write is logged and the buffer is cleared anyway:
// application goroutines are being backpressured by the channel, so
// retrying a stuck write would only make that worse (spec §4.6).
func (t *Tracer) flush() {
	events := make([]HeapEvent, 0, t.accum.Len())
	t.accum.Range(func(_ uint64, e HeapEvent) bool {
		events = append(events, e)
		return true
	})

	frame := toWireFrame(events, t.pendingMarkers)
	n, err := wire.Encode(t.conn, frame)
	if err != nil {
		t.logger.Errorw("flush failed", "error", &TransportError{Err: err})
	}

	t.eventsSentTotal += int64(len(events))
	t.bytesSentTotal += int64(n)
	t.accum = skipmap.NewUint64[HeapEvent]()
	t.pendingMarkers = nil
}

// shutdown flushes the final frame, closes the connection, retracts the
// server handle, and logs the operational summary. Retraction happens
// before this Tracer value would otherwise be considered dead, so new
// hook calls observe null before anything else about this tracer stops
// being valid (spec §4.5).
func (t *Tracer) shutdown() {
	t.flush()

	var shutdownErr error
	if err := t.conn.Close(); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("close connection: %w", err))
	}

	retract()

	if err := t.lock.release(); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("release process lock: %w", err))
	}

	if shutdownErr != nil {
		t.logger.Errorw("errors during shutdown", "error", shutdownErr)
	}

	t.logger.Infow(stringFormatter.Format(
		"tracer summary: {0} heap operations sent, {1} bytes sent",
		t.eventsSentTotal, t.bytesSentTotal))

	_ = t.logger.Sync()
}

// Join blocks until the tracer goroutine's run loop and shutdown
// sequence have completed. The caller must have already sent Terminate;
// Join never sends it implicitly.
func (t *Tracer) Join() {
	<-t.doneCh
}
