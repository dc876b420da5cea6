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

import "fmt"

const (
	defaultListenAddress   = "127.0.0.1:8989"
	defaultEventsPerBatch  = 64
	defaultChannelCapacity = 1
	defaultReentrancyLimit = int32(2)
)

// Settings configures a Tracer. Build one with NewSettings and Option
// functions, the way PcapConfig is assembled from chained Add* calls in
// the packet-capture sidecar this core was adapted from.
type Settings struct {
	// ListenAddress is the host:port the tracer listens on for the one
	// observer connection it will ever accept.
	ListenAddress string

	// EventsPerBatch is the accumulation-buffer flush threshold. Larger
	// batches amortize write overhead; a batch of 1 flushes every event
	// immediately, trading throughput for lower hot-path latency.
	EventsPerBatch int

	// CaptureBacktrace enables backtrace capture on each hooked
	// allocation/deallocation. When false, every emitted event carries
	// an empty backtrace.
	CaptureBacktrace bool

	// ChannelCapacity bounds the event channel. A capacity of 1 is
	// acceptable; producers block once it is full.
	ChannelCapacity int

	// ReentrancyLimit is the depth at which the guard stops admitting
	// nested, tracer-induced allocations on the same goroutine.
	ReentrancyLimit int32

	// MarkerWatchDir, when non-empty, starts a companion watcher that
	// turns file-creation events in this directory into markers named
	// after the created file. Empty disables the watcher.
	MarkerWatchDir string

	// ProcessLockPath overrides where the cross-process advisory lock
	// file is created. Empty uses a name derived from ListenAddress
	// under os.TempDir.
	ProcessLockPath string
}

// Option mutates Settings during construction.
type Option func(*Settings)

func WithListenAddress(addr string) Option {
	return func(s *Settings) { s.ListenAddress = addr }
}

func WithEventsPerBatch(n int) Option {
	return func(s *Settings) { s.EventsPerBatch = n }
}

func WithBacktraceCapture(enabled bool) Option {
	return func(s *Settings) { s.CaptureBacktrace = enabled }
}

func WithChannelCapacity(n int) Option {
	return func(s *Settings) { s.ChannelCapacity = n }
}

func WithReentrancyLimit(n int32) Option {
	return func(s *Settings) { s.ReentrancyLimit = n }
}

func WithMarkerWatchDir(dir string) Option {
	return func(s *Settings) { s.MarkerWatchDir = dir }
}

func WithProcessLockPath(path string) Option {
	return func(s *Settings) { s.ProcessLockPath = path }
}

// defaultSettings mirrors the original tool's run() defaults: batch 64,
// backtraces on, localhost:8989.
func defaultSettings() Settings {
	return Settings{
		ListenAddress:    defaultListenAddress,
		EventsPerBatch:   defaultEventsPerBatch,
		CaptureBacktrace: true,
		ChannelCapacity:  defaultChannelCapacity,
		ReentrancyLimit:  defaultReentrancyLimit,
	}
}

// NewSettings builds Settings from the defaults plus any Options.
func NewSettings(opts ...Option) Settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s Settings) validate() error {
	if s.ListenAddress == "" {
		return fmt.Errorf("heaptrace: listen address must not be empty")
	}
	if s.EventsPerBatch <= 0 {
		return fmt.Errorf("heaptrace: events per batch must be > 0, got %d", s.EventsPerBatch)
	}
	if s.ChannelCapacity <= 0 {
		return fmt.Errorf("heaptrace: channel capacity must be > 0, got %d", s.ChannelCapacity)
	}
	if s.ReentrancyLimit <= 0 {
		return fmt.Errorf("heaptrace: reentrancy limit must be > 0, got %d", s.ReentrancyLimit)
	}
	return nil
}
