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
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestMarkerWatchTurnsFileCreationIntoAMarker creates a file in the
// watched directory and checks the resulting marker shows up framed on
// the wire, named after the file.
func TestMarkerWatchTurnsFileCreationIntoAMarker(t *testing.T) {
	dir := t.TempDir()
	tracer, conn := startTestTracer(t, "127.0.0.1:19004",
		WithEventsPerBatch(1),
		WithBacktraceCapture(false),
		WithMarkerWatchDir(dir))
	defer conn.Close()

	if err := os.WriteFile(filepath.Join(dir, "checkpoint"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Give the watcher goroutine time to observe the create event and
	// submit the marker before this test moves on to terminate.
	time.Sleep(200 * time.Millisecond)

	if ok := SendEvent(HeapEvent{Address: 1, Kind: EventAlloc}); !ok {
		t.Fatalf("SendEvent returned false")
	}
	SendTerminate()
	tracer.Join()

	frames := readAllFrames(t, conn)
	for _, f := range frames {
		for _, m := range f.Markers {
			if m.Name == "checkpoint" {
				return
			}
		}
	}
	t.Fatalf("expected a marker named \"checkpoint\" among the frames, got %+v", frames)
}
