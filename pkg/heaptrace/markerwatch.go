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
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// runMarkerWatch turns file-creation events under settings.MarkerWatchDir
// into markers, named after the created file, submitted through the same
// Control API path an instrumented application would use. This gives a
// launcher a way to inject markers into a running trace without touching
// the instrumented process's source, the way the original tool's demo
// program called send_marker directly around a workload it controlled.
func (t *Tracer) runMarkerWatch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Errorw("marker watch: create watcher failed", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(t.settings.MarkerWatchDir); err != nil {
		t.logger.Errorw("marker watch: add directory failed",
			"dir", t.settings.MarkerWatchDir, "error", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !SendMarker(name) {
				t.logger.Debugw("marker watch: dropped marker after tracer stopped", "name", name)
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			t.logger.Errorw("marker watch: watcher error", "error", err)
		case <-t.doneCh:
			return
		}
	}
}
