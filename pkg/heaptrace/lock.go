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
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// processLock is an advisory, cross-process guard on top of spec §3's
// "at most one tracer is published at any time" invariant: that
// invariant is enforced in-process by the server handle, but two
// separate processes on the same host could both try to bind the same
// default listen address. A file lock under os.TempDir turns that into
// a clean StartupError instead of a confusing bind-address race.
type processLock struct {
	fl *flock.Flock
}

func lockPathFor(settings Settings) string {
	if settings.ProcessLockPath != "" {
		return settings.ProcessLockPath
	}
	sanitized := strings.NewReplacer(":", "_", "/", "_").Replace(settings.ListenAddress)
	return filepath.Join(os.TempDir(), fmt.Sprintf("heaptrace-%s.lock", sanitized))
}

func acquireProcessLock(settings Settings) (*processLock, error) {
	fl := flock.New(lockPathFor(settings))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire process lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("another tracer already holds %s", fl.Path())
	}
	return &processLock{fl: fl}, nil
}

func (p *processLock) release() error {
	if p == nil || p.fl == nil {
		return nil
	}
	return p.fl.Unlock()
}
