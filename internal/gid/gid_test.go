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

package gid

import (
	"sync"
	"testing"
)

func TestCurrentIsStableWithinAGoroutine(t *testing.T) {
	first := Current()
	second := Current()
	if first != second {
		t.Fatalf("Current() changed within the same goroutine: %d != %d", first, second)
	}
	if first == 0 {
		t.Fatalf("Current() returned 0, expected a positive goroutine id")
	}
}

func TestCurrentDiffersAcrossGoroutines(t *testing.T) {
	const n = 20
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ids[idx] = Current()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("goroutine id %d observed more than once among concurrently running goroutines", id)
		}
		seen[id] = true
	}
}
