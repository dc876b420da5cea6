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
	"github.com/alphadose/haxmap"

	"github.com/Arjan-Janssen/memdb/internal/gid"
)

// reentrancyGuard bounds how deep the hook is allowed to call itself. Go
// has no per-OS-thread local storage, so depth is keyed by goroutine id
// instead; a global counter would either serialize every goroutine's
// hook calls against each other or misclassify unrelated goroutines'
// allocations as reentrant, which is exactly the failure mode spec §4.2
// rules out. The map is the same lock-free concurrent map the flow
// tracking in the sidecar this core descends from keyed by flow id; here
// it's keyed by goroutine id instead, under the same kind of highly
// concurrent, mostly-single-key-touched access pattern.
type reentrancyGuard struct {
	limit  int32
	depths *haxmap.Map[uint64, *int32]
}

func newReentrancyGuard(limit int32) *reentrancyGuard {
	return &reentrancyGuard{
		limit:  limit,
		depths: haxmap.New[uint64, *int32](),
	}
}

// enter increments the calling goroutine's depth counter and reports
// whether the call should be admitted: admitted iff the depth reached by
// this increment is still strictly below limit. The depth is bumped
// before the comparison (matching the original hook's scoped-limiter
// ordering), so with the default limit of 2 the outermost call is
// admitted (depth reaches 1) and any allocation triggered from inside
// that call's own processing — e.g. by backtrace capture — is not
// (depth would reach 2): the guard never lets a tracer-induced
// allocation's own event reach the wire, only the original top-level
// one. release must be called exactly once, on every exit path, to keep
// the invariant that the counter is >= 0 and returns to 0 between
// top-level application allocations.
func (g *reentrancyGuard) enter() (release func(), admitted bool) {
	id := gid.Current()

	depth, _ := g.depths.GetOrCompute(id, func() *int32 {
		d := int32(0)
		return &d
	})

	*depth++
	admitted = *depth < g.limit

	return func() {
		*depth--
		if *depth < 0 {
			panic(errInternalInvariantViolation("reentrancy counter went negative"))
		}
	}, admitted
}
