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

import "sync/atomic"

// serverHandle is the single process-wide slot publishing the live
// Tracer. atomic.Pointer's Load/Store carry acquire/release semantics
// under the Go memory model, which is exactly what spec §4.3 requires:
// every allocator-hook call reads this on its fast path, so the read
// must be wait-free, and a reference-counted handle would mean an
// allocation (or at least contention) on every single hook invocation.
var serverHandle atomic.Pointer[Tracer]

// publish transitions the handle null -> live. Only a Tracer's own
// startup sequence may call this.
func publish(t *Tracer) {
	serverHandle.Store(t)
}

// retract transitions the handle live -> null. Only a Tracer's own
// shutdown sequence may call this, and it must happen before the
// Tracer's state is otherwise discarded: hook callers that observe a
// live handle must also be able to submit to it successfully.
func retract() {
	serverHandle.Store(nil)
}

// activeTracer returns the live Tracer, or nil if none is published.
func activeTracer() *Tracer {
	return serverHandle.Load()
}
