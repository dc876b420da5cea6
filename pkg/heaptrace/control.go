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

// This file is the public control surface, spec §4.7. Start/StartDefault
// are defined on Tracer in tracer.go; SendMarker/SendEvent/SendTerminate
// here operate against whatever tracer is currently published, so they
// can be called from any goroutine without a reference to the Tracer
// value Start returned.

package heaptrace

// SendMarker queues a marker with the given name. It reports false
// without blocking if no tracer is currently live.
func SendMarker(name string) bool {
	t := activeTracer()
	if t == nil {
		return false
	}
	return t.submitMarker(name)
}

// SendEvent queues a synthetic HeapEvent, primarily useful for testing
// the pipeline without driving real allocations.
func SendEvent(e HeapEvent) bool {
	t := activeTracer()
	if t == nil {
		return false
	}
	return t.submit(e)
}

// SendTerminate queues the terminate message. The caller is responsible
// for calling Join on the Tracer value returned from Start afterward.
func SendTerminate() bool {
	t := activeTracer()
	if t == nil {
		return false
	}
	return t.submitTerminate()
}
