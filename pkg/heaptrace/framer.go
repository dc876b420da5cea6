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

import "github.com/Arjan-Janssen/memdb/internal/wire"

// toWireFrame converts the tracer's internal events and markers into the
// wire package's conceptual record shapes (spec §6). Alignment is kept
// in the internal HeapEvent for fidelity but is a framer decision on
// whether to transmit it (spec §9, open question) — this framer drops
// it: the observer side defined in this core's scope never needs it to
// reconstruct a trace.
func toWireFrame(events []HeapEvent, markers []Marker) wire.Frame {
	wireEvents := make([]wire.Event, len(events))
	for i, e := range events {
		wireEvents[i] = wire.Event{
			MicrosSinceStart: e.MonotonicOffset.Microseconds(),
			Address:          e.Address,
			Size:             int64(e.Size),
			ThreadID:         e.ThreadID,
			Kind:             e.Kind.String(),
			Backtrace:        e.Backtrace,
		}
	}

	wireMarkers := make([]wire.Marker, len(markers))
	for i, m := range markers {
		wireMarkers[i] = wire.Marker{
			Name:            m.Name,
			Index:           m.Index,
			FirstEventSeqNo: m.FirstEventSeqNo,
		}
	}

	return wire.Frame{Events: wireEvents, Markers: wireMarkers}
}
