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

// Package wire implements the length-delimited frame the tracer core
// writes to the observer connection. The core does not constrain the
// encoding (see spec §4.6); this is one concrete, self-delimiting choice:
// a big-endian uint32 byte length followed by a JSON object built with
// gabs, mirroring the ad-hoc structured-JSON style the sidecar this core
// was adapted from uses for everything it puts on a wire or in a log.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Jeffail/gabs/v2"
)

// Event is the conceptual wire record from spec §6. Size is a plain
// int64 that is always emitted, so the sentinel event carries size 0 and
// round-trips the same as a normal zero-size allocation.
type Event struct {
	MicrosSinceStart int64  `json:"micros_since_start"`
	Address          uint64 `json:"address"`
	Size             int64  `json:"size"`
	ThreadID         uint64 `json:"thread_id"`
	Kind             string `json:"kind"`
	Backtrace        string `json:"backtrace"`
}

// Marker is the conceptual wire record from spec §6.
type Marker struct {
	Name            string `json:"name"`
	Index           int64  `json:"index"`
	FirstEventSeqNo int64  `json:"first_event_seqno"`
}

// Frame is one self-delimited batch: the events and markers accumulated
// since the previous frame, in the order the tracer assigned them.
type Frame struct {
	Events  []Event  `json:"events"`
	Markers []Marker `json:"markers"`
}

// Encode writes the frame as a 4-byte big-endian length prefix followed
// by its JSON payload, and returns the total number of bytes written.
func Encode(w io.Writer, frame Frame) (int, error) {
	obj := gabs.New()
	if _, err := obj.Array("events"); err != nil {
		return 0, fmt.Errorf("wire: create events array: %w", err)
	}
	for _, e := range frame.Events {
		eventObj := gabs.New()
		eventObj.Set(e.MicrosSinceStart, "micros_since_start")
		eventObj.Set(e.Address, "address")
		eventObj.Set(e.Size, "size")
		eventObj.Set(e.ThreadID, "thread_id")
		eventObj.Set(e.Kind, "kind")
		eventObj.Set(e.Backtrace, "backtrace")
		if err := obj.ArrayAppend(eventObj.Data(), "events"); err != nil {
			return 0, fmt.Errorf("wire: append event: %w", err)
		}
	}

	if _, err := obj.Array("markers"); err != nil {
		return 0, fmt.Errorf("wire: create markers array: %w", err)
	}
	for _, m := range frame.Markers {
		markerObj := gabs.New()
		markerObj.Set(m.Name, "name")
		markerObj.Set(m.Index, "index")
		markerObj.Set(m.FirstEventSeqNo, "first_event_seqno")
		if err := obj.ArrayAppend(markerObj.Data(), "markers"); err != nil {
			return 0, fmt.Errorf("wire: append marker: %w", err)
		}
	}

	payload := obj.Bytes()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))

	written := 0
	n, err := w.Write(lenPrefix[:])
	written += n
	if err != nil {
		return written, fmt.Errorf("wire: write length prefix: %w", err)
	}

	n, err = w.Write(payload)
	written += n
	if err != nil {
		return written, fmt.Errorf("wire: write payload: %w", err)
	}

	return written, nil
}

// Decode reads one frame. An empty accumulation buffer with no markers
// decodes to a Frame with empty (non-nil) slices, not an error.
func Decode(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, fmt.Errorf("wire: read length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(lenPrefix[:])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wire: read payload: %w", err)
	}

	frame := Frame{Events: []Event{}, Markers: []Marker{}}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return Frame{}, fmt.Errorf("wire: unmarshal payload: %w", err)
	}
	return frame, nil
}
