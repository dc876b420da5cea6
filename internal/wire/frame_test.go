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

package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := Frame{
		Events: []Event{
			{MicrosSinceStart: 10, Address: 0xdead, Size: 16, ThreadID: 1, Kind: "alloc", Backtrace: "main.f\nmain.main"},
			{MicrosSinceStart: 20, Address: 0xbeef, Size: 0, ThreadID: 2, Kind: "dealloc"},
		},
		Markers: []Marker{
			{Name: "before", Index: 0, FirstEventSeqNo: 0},
		},
	}

	var buf bytes.Buffer
	n, err := Encode(&buf, frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != buf.Len() {
		t.Fatalf("Encode reported %d bytes written, buffer holds %d", n, buf.Len())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, frame) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, frame)
	}
}

func TestEncodeDecodeEmptyFrameIsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Encode(&buf, Frame{}); err != nil {
		t.Fatalf("Encode empty frame: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode empty frame: %v", err)
	}
	if got.Events == nil || got.Markers == nil {
		t.Fatalf("expected empty non-nil slices, got %+v", got)
	}
	if len(got.Events) != 0 || len(got.Markers) != 0 {
		t.Fatalf("expected zero-length slices, got %+v", got)
	}
}

func TestDecodeMultipleFramesFromOneStream(t *testing.T) {
	var buf bytes.Buffer
	first := Frame{Markers: []Marker{{Name: "m1"}}}
	second := Frame{Events: []Event{{Address: 1}}}

	if _, err := Encode(&buf, first); err != nil {
		t.Fatalf("Encode first: %v", err)
	}
	if _, err := Encode(&buf, second); err != nil {
		t.Fatalf("Encode second: %v", err)
	}

	got1, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode first: %v", err)
	}
	if len(got1.Markers) != 1 || got1.Markers[0].Name != "m1" {
		t.Fatalf("first frame mismatch: %+v", got1)
	}

	got2, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode second: %v", err)
	}
	if len(got2.Events) != 1 || got2.Events[0].Address != 1 {
		t.Fatalf("second frame mismatch: %+v", got2)
	}
}

func TestDecodeTruncatedStreamErrors(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Encode(&buf, Frame{Events: []Event{{Address: 1}}}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-1])
	if _, err := Decode(truncated); err == nil {
		t.Fatalf("expected error decoding a truncated frame")
	}
}
