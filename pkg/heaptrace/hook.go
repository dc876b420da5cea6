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
	"runtime"
	"strings"
	"unsafe"

	"github.com/Arjan-Janssen/memdb/internal/gid"
)

// Alloc is the hook's allocation entry point. Go has no GlobalAlloc-style
// seam to swap the runtime's allocator from user code, so this is the
// Go-native rendition of spec §4.1's allocator hook: an explicit
// facade that the instrumented call site invokes instead of `make`
// directly. It performs the real allocation, then submits a HeapEvent
// for it, and returns the pointer regardless of whether submission
// succeeded.
func Alloc(size, alignment uint64) unsafe.Pointer {
	buf := make([]byte, size)
	var ptr unsafe.Pointer
	if len(buf) > 0 {
		ptr = unsafe.Pointer(&buf[0])
	} else {
		ptr = unsafe.Pointer(&buf)
	}
	hook(EventAlloc, uint64(uintptr(ptr)), size, alignment)
	return ptr
}

// Free is the hook's deallocation entry point. The event is submitted
// before the caller's logical release of ptr, so the address is still
// meaningful in the record, exactly as spec §4.1 requires for the
// symmetric Dealloc case.
func Free(ptr unsafe.Pointer, size, alignment uint64) {
	hook(EventDealloc, uint64(uintptr(ptr)), size, alignment)
}

// hook is the shared fast path for Alloc and Free: load the handle, let
// the reentrancy guard decide admission, optionally capture a backtrace,
// and submit.
func hook(kind HeapEventKind, address, size, alignment uint64) {
	t := activeTracer()
	if t == nil {
		return
	}

	release, admitted := t.guard.enter()
	defer release()
	if !admitted {
		return
	}

	evt := HeapEvent{
		Address:   address,
		Size:      size,
		Alignment: alignment,
		ThreadID:  gid.Current(),
		Kind:      kind,
	}
	if t.settings.CaptureBacktrace {
		evt.Backtrace = captureBacktrace()
	}

	t.submit(evt)
}

// captureBacktrace renders the call stack at the point of interception.
// Per spec §4.1, the act of capturing a backtrace may itself allocate;
// this implementation makes that literal by routing its scratch buffer
// through Alloc, so the same hook/guard path that protects application
// allocations also protects the tracer's own backtrace capture from
// feeding back into itself without bound.
func captureBacktrace() string {
	scratch := Alloc(256, 8)
	defer Free(scratch, 256, 8)

	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		sb.WriteString(frame.Function)
		if !more {
			break
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
