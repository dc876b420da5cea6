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

// Package gid identifies the calling goroutine. Go has no OS-thread-local
// storage reachable from user code, and the scheduler is M:N, so the
// tracer core treats the goroutine as the "thread" of spec ancestry: each
// goroutine gets a stable id for its lifetime, which is all the core
// needs for per-producer FIFO and self-submission checks.
package gid

import "runtime"

// Current parses the id out of the calling goroutine's own stack dump.
// This is the same trick used for fast "am I the owner goroutine" checks
// elsewhere in the ecosystem; it allocates nothing beyond a stack-local
// buffer.
func Current() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
