/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package lock provides the single process-wide mutex a back-end's
// assignment loop and reaper share, so host allocation and TTL expiry never
// interleave (spec §4.5, §5).
package lock

import "sync"

// AssignmentLock is a plain mutex under a domain-specific name so call
// sites (assignment.go, reaper.go) read as taking "the assignment lock"
// rather than an anonymous sync.Mutex.
type AssignmentLock struct {
	mu sync.Mutex
}

func (l *AssignmentLock) Lock()   { l.mu.Lock() }
func (l *AssignmentLock) Unlock() { l.mu.Unlock() }
