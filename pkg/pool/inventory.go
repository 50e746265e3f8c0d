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

package pool

import (
	"context"
	"sync"
)

// inventory is a bounded FIFO of available hosts plus the immutable set of
// every host the pool knows about. It is the sole mutable shared state of
// significance in the core; mutation is confined to take and offer.
//
// The channel carries FIFO order; the mutex-guarded set tracks membership
// so offer can reject a host that's already available without scanning the
// channel.
type inventory struct {
	known map[string]Host

	mu          sync.Mutex
	inAvailable map[string]bool
	available   chan Host
}

// newInventory seeds known from hosts and offers every host once.
func newInventory(hosts []Host) *inventory {
	known := make(map[string]Host, len(hosts))
	for _, h := range hosts {
		known[h.DeviceID] = h
	}
	inv := &inventory{
		known:       known,
		inAvailable: make(map[string]bool, len(hosts)),
		available:   make(chan Host, len(hosts)),
	}
	for _, h := range hosts {
		inv.available <- h
		inv.inAvailable[h.DeviceID] = true
	}
	return inv
}

// take blocks until a host is available or ctx is canceled.
func (inv *inventory) take(ctx context.Context) (Host, error) {
	select {
	case h := <-inv.available:
		inv.mu.Lock()
		delete(inv.inAvailable, h.DeviceID)
		inv.mu.Unlock()
		return h, nil
	case <-ctx.Done():
		return Host{}, ctx.Err()
	}
}

// offer returns host to the available pool. It returns false without side
// effect if host is not a known host, or is already available.
func (inv *inventory) offer(host Host) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	known, ok := inv.known[host.DeviceID]
	if !ok || known != host || inv.inAvailable[host.DeviceID] {
		return false
	}
	inv.inAvailable[host.DeviceID] = true
	// capacity == len(known), and inAvailable guards against oversubscribing
	// it, so this send can never block.
	inv.available <- host
	return true
}

// lookup is a pure lookup over known hosts.
func (inv *inventory) lookup(deviceID string) (Host, bool) {
	h, ok := inv.known[deviceID]
	return h, ok
}

// size returns the number of known hosts.
func (inv *inventory) size() int { return len(inv.known) }
