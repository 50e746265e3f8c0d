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
	"time"

	"github.com/go-logr/logr"
)

// DefaultReapCadence is how often the reaper wakes to look for expired
// provisions, per spec §4.5.
const DefaultReapCadence = time.Second

// reaper periodically expires ledger entries and returns their hosts.
type reaper struct {
	led     *ledgerType
	inv     *inventory
	lock    *assignmentLock
	cadence time.Duration
	log     logr.Logger
}

func newReaper(led *ledgerType, inv *inventory, lock *assignmentLock, cadence time.Duration, log logr.Logger) *reaper {
	if cadence <= 0 {
		cadence = DefaultReapCadence
	}
	return &reaper{led: led, inv: inv, lock: lock, cadence: cadence, log: log.WithName("reaper")}
}

// run ticks until ctx is canceled, reaping expired entries on every tick.
func (r *reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-ctx.Done():
			r.log.V(1).Info("stopping", "reason", ctx.Err())
			return
		}
	}
}

// tick reaps every entry expired as of now, returning the number of hosts
// successfully offered back to the inventory.
func (r *reaper) tick() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	offered := 0
	for _, expired := range r.led.Expired(time.Now()) {
		entry, ok := r.led.Remove(expired.ID)
		if !ok {
			continue
		}
		for _, res := range entry.Payload.Reservations {
			if res.Status != StatusSucceeded {
				continue
			}
			host, ok := r.inv.lookup(res.DeviceID)
			if !ok {
				continue
			}
			if r.inv.offer(host) {
				offered++
			}
		}
	}
	if offered > 0 {
		r.log.V(1).Info("reaped expired provisions", "hostsReturned", offered)
	}
	return offered
}
