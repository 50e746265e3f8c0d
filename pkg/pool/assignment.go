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

	"github.com/go-logr/logr"
)

// assignmentLoop dequeues accepted requests and binds hosts to them. It
// shares lock with the reaper so the two never interleave: the reaper must
// never yank a host out from under a request that's mid-assignment.
type assignmentLoop struct {
	queue *requestQueue
	inv   *inventory
	led   *ledgerType
	lock  *assignmentLock
	log   logr.Logger
}

func newAssignmentLoop(queue *requestQueue, inv *inventory, led *ledgerType, lock *assignmentLock, log logr.Logger) *assignmentLoop {
	return &assignmentLoop{queue: queue, inv: inv, led: led, lock: lock, log: log.WithName("assignment")}
}

// run processes requests until ctx is canceled.
func (a *assignmentLoop) run(ctx context.Context) {
	for {
		entry, err := a.queue.Take(ctx)
		if err != nil {
			a.log.V(1).Info("stopping", "reason", err)
			return
		}
		a.assign(ctx, entry)
	}
}

func (a *assignmentLoop) assign(ctx context.Context, entry queueEntry) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, ok := a.led.Transition(entry.input.ID, func(o ProvisionOutput) ProvisionOutput {
		o.Status = StatusProvisioning
		return o
	}); !ok {
		// The id was removed (e.g. Released/canceled) before we got to it.
		return
	}

	built := make([]Reservation, 0, entry.input.Amount)
	for len(built) < entry.input.Amount {
		host, err := a.inv.take(ctx)
		if err != nil {
			// Context canceled mid-assignment (pool closing): give back
			// whatever we already took before returning.
			for _, r := range built {
				if h, ok := a.inv.lookup(r.DeviceID); ok {
					a.inv.offer(h)
				}
			}
			return
		}
		built = append(built, Reservation{DeviceID: host.DeviceID, Status: StatusSucceeded})
	}

	if _, ok := a.led.Transition(entry.input.ID, func(o ProvisionOutput) ProvisionOutput {
		o.Status = StatusSucceeded
		o.Reservations = append(o.Reservations, built...)
		return o
	}); !ok {
		// Removed while we were taking hosts: offer them back rather than
		// leaking them.
		for _, r := range built {
			if h, ok := a.inv.lookup(r.DeviceID); ok {
				a.inv.offer(h)
			}
		}
	}
}
