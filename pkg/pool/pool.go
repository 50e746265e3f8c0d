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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/lgtm-migrator/device-pool/internal/obslog"
)

// DefaultProvisionTimeout is the TTL applied to a provision on create and
// by Extend, absent an override in Options.
const DefaultProvisionTimeout = time.Hour

// Options configures a Pool backed directly by a fixed set of hosts (the
// "Local" back-end of spec §4.6). The EC2-describe back-end also wraps a
// Pool, seeded with its instance ids; the autoscaling back-end does not
// use a Pool. See pkg/backend.
type Options struct {
	// Hosts seeds the inventory. Required; must be non-empty.
	Hosts []Host
	// ExpireProvisions starts the reaper when true (the default).
	ExpireProvisions *bool
	// ProvisionTimeout is the ledger TTL applied on create and by Extend.
	ProvisionTimeout time.Duration
	// ReapCadence overrides how often the reaper wakes; defaults to
	// DefaultReapCadence. Exposed for tests, not part of the documented
	// configuration surface.
	ReapCadence time.Duration
	// Log is the base logger new background tasks derive from.
	Log logr.Logger
}

func (o Options) expireProvisions() bool {
	if o.ExpireProvisions == nil {
		return true
	}
	return *o.ExpireProvisions
}

func (o Options) provisionTimeout() time.Duration {
	if o.ProvisionTimeout <= 0 {
		return DefaultProvisionTimeout
	}
	return o.ProvisionTimeout
}

// Pool is the core provisioning + reservation state machine (spec §2).
// It owns the ledger, inventory, queue and lock; the assignment loop and
// reaper hold references to those parts only, not to the Pool itself, so
// there's no reference cycle to unwind on Close.
type Pool struct {
	led *ledgerType
	inv *inventory
	q   *requestQueue
	lk  *assignmentLock

	provisionTimeout time.Duration
	log              logr.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New constructs a Pool directly over a fixed set of hosts. The
// EC2-describe adapter builds its own Pool over its instance ids and wraps
// additional behavior around Describe/Exchange; see pkg/backend.
func New(opts Options) (*Pool, error) {
	if len(opts.Hosts) == 0 {
		return nil, invalidInput("hosts must be non-empty")
	}
	log := opts.Log
	if log.GetSink() == nil {
		log = obslog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		led:              newLedger(),
		inv:              newInventory(opts.Hosts),
		q:                newRequestQueue(),
		lk:               &assignmentLock{},
		provisionTimeout: opts.provisionTimeout(),
		log:              log,
		cancel:           cancel,
	}

	loop := newAssignmentLoop(p.q, p.inv, p.led, p.lk, log)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		loop.run(ctx)
	}()

	if opts.expireProvisions() {
		r := newReaper(p.led, p.inv, p.lk, opts.ReapCadence, log)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			r.run(ctx)
		}()
	}

	return p, nil
}

// Provision accepts or rejects a request; it never blocks for assignment.
// A repeated id returns the existing ledger entry without enqueuing a new
// request (spec §3 invariant 3).
func (p *Pool) Provision(input ProvisionInput) (ProvisionOutput, error) {
	if p.closed.Load() {
		return ProvisionOutput{}, NewProvisioningError(ErrClosed, "id", input.ID)
	}
	if input.Amount < 1 {
		return ProvisionOutput{}, invalidInput("amount must be >= 1, got %d", input.Amount)
	}

	entry, inserted := p.led.GetOrInsert(input.ID, requestedOutput(input.ID), p.provisionTimeout)
	if inserted {
		p.q.Enqueue(queueEntry{input: input, snapshot: entry.Payload})
	}
	return entry.Payload, nil
}

// Describe returns a snapshot of the ledger entry for out.ID.
func (p *Pool) Describe(out ProvisionOutput) (ProvisionOutput, error) {
	if p.closed.Load() {
		return ProvisionOutput{}, NewProvisioningError(ErrClosed, "id", out.ID)
	}
	entry, err := p.led.Get(out.ID)
	if err != nil {
		return ProvisionOutput{}, NewProvisioningError(err, "id", out.ID)
	}
	return entry.Payload, nil
}

// Exchange resolves a reservation to its host coordinates. Per spec §9
// open question, this is a stale lookup against the known host set: it
// does not cross-check that the reservation is presently live in some
// ledger entry. Preserved intentionally; see DESIGN.md.
func (p *Pool) Exchange(r Reservation) (Host, error) {
	if p.closed.Load() {
		return Host{}, NewReservationError(ErrClosed, "deviceId", r.DeviceID)
	}
	h, ok := p.inv.lookup(r.DeviceID)
	if !ok {
		return Host{}, NewReservationError(fmt.Errorf("unknown device"), "deviceId", r.DeviceID)
	}
	return h, nil
}

// Release removes out's ledger entry and returns its succeeded
// reservations' hosts to the inventory, returning the count released.
func (p *Pool) Release(out ProvisionOutput) (int, error) {
	if p.closed.Load() {
		return 0, NewProvisioningError(ErrClosed, "id", out.ID)
	}
	entry, ok := p.led.Remove(out.ID)
	if !ok {
		return 0, nil
	}
	released := 0
	for _, r := range entry.Payload.Reservations {
		if r.Status != StatusSucceeded {
			continue
		}
		if h, ok := p.inv.lookup(r.DeviceID); ok && p.inv.offer(h) {
			released++
		}
	}
	return released, nil
}

// Extend increases out's ledger TTL by one provisionTimeout. The source
// this is ported from increments in place with no cap on total TTL; we
// match that (spec §9 open question) rather than impose a policy the spec
// never asked for.
func (p *Pool) Extend(out ProvisionOutput) error {
	if p.closed.Load() {
		return NewProvisioningError(ErrClosed, "id", out.ID)
	}
	p.led.Extend(out.ID, p.provisionTimeout)
	return nil
}

// Close signals the assignment loop and reaper to stop, interrupts any
// blocked take, and is idempotent. After Close returns, all public methods
// fail with ErrClosed.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	return nil
}

// KnownHosts returns the number of hosts the pool's inventory knows about.
func (p *Pool) KnownHosts() int { return p.inv.size() }

// OfferHost is a narrow escape hatch for back-ends that need to return a
// host to this Pool's inventory outside the normal Release/reap paths.
func (p *Pool) OfferHost(h Host) bool { return p.inv.offer(h) }

// LookupHost is a pure lookup over the pool's known hosts, used by
// back-ends that need host coordinates outside of Exchange.
func (p *Pool) LookupHost(deviceID string) (Host, bool) { return p.inv.lookup(deviceID) }

// UpdateStatus is the escape hatch back-ends use to refresh ledger state
// from the cloud (EC2-describe upgrading PROVISIONING to SUCCEEDED/FAILED)
// outside of the normal
// assignment/reap paths. It is a thin wrapper around the ledger's own
// transition, which already serializes writes per id. ok is false if id is
// absent (e.g. concurrently released).
func (p *Pool) UpdateStatus(id string, fn func(ProvisionOutput) ProvisionOutput) (ProvisionOutput, bool) {
	entry, ok := p.led.Transition(id, fn)
	return entry.Payload, ok
}
