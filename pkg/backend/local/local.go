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

// Package local implements the Local back-end adapter: the inventory is
// seeded once from a fixed set of hosts at construction, and Exchange
// resolves coordinates with no cloud calls.
package local

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/lgtm-migrator/device-pool/pkg/backend"
	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

// Config configures the Local back-end.
type Config struct {
	Hosts            []backend.Host
	ExpireProvisions *bool
	ProvisionTimeout time.Duration
	ReapCadence      time.Duration
	Log              logr.Logger
}

// Backend is the Local variant of the Provision + Reservation contract.
// It wraps a *pool.Pool directly; it never issues a cloud call.
type Backend struct {
	p *pool.Pool
}

var _ backend.Backend = (*Backend)(nil)

// New constructs a Local back-end over cfg.Hosts.
func New(cfg Config) (*Backend, error) {
	p, err := pool.New(pool.Options{
		Hosts:            cfg.Hosts,
		ExpireProvisions: cfg.ExpireProvisions,
		ProvisionTimeout: cfg.ProvisionTimeout,
		ReapCadence:      cfg.ReapCadence,
		Log:              cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{p: p}, nil
}

func (b *Backend) Provision(in backend.ProvisionInput) (backend.ProvisionOutput, error) {
	return b.p.Provision(in)
}

func (b *Backend) Describe(out backend.ProvisionOutput) (backend.ProvisionOutput, error) {
	return b.p.Describe(out)
}

// Exchange scans the full known-host set and returns coordinates for
// r.DeviceID; it does not cross-check that the device is presently
// reserved. Preserved per spec §9 open question: the contract permits this
// stale lookup, and an implementor choosing to add a liveness check would
// be changing observable behavior, not just an implementation detail.
func (b *Backend) Exchange(r backend.Reservation) (backend.Host, error) {
	return b.p.Exchange(r)
}

func (b *Backend) Release(out backend.ProvisionOutput) (int, error) {
	return b.p.Release(out)
}

func (b *Backend) Extend(out backend.ProvisionOutput) error {
	return b.p.Extend(out)
}

func (b *Backend) Close() error {
	return b.p.Close()
}
