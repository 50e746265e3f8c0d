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

// Package devicepool is the surrounding collaborator the core never calls
// (spec §6): it sequences Provision, a poll loop over Describe, Exchange,
// and the Connection/ContentTransfer collaborators into a single Obtain +
// Lease.SendFiles + Lease.Close workflow.
package devicepool

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/lgtm-migrator/device-pool/internal/obslog"
	"github.com/lgtm-migrator/device-pool/pkg/backend"
	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

type Host = backend.Host

// DefaultPollInterval is how often Obtain polls Describe while a request is
// still PROVISIONING.
const DefaultPollInterval = 50 * time.Millisecond

// Config configures a DevicePool.
type Config struct {
	Backend              backend.Backend
	ConnectionFactory    ConnectionFactory
	TransferAgentFactory ContentTransferAgentFactory
	PollInterval         time.Duration
	Log                  logr.Logger
}

// DevicePool is the additive wrapper around a backend.Backend; the core
// remains fully usable without it.
type DevicePool struct {
	backend      backend.Backend
	connFactory  ConnectionFactory
	agentFactory ContentTransferAgentFactory
	pollInterval time.Duration
	log          logr.Logger
}

func New(cfg Config) *DevicePool {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := cfg.Log
	if log.GetSink() == nil {
		log = obslog.Default()
	}
	return &DevicePool{
		backend:      cfg.Backend,
		connFactory:  cfg.ConnectionFactory,
		agentFactory: cfg.TransferAgentFactory,
		pollInterval: interval,
		log:          log,
	}
}

// Lease is a single reservation resolved all the way down to a live
// Connection and Agent, ready for content transfer.
type Lease struct {
	Output      backend.ProvisionOutput
	Reservation backend.Reservation
	Host        backend.Host
	Conn        Connection
	Agent       Agent

	backend backend.Backend
}

// Obtain provisions in.Amount devices and polls Describe until the whole
// provision reaches a terminal status (SUCCEEDED, FAILED or CANCELED). On
// success it resolves, connects, and opens a transfer agent for the first
// reservation only; the other reservations of a multi-device request are
// not connected. Obtain exists to exercise the common single-device path
// end to end (spec §8 scenario 3's illustration).
func (d *DevicePool) Obtain(ctx context.Context, in backend.ProvisionInput) (*Lease, error) {
	out, err := d.backend.Provision(in)
	if err != nil {
		return nil, err
	}

	out, err = d.pollUntilTerminal(ctx, out)
	if err != nil {
		return nil, err
	}
	if out.Status == backend.StatusFailed {
		return nil, pool.NewProvisioningError(fmt.Errorf("provision failed: %s", out.Message), "id", out.ID)
	}
	if len(out.Reservations) == 0 {
		return nil, pool.NewProvisioningError(fmt.Errorf("provision succeeded with no reservations"), "id", out.ID)
	}

	return d.connectReservation(out, out.Reservations[0])
}

func (d *DevicePool) connectReservation(out backend.ProvisionOutput, r backend.Reservation) (*Lease, error) {
	host, err := d.backend.Exchange(r)
	if err != nil {
		return nil, err
	}
	conn, err := d.connFactory.Connect(host)
	if err != nil {
		return nil, pool.NewProvisioningError(newConnectionError(err, "deviceId", host.DeviceID), "id", out.ID)
	}
	agent, err := d.agentFactory.Connect(out.ID, conn, host)
	if err != nil {
		conn.Close()
		return nil, pool.NewProvisioningError(newContentTransferError(err, "deviceId", host.DeviceID), "id", out.ID)
	}
	return &Lease{Output: out, Reservation: r, Host: host, Conn: conn, Agent: agent, backend: d.backend}, nil
}

func (d *DevicePool) pollUntilTerminal(ctx context.Context, out backend.ProvisionOutput) (backend.ProvisionOutput, error) {
	for {
		if out.Status == backend.StatusSucceeded || out.Status == backend.StatusFailed || out.Status == backend.StatusCanceled {
			return out, nil
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(d.pollInterval):
		}
		next, err := d.backend.Describe(out)
		if err != nil {
			return out, err
		}
		out = next
	}
}

// SendFiles transfers every file in sourcePaths to destination over the
// lease's Agent, returning the staging id assigned to each file in order.
// Two files produce two distinct staging ids (spec §8 scenario 3); the
// destination is passed through unchanged to every call.
func (l *Lease) SendFiles(sourcePaths []string, destination string) ([]string, error) {
	ids := make([]string, 0, len(sourcePaths))
	for _, path := range sourcePaths {
		id, err := l.Agent.Send(path, destination)
		if err != nil {
			return ids, pool.NewProvisioningError(newContentTransferError(err, "path", path), "id", l.Output.ID)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the lease's reservation and tears down its connection,
// returning both failures together when both occur.
func (l *Lease) Close() error {
	_, releaseErr := l.backend.Release(l.Output)
	closeErr := l.Conn.Close()
	return multierr.Combine(releaseErr, closeErr)
}
