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

// Package ec2describe implements the EC2-describe back-end adapter:
// reservations carry EC2 instance-ids, Exchange resolves coordinates via a
// live DescribeInstances call, and Describe refreshes PROVISIONING
// reservations to SUCCEEDED/FAILED from the instance's real state code.
package ec2describe

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/lgtm-migrator/device-pool/pkg/backend"
	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

// EC2 instance state codes (low byte of the documented 16-bit state code).
// See spec §4.6: code 16 is running, 48/80 are terminated/stopped.
const (
	stateCodeRunning    = 16
	stateCodeTerminated = 48
	stateCodeStopped    = 80
)

// DefaultDescribeCacheTTL bounds how often concurrent Describe/Exchange
// calls hit the EC2 API for the same instance, mirroring the teacher's
// UnavailableOfferings cache (pkg/cache/unavailableofferings.go).
const DefaultDescribeCacheTTL = 5 * time.Second

// HostAddressExtractor maps a described instance to the address Exchange
// should report. The default extractor reads PublicIpAddress.
type HostAddressExtractor func(ec2types.Instance) string

func defaultHostAddress(i ec2types.Instance) string {
	return aws.ToString(i.PublicIpAddress)
}

// Config configures the EC2-describe back-end.
type Config struct {
	// InstanceIDs seeds the inventory; each id is provisioned like a Local
	// host, but Exchange and Describe resolve/refresh it against EC2.
	InstanceIDs []string
	EC2API      EC2API

	// Injection points for the host mapping (spec §6 configuration
	// surface): platformOS, proxyJump, port, hostAddress, hostPlatform.
	Port         int
	ProxyJump    string
	Platform     backend.Platform
	HostAddress  HostAddressExtractor
	DescribeCacheTTL time.Duration

	ExpireProvisions *bool
	ProvisionTimeout time.Duration
	ReapCadence      time.Duration
	Log              logr.Logger
}

// Backend is the EC2-describe variant of the Provision + Reservation
// contract.
type Backend struct {
	p      *pool.Pool
	ec2api EC2API
	port   int
	proxy  string
	plat   backend.Platform
	addr   HostAddressExtractor
	cache  *gocache.Cache
}

var _ backend.Backend = (*Backend)(nil)

// New constructs an EC2-describe back-end seeded with cfg.InstanceIDs.
func New(cfg Config) (*Backend, error) {
	if cfg.EC2API == nil {
		return nil, pool.NewProvisioningError(fmt.Errorf("ec2describe: EC2API is required"))
	}
	hosts := lo.Map(cfg.InstanceIDs, func(id string, _ int) backend.Host {
		return backend.Host{DeviceID: id, Port: portOr(cfg.Port), Platform: cfg.Platform, ProxyJump: cfg.ProxyJump}
	})
	p, err := pool.New(pool.Options{
		Hosts:            hosts,
		ExpireProvisions: cfg.ExpireProvisions,
		ProvisionTimeout: cfg.ProvisionTimeout,
		ReapCadence:      cfg.ReapCadence,
		Log:              cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	ttl := cfg.DescribeCacheTTL
	if ttl <= 0 {
		ttl = DefaultDescribeCacheTTL
	}
	addr := cfg.HostAddress
	if addr == nil {
		addr = defaultHostAddress
	}
	return &Backend{
		p:      p,
		ec2api: cfg.EC2API,
		port:   portOr(cfg.Port),
		proxy:  cfg.ProxyJump,
		plat:   cfg.Platform,
		addr:   addr,
		cache:  gocache.New(ttl, ttl),
	}, nil
}

func portOr(p int) int {
	if p <= 0 {
		return 22
	}
	return p
}

func (b *Backend) Provision(in backend.ProvisionInput) (backend.ProvisionOutput, error) {
	return b.p.Provision(in)
}

// Describe refreshes every PROVISIONING reservation against a live EC2
// describe call before returning the ledger snapshot (spec §8 scenario 6).
func (b *Backend) Describe(out backend.ProvisionOutput) (backend.ProvisionOutput, error) {
	snap, err := b.p.Describe(out)
	if err != nil {
		return backend.ProvisionOutput{}, err
	}
	if !anyProvisioning(snap.Reservations) {
		return snap, nil
	}

	refreshed, ok := b.p.UpdateStatus(snap.ID, func(o backend.ProvisionOutput) backend.ProvisionOutput {
		for i, r := range o.Reservations {
			if r.Status != backend.StatusProvisioning {
				continue
			}
			inst, err := b.describeOne(context.Background(), r.DeviceID)
			if err != nil {
				continue
			}
			o.Reservations[i].Status = StateCodeStatus(stateCode(inst), r.Status)
		}
		o.Status = overallStatus(o.Reservations)
		return o
	})
	if !ok {
		return snap, nil
	}
	return refreshed, nil
}

// Exchange resolves a reservation's instance-id to reachable coordinates
// via a live describe call. Fails with ReservationError if the instance is
// absent.
func (b *Backend) Exchange(r backend.Reservation) (backend.Host, error) {
	inst, err := b.describeOne(context.Background(), r.DeviceID)
	if err != nil {
		return backend.Host{}, pool.NewReservationError(err, "deviceId", r.DeviceID)
	}
	return backend.Host{
		DeviceID:  r.DeviceID,
		HostName:  b.addr(inst),
		Port:      b.port,
		Platform:  b.plat,
		ProxyJump: b.proxy,
	}, nil
}

func (b *Backend) Release(out backend.ProvisionOutput) (int, error) { return b.p.Release(out) }
func (b *Backend) Extend(out backend.ProvisionOutput) error         { return b.p.Extend(out) }
func (b *Backend) Close() error                                     { return b.p.Close() }

func (b *Backend) describeOne(ctx context.Context, instanceID string) (ec2types.Instance, error) {
	if cached, ok := b.cache.Get(instanceID); ok {
		return cached.(ec2types.Instance), nil
	}
	out, err := b.ec2api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return ec2types.Instance{}, err
	}
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			b.cache.SetDefault(instanceID, i)
			return i, nil
		}
	}
	return ec2types.Instance{}, fmt.Errorf("instance %s not found", instanceID)
}

func stateCode(i ec2types.Instance) int32 {
	if i.State == nil || i.State.Code == nil {
		return -1
	}
	return aws.ToInt32(i.State.Code) & 0xFF
}

// StateCodeStatus maps an EC2 instance state code to a reservation status,
// preserving current when the code indicates neither terminal outcome.
// Exported so the autoscaling back-end can reuse the exact same mapping
// when its Describe refreshes PROVISIONING reservations (spec §4.6 step 3).
func StateCodeStatus(code int32, current backend.Status) backend.Status {
	switch code {
	case stateCodeRunning:
		return backend.StatusSucceeded
	case stateCodeTerminated, stateCodeStopped:
		return backend.StatusFailed
	default:
		return current
	}
}

func anyProvisioning(rs []backend.Reservation) bool {
	for _, r := range rs {
		if r.Status == backend.StatusProvisioning {
			return true
		}
	}
	return false
}

func overallStatus(rs []backend.Reservation) backend.Status {
	allSucceeded := true
	for _, r := range rs {
		if r.Status == backend.StatusFailed {
			return backend.StatusFailed
		}
		if r.Status != backend.StatusSucceeded {
			allSucceeded = false
		}
	}
	if allSucceeded && len(rs) > 0 {
		return backend.StatusSucceeded
	}
	return backend.StatusProvisioning
}
