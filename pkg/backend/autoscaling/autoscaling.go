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

// Package autoscaling implements the Auto Scaling group back-end adapter
// (spec §4.6): it has no fixed Host Inventory, so step 4 of the Assignment
// Loop is replaced entirely with growing/shrinking the group's desired
// capacity and detaching the instances it hands out.
package autoscaling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/lgtm-migrator/device-pool/internal/ledger"
	ilock "github.com/lgtm-migrator/device-pool/internal/lock"
	"github.com/lgtm-migrator/device-pool/internal/obslog"
	"github.com/lgtm-migrator/device-pool/internal/queue"
	"github.com/lgtm-migrator/device-pool/pkg/backend"
	"github.com/lgtm-migrator/device-pool/pkg/backend/ec2describe"
	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

// DefaultProvisionTimeout mirrors pool.DefaultProvisionTimeout; the two
// back-ends share the same ledger semantics even though this one has no
// fixed inventory to wrap a *pool.Pool around.
const DefaultProvisionTimeout = pool.DefaultProvisionTimeout

// DefaultPollInterval is the initial backoff between describe-group polls
// while waiting for newly requested capacity to become IN_SERVICE.
const DefaultPollInterval = 2 * time.Second

// DefaultPollAttempts bounds how many times the group is polled before a
// grow request is failed. At the default poll interval with exponential
// backoff this is on the order of several minutes.
const DefaultPollAttempts = 30

// Config configures the Autoscaling back-end.
type Config struct {
	AutoscalingGroupName string
	ASGAPI               ASGAPI

	// EC2API resolves instance coordinates for Describe/Exchange, the same
	// way pkg/backend/ec2describe does (spec §4.6 step 3: "describe(output)
	// later upgrades PROVISIONING -> SUCCEEDED once an EC2 describe shows
	// code=16").
	EC2API ec2describe.EC2API

	Port             int
	ProxyJump        string
	Platform         backend.Platform
	HostAddress      ec2describe.HostAddressExtractor
	DescribeCacheTTL time.Duration

	PollInterval time.Duration
	PollAttempts uint

	ExpireProvisions *bool
	ProvisionTimeout time.Duration
	ReapCadence      time.Duration
	Log              logr.Logger
}

type queueEntry struct {
	input backend.ProvisionInput
}

// Backend is the Auto Scaling variant of the Provision + Reservation
// contract.
type Backend struct {
	groupName string
	asg       ASGAPI
	ec2api    ec2describe.EC2API

	port  int
	proxy string
	plat  backend.Platform
	addr  ec2describe.HostAddressExtractor
	cache *gocache.Cache

	pollInterval time.Duration
	pollAttempts uint

	led *ledger.Ledger[backend.ProvisionOutput]
	q   *queue.Queue[queueEntry]
	lk  *ilock.AssignmentLock

	provisionTimeout time.Duration
	log              logr.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// New constructs an Autoscaling back-end bound to a single group.
func New(cfg Config) (*Backend, error) {
	if cfg.AutoscalingGroupName == "" {
		return nil, pool.NewProvisioningError(fmt.Errorf("autoscaling: AutoscalingGroupName is required"))
	}
	if cfg.ASGAPI == nil {
		return nil, pool.NewProvisioningError(fmt.Errorf("autoscaling: ASGAPI is required"))
	}
	if cfg.EC2API == nil {
		return nil, pool.NewProvisioningError(fmt.Errorf("autoscaling: EC2API is required"))
	}

	log := cfg.Log
	if log.GetSink() == nil {
		log = obslog.Default()
	}
	ttl := cfg.DescribeCacheTTL
	if ttl <= 0 {
		ttl = ec2describe.DefaultDescribeCacheTTL
	}
	addr := cfg.HostAddress
	if addr == nil {
		addr = defaultHostAddress
	}

	provisionTimeout := cfg.ProvisionTimeout
	if provisionTimeout <= 0 {
		provisionTimeout = DefaultProvisionTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	pollAttempts := cfg.PollAttempts
	if pollAttempts == 0 {
		pollAttempts = DefaultPollAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		groupName:        cfg.AutoscalingGroupName,
		asg:              cfg.ASGAPI,
		ec2api:           cfg.EC2API,
		port:             portOr(cfg.Port),
		proxy:            cfg.ProxyJump,
		plat:             cfg.Platform,
		addr:             addr,
		cache:            gocache.New(ttl, ttl),
		pollInterval:     pollInterval,
		pollAttempts:     pollAttempts,
		led:              ledger.New[backend.ProvisionOutput](),
		q:                queue.New[queueEntry](),
		lk:               &ilock.AssignmentLock{},
		provisionTimeout: provisionTimeout,
		log:              log,
		cancel:           cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runAssignmentLoop(ctx)
	}()
	if expireProvisions(cfg.ExpireProvisions) {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.runReaper(ctx, reapCadence(cfg.ReapCadence))
		}()
	}
	return b, nil
}

func defaultHostAddress(i ec2types.Instance) string {
	return aws.ToString(i.PublicIpAddress)
}

func portOr(p int) int {
	if p <= 0 {
		return 22
	}
	return p
}

func expireProvisions(p *bool) bool {
	if p == nil {
		return true
	}
	return *p
}

func reapCadence(d time.Duration) time.Duration {
	if d <= 0 {
		return pool.DefaultReapCadence
	}
	return d
}

// Provision accepts or rejects a request; it never blocks for assignment.
func (b *Backend) Provision(in backend.ProvisionInput) (backend.ProvisionOutput, error) {
	if b.closed.Load() {
		return backend.ProvisionOutput{}, pool.NewProvisioningError(pool.ErrClosed, "id", in.ID)
	}
	if in.Amount < 1 {
		return backend.ProvisionOutput{}, pool.NewProvisioningError(fmt.Errorf("amount must be >= 1, got %d", in.Amount), "id", in.ID)
	}
	entry, inserted := b.led.GetOrInsert(in.ID, backend.ProvisionOutput{ID: in.ID, Status: backend.StatusRequested}, b.provisionTimeout)
	if inserted {
		b.q.Enqueue(queueEntry{input: in})
	}
	return entry.Payload, nil
}

// Describe refreshes PROVISIONING reservations against a live EC2 describe
// call, the same upgrade rule as pkg/backend/ec2describe (spec §4.6 step 3).
func (b *Backend) Describe(out backend.ProvisionOutput) (backend.ProvisionOutput, error) {
	if b.closed.Load() {
		return backend.ProvisionOutput{}, pool.NewProvisioningError(pool.ErrClosed, "id", out.ID)
	}
	entry, err := b.led.Get(out.ID)
	if err != nil {
		return backend.ProvisionOutput{}, pool.NewProvisioningError(err, "id", out.ID)
	}
	if !anyProvisioning(entry.Payload.Reservations) {
		return entry.Payload, nil
	}
	refreshed, ok := b.led.Transition(out.ID, func(o backend.ProvisionOutput) backend.ProvisionOutput {
		if o.Status == backend.StatusFailed {
			// A failed provision is terminal; never recompute it backward.
			return o
		}
		for i, r := range o.Reservations {
			if r.Status != backend.StatusProvisioning {
				continue
			}
			inst, err := b.describeInstance(context.Background(), r.DeviceID)
			if err != nil {
				continue
			}
			o.Reservations[i].Status = ec2describe.StateCodeStatus(stateCode(inst), r.Status)
		}
		o.Status = overallStatus(o.Reservations)
		return o
	})
	if !ok {
		return entry.Payload, nil
	}
	return refreshed.Payload, nil
}

// Exchange resolves a reservation's instance-id to reachable coordinates.
func (b *Backend) Exchange(r backend.Reservation) (backend.Host, error) {
	inst, err := b.describeInstance(context.Background(), r.DeviceID)
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

// Release removes out's ledger entry. There is no shared inventory to
// return detached instances to; releasing simply drops the reservation's
// bookkeeping. Returns the count of SUCCEEDED reservations released.
func (b *Backend) Release(out backend.ProvisionOutput) (int, error) {
	if b.closed.Load() {
		return 0, pool.NewProvisioningError(pool.ErrClosed, "id", out.ID)
	}
	entry, ok := b.led.Remove(out.ID)
	if !ok {
		return 0, nil
	}
	released := 0
	for _, r := range entry.Payload.Reservations {
		if r.Status == backend.StatusSucceeded {
			released++
		}
	}
	return released, nil
}

func (b *Backend) Extend(out backend.ProvisionOutput) error {
	if b.closed.Load() {
		return pool.NewProvisioningError(pool.ErrClosed, "id", out.ID)
	}
	b.led.Extend(out.ID, b.provisionTimeout)
	return nil
}

func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *Backend) describeInstance(ctx context.Context, instanceID string) (ec2types.Instance, error) {
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

// groupInstances describes the group and splits its members into healthy
// IN_SERVICE and PENDING instance-ids, plus the group's current desired
// capacity.
func (b *Backend) groupInstances(ctx context.Context) (healthy, pending []string, desired int32, err error) {
	out, err := b.asg.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{b.groupName},
	})
	if err != nil {
		return nil, nil, 0, err
	}
	if len(out.AutoScalingGroups) != 1 {
		return nil, nil, 0, fmt.Errorf("autoscaling group %s not found", b.groupName)
	}
	group := out.AutoScalingGroups[0]
	desired = lo.FromPtr(group.DesiredCapacity)
	for _, inst := range group.Instances {
		switch inst.LifecycleState {
		case asgtypes.LifecycleStateInService:
			if lo.FromPtr(inst.HealthStatus) == "Healthy" {
				healthy = append(healthy, lo.FromPtr(inst.InstanceId))
			}
		case asgtypes.LifecycleStatePending:
			pending = append(pending, lo.FromPtr(inst.InstanceId))
		}
	}
	return healthy, pending, desired, nil
}
