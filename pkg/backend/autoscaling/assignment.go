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

package autoscaling

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/lgtm-migrator/device-pool/pkg/backend"
)

// runAssignmentLoop dequeues accepted requests and satisfies them by
// growing or shrinking the Auto Scaling group, replacing step 4 of the
// fixed-inventory Assignment Loop entirely (spec §4.6).
func (b *Backend) runAssignmentLoop(ctx context.Context) {
	for {
		entry, err := b.q.Take(ctx)
		if err != nil {
			b.log.V(1).Info("stopping assignment loop", "reason", err)
			return
		}
		b.assign(ctx, entry)
	}
}

func (b *Backend) assign(ctx context.Context, entry queueEntry) {
	b.lk.Lock()
	defer b.lk.Unlock()

	id, amount := entry.input.ID, entry.input.Amount
	if _, ok := b.led.Transition(id, func(o backend.ProvisionOutput) backend.ProvisionOutput {
		o.Status = backend.StatusProvisioning
		return o
	}); !ok {
		// Released/canceled before we got to it.
		return
	}

	healthy, _, desired, err := b.groupInstances(ctx)
	if err != nil {
		b.fail(id, fmt.Errorf("describing group: %w", err))
		return
	}

	var selected []string
	if len(healthy) >= amount {
		selected = healthy[:amount]
		if _, err := b.asg.DetachInstances(ctx, &autoscaling.DetachInstancesInput{
			AutoScalingGroupName:           &b.groupName,
			InstanceIds:                    selected,
			ShouldDecrementDesiredCapacity: boolPtr(false),
		}); err != nil {
			b.fail(id, fmt.Errorf("detaching instances: %w", err))
			return
		}
		// Compensate the detach: desired capacity must drop by the same
		// amount, or the group will spin up replacements we didn't ask for.
		if _, err := b.asg.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
			AutoScalingGroupName: &b.groupName,
			DesiredCapacity:      int32Ptr(desired - int32(amount)),
		}); err != nil {
			b.log.Error(err, "setting desired capacity down after detach", "id", id, "amount", amount)
		}
	} else {
		need := amount - len(healthy)
		if _, err := b.asg.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
			AutoScalingGroupName: &b.groupName,
			DesiredCapacity:      int32Ptr(desired + int32(need)),
		}); err != nil {
			b.fail(id, fmt.Errorf("raising desired capacity: %w", err))
			return
		}

		selected, err = b.pollUntilSatisfied(ctx, id, amount)
		if err != nil {
			b.fail(id, fmt.Errorf("waiting for capacity: %w", err))
			return
		}

		if _, err := b.asg.DetachInstances(ctx, &autoscaling.DetachInstancesInput{
			AutoScalingGroupName:           &b.groupName,
			InstanceIds:                    selected,
			ShouldDecrementDesiredCapacity: boolPtr(false),
		}); err != nil {
			b.fail(id, fmt.Errorf("detaching instances: %w", err))
			return
		}
		// Compensate the detach: restore desired capacity to its pre-grow
		// value, or the group will relaunch replacements for instances we
		// already took and no one asked for.
		if _, err := b.asg.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
			AutoScalingGroupName: &b.groupName,
			DesiredCapacity:      int32Ptr(desired),
		}); err != nil {
			b.log.Error(err, "setting desired capacity down after detach", "id", id, "amount", amount)
		}
	}

	if _, ok := b.led.Transition(id, func(o backend.ProvisionOutput) backend.ProvisionOutput {
		o.Status = backend.StatusSucceeded
		reservations := make([]backend.Reservation, 0, len(selected))
		for _, deviceID := range selected {
			reservations = append(reservations, backend.Reservation{DeviceID: deviceID, Status: backend.StatusSucceeded})
		}
		o.Reservations = reservations
		return o
	}); !ok {
		b.log.V(1).Info("provision removed mid-assignment; leaving detached instances unreserved", "id", id)
	}
}

// pollUntilSatisfied polls the group with backoff (spec §4.6 step 3),
// updating the ledger with partial PROVISIONING/SUCCEEDED state on every
// poll so a concurrent Describe sees progress, until amount instances are
// observed IN_SERVICE.
func (b *Backend) pollUntilSatisfied(ctx context.Context, id string, amount int) ([]string, error) {
	var selected []string
	err := retry.Do(
		func() error {
			healthy, pending, _, err := b.groupInstances(ctx)
			if err != nil {
				return err
			}

			take := healthy
			if len(take) > amount {
				take = take[:amount]
			}
			remaining := amount - len(take)
			pendingShown := pending
			if remaining >= 0 && len(pendingShown) > remaining {
				pendingShown = pendingShown[:remaining]
			}

			b.led.Transition(id, func(o backend.ProvisionOutput) backend.ProvisionOutput {
				reservations := make([]backend.Reservation, 0, len(take)+len(pendingShown))
				for _, d := range take {
					reservations = append(reservations, backend.Reservation{DeviceID: d, Status: backend.StatusSucceeded})
				}
				for _, d := range pendingShown {
					reservations = append(reservations, backend.Reservation{DeviceID: d, Status: backend.StatusProvisioning})
				}
				o.Reservations = reservations
				o.Status = overallStatus(reservations)
				return o
			})

			if len(take) >= amount {
				selected = take
				return nil
			}
			return fmt.Errorf("%d/%d instances in service", len(take), amount)
		},
		retry.Attempts(b.pollAttempts),
		retry.Delay(b.pollInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return selected, nil
}

func (b *Backend) fail(id string, cause error) {
	b.log.Error(cause, "autoscaling assignment failed", "id", id)
	b.led.Transition(id, func(o backend.ProvisionOutput) backend.ProvisionOutput {
		o.Status = backend.StatusFailed
		o.Message = cause.Error()
		return o
	})
}

func boolPtr(b bool) *bool    { return &b }
func int32Ptr(v int32) *int32 { return &v }
