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

// Package fake provides an in-memory Auto Scaling group for tests, grounded
// on the teacher's fake-SDK-client idiom.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/samber/lo"
)

// Instance is a minimal fake group member.
type Instance struct {
	ID             string
	LifecycleState string // "InService" or "Pending"
	Healthy        bool
}

// ASGAPI is a single-group, map-backed Auto Scaling fake.
type ASGAPI struct {
	mu sync.Mutex

	GroupName string
	Desired   int32
	Instances map[string]*Instance

	// DetachedIDs accumulates every id ever detached, for assertions.
	DetachedIDs []string
	// SetDesiredCapacityCalls records every desired-capacity value set, for
	// assertions.
	SetDesiredCapacityCalls []int32

	// nextSeq names instances spun up in response to SetDesiredCapacity.
	nextSeq int
}

func New(groupName string) *ASGAPI {
	return &ASGAPI{GroupName: groupName, Instances: map[string]*Instance{}}
}

// SeedInService adds n already-healthy, in-service instances and returns
// their ids.
func (f *ASGAPI) SeedInService(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for i := 0; i < n; i++ {
		id := f.newID()
		f.Instances[id] = &Instance{ID: id, LifecycleState: "InService", Healthy: true}
		f.Desired++
		ids = append(ids, id)
	}
	return ids
}

func (f *ASGAPI) newID() string {
	f.nextSeq++
	return fmt.Sprintf("i-fake-%d", f.nextSeq)
}

// Settle transitions every Pending instance to InService/Healthy, simulating
// the group catching up to its desired capacity. Tests call this between
// polls to drive the grow scenario forward.
func (f *ASGAPI) Settle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inst := range f.Instances {
		if inst.LifecycleState == "Pending" {
			inst.LifecycleState = "InService"
			inst.Healthy = true
		}
	}
}

func (f *ASGAPI) DescribeAutoScalingGroups(_ context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(in.AutoScalingGroupNames) != 1 || in.AutoScalingGroupNames[0] != f.GroupName {
		return nil, fmt.Errorf("autoscaling group %v not found", in.AutoScalingGroupNames)
	}

	instances := lo.MapToSlice(f.Instances, func(_ string, inst *Instance) asgtypes.Instance {
		health := "Unhealthy"
		if inst.Healthy {
			health = "Healthy"
		}
		return asgtypes.Instance{
			InstanceId:     lo.ToPtr(inst.ID),
			LifecycleState: asgtypes.LifecycleState(inst.LifecycleState),
			HealthStatus:   lo.ToPtr(health),
		}
	})

	return &autoscaling.DescribeAutoScalingGroupsOutput{
		AutoScalingGroups: []asgtypes.AutoScalingGroup{{
			AutoScalingGroupName: lo.ToPtr(f.GroupName),
			DesiredCapacity:      lo.ToPtr(f.Desired),
			Instances:            instances,
		}},
	}, nil
}

func (f *ASGAPI) SetDesiredCapacity(_ context.Context, in *autoscaling.SetDesiredCapacityInput, _ ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SetDesiredCapacityCalls = append(f.SetDesiredCapacityCalls, *in.DesiredCapacity)
	delta := *in.DesiredCapacity - f.Desired
	f.Desired = *in.DesiredCapacity
	for i := int32(0); i < delta; i++ {
		id := f.newID()
		f.Instances[id] = &Instance{ID: id, LifecycleState: "Pending", Healthy: false}
	}
	return &autoscaling.SetDesiredCapacityOutput{}, nil
}

func (f *ASGAPI) DetachInstances(_ context.Context, in *autoscaling.DetachInstancesInput, _ ...func(*autoscaling.Options)) (*autoscaling.DetachInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range in.InstanceIds {
		if _, ok := f.Instances[id]; !ok {
			return nil, fmt.Errorf("instance %s not in group", id)
		}
		delete(f.Instances, id)
		f.DetachedIDs = append(f.DetachedIDs, id)
	}
	return &autoscaling.DetachInstancesOutput{}, nil
}
