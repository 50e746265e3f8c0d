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

// Package fake provides an in-memory stand-in for the narrow EC2API
// interfaces used by pkg/backend/ec2describe and pkg/backend/autoscaling,
// grounded on the teacher's fake-SDK-client test idiom.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
)

// EC2API is a minimal, map-backed EC2API fake. Tests populate Instances
// directly; DescribeInstances serves them from memory.
type EC2API struct {
	mu        sync.Mutex
	Instances map[string]ec2types.Instance

	// CallCount counts DescribeInstances invocations, used to assert on
	// cache hit/miss behavior.
	CallCount int
}

func New() *EC2API {
	return &EC2API{Instances: map[string]ec2types.Instance{}}
}

// SetInstance registers or replaces an instance with the given state code
// and public IP.
func (f *EC2API) SetInstance(id string, stateCode int32, publicIP string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Instances[id] = ec2types.Instance{
		InstanceId:       lo.ToPtr(id),
		PublicIpAddress:  lo.ToPtr(publicIP),
		State:            &ec2types.InstanceState{Code: lo.ToPtr(stateCode)},
	}
}

func (f *EC2API) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallCount++

	out := &ec2.DescribeInstancesOutput{}
	for _, id := range in.InstanceIds {
		inst, ok := f.Instances[id]
		if !ok {
			continue
		}
		out.Reservations = append(out.Reservations, ec2types.Reservation{Instances: []ec2types.Instance{inst}})
	}
	if len(in.InstanceIds) > 0 && len(out.Reservations) == 0 {
		return nil, fmt.Errorf("InvalidInstanceID.NotFound: %v", in.InstanceIds)
	}
	return out, nil
}
