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

// Package backend defines the combined Provision + Reservation contract
// that every back-end adapter (local, EC2-describe, autoscaling) conforms
// to, and re-exports the pool types adapters build their requests and
// responses from.
package backend

import "github.com/lgtm-migrator/device-pool/pkg/pool"

type (
	Host            = pool.Host
	Platform        = pool.Platform
	Status          = pool.Status
	Reservation     = pool.Reservation
	ProvisionInput  = pool.ProvisionInput
	ProvisionOutput = pool.ProvisionOutput
)

const (
	StatusRequested    = pool.StatusRequested
	StatusProvisioning = pool.StatusProvisioning
	StatusSucceeded    = pool.StatusSucceeded
	StatusFailed       = pool.StatusFailed
	StatusCanceled     = pool.StatusCanceled
)

// Backend is the contract every adapter satisfies; it is the dispatch
// surface a caller uses regardless of which of the three tagged variants
// (local, EC2-describe, autoscaling) backs it.
type Backend interface {
	Provision(ProvisionInput) (ProvisionOutput, error)
	Describe(ProvisionOutput) (ProvisionOutput, error)
	Exchange(Reservation) (Host, error)
	Release(ProvisionOutput) (int, error)
	Extend(ProvisionOutput) error
	Close() error
}
