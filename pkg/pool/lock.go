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

import "github.com/lgtm-migrator/device-pool/internal/lock"

// assignmentLock is the process-wide mutex shared by the assignment loop
// and the reaper (spec §4.5: "Rationale for shared lock"). Holding it
// around both loops ensures the reaper never observes a ledger entry
// mid-assignment, and the assignment loop never has a host reaped out from
// under it between taking hosts and writing the reservation.
//
// Defined here as an alias rather than imported directly everywhere so
// pkg/backend/autoscaling, which shares the same internal/lock type for the
// identical reason, doesn't need to know this package re-exports it.
type assignmentLock = lock.AssignmentLock
