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

import "github.com/lgtm-migrator/device-pool/internal/queue"

// queueEntry pairs an accepted provision input with the ledger snapshot
// taken at enqueue time.
type queueEntry struct {
	input    ProvisionInput
	snapshot ProvisionOutput
}

// requestQueue is the unbounded, strict-FIFO queue of accepted provision
// requests awaiting hosts (spec §4.3).
type requestQueue = queue.Queue[queueEntry]

func newRequestQueue() *requestQueue { return queue.New[queueEntry]() }
