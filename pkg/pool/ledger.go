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

import "github.com/lgtm-migrator/device-pool/internal/ledger"

// ledgerType is the Provision Ledger (spec §4.1) keyed on ProvisionOutput.
// Aliased from internal/ledger so pkg/backend/autoscaling, which has no
// fixed Host Inventory to wrap a *Pool around, can build its own ledger of
// the same shape without duplicating this bookkeeping.
type ledgerType = ledger.Ledger[ProvisionOutput]

// ledgerEntry is a ledger snapshot: a ProvisionOutput plus its expiry.
type ledgerEntry = ledger.Entry[ProvisionOutput]

func newLedger() *ledgerType { return ledger.New[ProvisionOutput]() }

// requestedOutput is the initial payload a fresh ledger entry is seeded
// with on getOrInsert.
func requestedOutput(id string) ProvisionOutput {
	return ProvisionOutput{ID: id, Status: StatusRequested}
}
