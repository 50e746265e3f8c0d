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
	"time"
)

// runReaper periodically expires ledger entries (spec §4.5). Unlike the
// fixed-inventory back-ends, there is no host to offer back: once detached,
// an instance's lifecycle belongs to the caller, not this adapter.
func (b *Backend) runReaper(ctx context.Context, cadence time.Duration) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.reapTick()
		case <-ctx.Done():
			b.log.V(1).Info("stopping reaper", "reason", ctx.Err())
			return
		}
	}
}

func (b *Backend) reapTick() int {
	b.lk.Lock()
	defer b.lk.Unlock()

	removed := 0
	for _, expired := range b.led.Expired(time.Now()) {
		if _, ok := b.led.Remove(expired.ID); ok {
			removed++
		}
	}
	if removed > 0 {
		b.log.V(1).Info("reaped expired provisions", "count", removed)
	}
	return removed
}
