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

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("inventory", func() {
	h1 := Host{DeviceID: "H1", HostName: "h1.example", Port: 22}
	h2 := Host{DeviceID: "H2", HostName: "h2.example", Port: 22}

	It("is seeded with every known host available", func() {
		inv := newInventory([]Host{h1, h2})
		Expect(inv.size()).To(Equal(2))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			h, err := inv.take(ctx)
			Expect(err).NotTo(HaveOccurred())
			seen[h.DeviceID] = true
		}
		Expect(seen).To(HaveLen(2))
	})

	It("blocks take on an empty inventory, and is cancelable", func() {
		inv := newInventory(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := inv.take(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("offer rejects unknown hosts without side effect", func() {
		inv := newInventory([]Host{h1})
		unknown := Host{DeviceID: "H9"}
		Expect(inv.offer(unknown)).To(BeFalse())
	})

	It("offer rejects a host already available", func() {
		inv := newInventory([]Host{h1})
		Expect(inv.offer(h1)).To(BeFalse())
	})

	It("offer succeeds for a known host taken earlier", func() {
		inv := newInventory([]Host{h1})
		ctx := context.Background()
		taken, err := inv.take(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(inv.offer(taken)).To(BeTrue())
		Expect(inv.offer(taken)).To(BeFalse(), "second offer of the same host must be rejected")
	})

	It("lookup is pure and unaffected by take/offer", func() {
		inv := newInventory([]Host{h1})
		h, ok := inv.lookup("H1")
		Expect(ok).To(BeTrue())
		Expect(h).To(Equal(h1))

		_, _ = inv.take(context.Background())
		h, ok = inv.lookup("H1")
		Expect(ok).To(BeTrue())
		Expect(h).To(Equal(h1))
	})
})
