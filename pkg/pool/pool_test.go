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

package pool_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

func boolPtr(b bool) *bool { return &b }

var _ = Describe("Pool", func() {
	var h1, h2 pool.Host

	BeforeEach(func() {
		h1 = pool.Host{DeviceID: "H1", HostName: "h1.example", Port: 22}
		h2 = pool.Host{DeviceID: "H2", HostName: "h2.example", Port: 22}
	})

	It("rejects construction with no hosts", func() {
		_, err := pool.New(pool.Options{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a sub-one amount", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		_, err = p.Provision(pool.ProvisionInput{ID: "p", Amount: 0})
		Expect(err).To(HaveOccurred())
	})

	It("single-host single-request succeeds and releases cleanly", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}, ExpireProvisions: boolPtr(false)})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		out, err := p.Provision(pool.ProvisionInput{ID: "p1", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(pool.StatusRequested))

		Eventually(func() pool.Status {
			out, _ = p.Describe(out)
			return out.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))

		Expect(out.Reservations).To(HaveLen(1))
		Expect(out.Reservations[0].DeviceID).To(Equal("H1"))

		released, err := p.Release(out)
		Expect(err).NotTo(HaveOccurred())
		Expect(released).To(Equal(1))
	})

	It("is idempotent: a repeated Provision id returns the same ledger entry", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}, ExpireProvisions: boolPtr(false)})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		first, err := p.Provision(pool.ProvisionInput{ID: "p1", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		second, err := p.Provision(pool.ProvisionInput{ID: "p1", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("FIFO across requests: p2 waits for p1's host to be released", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}, ExpireProvisions: boolPtr(false)})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		out1, err := p.Provision(pool.ProvisionInput{ID: "p1", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		out2, err := p.Provision(pool.ProvisionInput{ID: "p2", Amount: 1})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() pool.Status {
			out1, _ = p.Describe(out1)
			return out1.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))

		Consistently(func() pool.Status {
			out2, _ = p.Describe(out2)
			return out2.Status
		}, 200*time.Millisecond).Should(Equal(pool.StatusProvisioning))

		_, err = p.Release(out1)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() pool.Status {
			out2, _ = p.Describe(out2)
			return out2.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))
		Expect(out2.Reservations[0].DeviceID).To(Equal("H1"))
	})

	It("TTL reaping: an unextended provision is reaped and its host returned", func() {
		p, err := pool.New(pool.Options{
			Hosts:            []pool.Host{h1},
			ProvisionTimeout: 200 * time.Millisecond,
			ReapCadence:      50 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		out, err := p.Provision(pool.ProvisionInput{ID: "p", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() pool.Status {
			out, _ = p.Describe(out)
			return out.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))

		Eventually(func() error {
			_, err := p.Describe(out)
			return err
		}, 2*time.Second, 50*time.Millisecond).Should(HaveOccurred())

		next, err := p.Provision(pool.ProvisionInput{ID: "after-reap", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() pool.Status {
			next, _ = p.Describe(next)
			return next.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))
	})

	It("Extend keeps a provision describable past its original TTL", func() {
		p, err := pool.New(pool.Options{
			Hosts:            []pool.Host{h1},
			ProvisionTimeout: 200 * time.Millisecond,
			ReapCadence:      50 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		out, _ := p.Provision(pool.ProvisionInput{ID: "p", Amount: 1})
		Eventually(func() pool.Status {
			out, _ = p.Describe(out)
			return out.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))

		Expect(p.Extend(out)).NotTo(HaveOccurred())

		Consistently(func() error {
			_, err := p.Describe(out)
			return err
		}, 300*time.Millisecond, 20*time.Millisecond).ShouldNot(HaveOccurred())
	})

	It("Exchange resolves a succeeded reservation's device to its host", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}, ExpireProvisions: boolPtr(false)})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		out, _ := p.Provision(pool.ProvisionInput{ID: "p", Amount: 1})
		Eventually(func() pool.Status {
			out, _ = p.Describe(out)
			return out.Status
		}, time.Second).Should(Equal(pool.StatusSucceeded))

		host, err := p.Exchange(out.Reservations[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(host).To(Equal(h1))
	})

	It("amount greater than known hosts blocks, and later requests wait behind it", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1, h2}, ExpireProvisions: boolPtr(false)})
		Expect(err).NotTo(HaveOccurred())
		defer p.Close()

		big, err := p.Provision(pool.ProvisionInput{ID: "big", Amount: 3})
		Expect(err).NotTo(HaveOccurred())

		Consistently(func() pool.Status {
			big, _ = p.Describe(big)
			return big.Status
		}, 200*time.Millisecond).Should(Equal(pool.StatusProvisioning))

		other, err := p.Provision(pool.ProvisionInput{ID: "other", Amount: 1})
		Expect(err).NotTo(HaveOccurred())
		Consistently(func() pool.Status {
			other, _ = p.Describe(other)
			return other.Status
		}, 200*time.Millisecond).Should(Equal(pool.StatusRequested))
	})

	It("fails every method after Close, idempotently", func() {
		p, err := pool.New(pool.Options{Hosts: []pool.Host{h1}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).NotTo(HaveOccurred())
		Expect(p.Close()).NotTo(HaveOccurred())

		_, err = p.Provision(pool.ProvisionInput{ID: "p", Amount: 1})
		Expect(err).To(HaveOccurred())
		_, err = p.Describe(pool.ProvisionOutput{ID: "p"})
		Expect(err).To(HaveOccurred())
		_, err = p.Exchange(pool.Reservation{DeviceID: "H1"})
		Expect(err).To(HaveOccurred())
		_, err = p.Release(pool.ProvisionOutput{ID: "p"})
		Expect(err).To(HaveOccurred())
		Expect(p.Extend(pool.ProvisionOutput{ID: "p"})).To(HaveOccurred())
	})
})
