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

package ec2describe_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lgtm-migrator/device-pool/pkg/backend"
	"github.com/lgtm-migrator/device-pool/pkg/backend/ec2describe"
	"github.com/lgtm-migrator/device-pool/pkg/backend/ec2describe/fake"
	"github.com/lgtm-migrator/device-pool/pkg/pool"
)

func TestEC2Describe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EC2Describe Backend")
}

var _ = Describe("EC2Describe", func() {
	var api *fake.EC2API

	BeforeEach(func() {
		api = fake.New()
	})

	It("exchanges a reservation for its described public address", func() {
		api.SetInstance("i-1", 16, "203.0.113.5")
		expire := false
		b, err := ec2describe.New(ec2describe.Config{
			InstanceIDs:      []string{"i-1"},
			EC2API:           api,
			ExpireProvisions: &expire,
		})
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()

		out, _ := b.Provision(backend.ProvisionInput{ID: "p", Amount: 1})
		Eventually(func() backend.Status {
			out, _ = b.Describe(out)
			return out.Status
		}, time.Second).Should(Equal(backend.StatusSucceeded))

		host, err := b.Exchange(out.Reservations[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(host.HostName).To(Equal("203.0.113.5"))
		Expect(host.Port).To(Equal(22))
	})

	It("fails Exchange with a ReservationError when the instance is absent", func() {
		expire := false
		b, err := ec2describe.New(ec2describe.Config{
			InstanceIDs:      []string{"i-1"},
			EC2API:           api,
			ExpireProvisions: &expire,
		})
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()

		_, err = b.Exchange(backend.Reservation{DeviceID: "i-1"})
		Expect(err).To(BeAssignableToTypeOf(&pool.ReservationError{}))
	})

	It("maps EC2 state codes to reservation statuses (scenario 6)", func() {
		Expect(ec2describe.StateCodeStatus(16, backend.StatusProvisioning)).To(Equal(backend.StatusSucceeded))
		Expect(ec2describe.StateCodeStatus(48, backend.StatusProvisioning)).To(Equal(backend.StatusFailed))
		Expect(ec2describe.StateCodeStatus(80, backend.StatusProvisioning)).To(Equal(backend.StatusFailed))
		Expect(ec2describe.StateCodeStatus(0, backend.StatusProvisioning)).To(Equal(backend.StatusProvisioning))
	})

	It("caches describe results to avoid refetching on every call", func() {
		api.SetInstance("i-1", 16, "203.0.113.5")
		expire := false
		b, err := ec2describe.New(ec2describe.Config{
			InstanceIDs:      []string{"i-1"},
			EC2API:           api,
			ExpireProvisions: &expire,
			DescribeCacheTTL: time.Minute,
		})
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()

		_, _ = b.Exchange(backend.Reservation{DeviceID: "i-1"})
		_, _ = b.Exchange(backend.Reservation{DeviceID: "i-1"})
		Expect(api.CallCount).To(Equal(1))
	})
})
