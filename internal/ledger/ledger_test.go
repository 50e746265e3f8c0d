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

package ledger_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lgtm-migrator/device-pool/internal/ledger"
)

func TestLedger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ledger")
}

// payload is a minimal Cloner used to exercise the ledger without dragging
// in pkg/pool's ProvisionOutput.
type payload struct {
	status string
	tags   []string
}

func (p payload) Clone() payload {
	out := p
	out.tags = append([]string(nil), p.tags...)
	return out
}

var _ = Describe("Ledger", func() {
	It("is idempotent on repeated GetOrInsert", func() {
		l := ledger.New[payload]()
		first, inserted := l.GetOrInsert("p1", payload{status: "REQUESTED"}, time.Hour)
		Expect(inserted).To(BeTrue())
		Expect(first.Payload.status).To(Equal("REQUESTED"))

		second, inserted := l.GetOrInsert("p1", payload{status: "OTHER"}, time.Hour)
		Expect(inserted).To(BeFalse())
		Expect(second.Payload).To(Equal(first.Payload))
	})

	It("applies transitions and preserves ExpiresAt", func() {
		l := ledger.New[payload]()
		entry, _ := l.GetOrInsert("p1", payload{status: "REQUESTED"}, time.Hour)
		before := entry.ExpiresAt

		updated, ok := l.Transition("p1", func(p payload) payload {
			p.status = "PROVISIONING"
			return p
		})
		Expect(ok).To(BeTrue())
		Expect(updated.Payload.status).To(Equal("PROVISIONING"))
		Expect(updated.ExpiresAt).To(Equal(before))
	})

	It("no-ops Transition and Extend on an absent id", func() {
		l := ledger.New[payload]()
		_, ok := l.Transition("missing", func(p payload) payload { return p })
		Expect(ok).To(BeFalse())
		l.Extend("missing", time.Hour) // must not panic
	})

	It("reports ErrNotFound on Get of an absent id", func() {
		l := ledger.New[payload]()
		_, err := l.Get("missing")
		Expect(err).To(MatchError(ledger.ErrNotFound))
	})

	It("Extend increases ExpiresAt by delta", func() {
		l := ledger.New[payload]()
		entry, _ := l.GetOrInsert("p1", payload{}, time.Second)
		l.Extend("p1", time.Hour)
		after, _ := l.Get("p1")
		Expect(after.ExpiresAt).To(BeTemporally("==", entry.ExpiresAt.Add(time.Hour)))
	})

	It("Expired returns entries before now without removing them", func() {
		l := ledger.New[payload]()
		l.GetOrInsert("old", payload{}, -time.Minute)
		l.GetOrInsert("fresh", payload{}, time.Hour)

		exp := l.Expired(time.Now())
		Expect(exp).To(HaveLen(1))
		Expect(exp[0].ID).To(Equal("old"))

		_, err := l.Get("old")
		Expect(err).NotTo(HaveOccurred())
	})

	It("Remove deletes and returns the entry", func() {
		l := ledger.New[payload]()
		l.GetOrInsert("p1", payload{status: "REQUESTED"}, time.Hour)
		entry, ok := l.Remove("p1")
		Expect(ok).To(BeTrue())
		Expect(entry.Payload.status).To(Equal("REQUESTED"))

		_, ok = l.Remove("p1")
		Expect(ok).To(BeFalse())
	})

	It("snapshots cannot mutate ledger state through a shared slice", func() {
		l := ledger.New[payload]()
		snap, _ := l.GetOrInsert("p1", payload{tags: []string{"a"}}, time.Hour)
		snap.Payload.tags = append(snap.Payload.tags, "b")

		fresh, _ := l.Get("p1")
		Expect(fresh.Payload.tags).To(Equal([]string{"a"}))
	})
})
