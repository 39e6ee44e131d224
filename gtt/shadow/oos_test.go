package shadow

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Out-Of-Sync Cache", func() {
	var (
		ctrl *gomock.Controller
		tb   *testbed
		t    fourLevelTable
	)

	makeTable := func() {
		t = tb.buildFourLevelTable()
		_, err := tb.vgpu.CreatePPGTTMM(4, t.roots)
		Expect(err).ToNot(HaveOccurred())
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	Context("with the default configuration", func() {
		BeforeEach(func() {
			tb = makeDefaultTestbed(ctrl)
			makeTable()
		})

		It("should keep a once-written page tracked", func() {
			Expect(tb.guestWriteEntry(t.pteGFN, 8,
				entryRaw(0x300))).To(Succeed())

			Expect(tb.handlers).To(HaveKey(t.pteGFN))
			Expect(tb.vgpu.oosList.Len()).To(Equal(0))
		})

		It("should let a twice-written leaf page run untracked", func() {
			Expect(tb.guestWriteEntry(t.pteGFN, 8,
				entryRaw(0x300))).To(Succeed())
			Expect(tb.guestWriteEntry(t.pteGFN, 9,
				entryRaw(0x301))).To(Succeed())

			Expect(tb.handlers).ToNot(HaveKey(t.pteGFN))
			Expect(tb.vgpu.oosList.Len()).To(Equal(1))

			p := tb.vgpu.trackedPages[t.pteGFN]
			Expect(p.guest.oos).ToNot(BeNil())
		})

		It("should never let an inner page run untracked", func() {
			newPT := uint64(0x110)
			tb.ram.setEntry(newPT, 0, entryRaw(0x300))

			Expect(tb.guestWriteEntry(t.pdeGFN, 5,
				entryRaw(newPT))).To(Succeed())
			Expect(tb.guestWriteEntry(t.pdeGFN, 5, 0)).To(Succeed())
			Expect(tb.guestWriteEntry(t.pdeGFN, 6, 0)).To(Succeed())

			Expect(tb.handlers).To(HaveKey(t.pdeGFN))
			Expect(tb.vgpu.oosList.Len()).To(Equal(0))
		})

		It("should fold untracked writes back in on sync", func() {
			Expect(tb.guestWriteEntry(t.pteGFN, 8,
				entryRaw(0x300))).To(Succeed())
			Expect(tb.guestWriteEntry(t.pteGFN, 9,
				entryRaw(0x301))).To(Succeed())

			// The page is untracked now; these stores land in guest
			// memory without the engine noticing.
			tb.ram.setEntry(t.pteGFN, 10, entryRaw(0x302))
			tb.ram.setEntry(t.pteGFN, 9, 0)

			Expect(tb.shadowRaw(t.pteGFN, 10)).To(Equal(uint64(0)))

			Expect(tb.vgpu.SyncOutOfSyncPages()).To(Succeed())

			Expect(tb.shadowRaw(t.pteGFN, 10)).
				To(Equal(entryRaw(0x302 + mfnBias)))
			Expect(tb.shadowRaw(t.pteGFN, 9)).ToNot(
				Equal(entryRaw(0x301 + mfnBias)))

			Expect(tb.handlers).To(HaveKey(t.pteGFN))
			Expect(tb.vgpu.oosList.Len()).To(Equal(0))

			p := tb.vgpu.trackedPages[t.pteGFN]
			Expect(p.guest.writeCnt).To(Equal(uint32(0)))
		})

		It("should leave entries matching the snapshot alone on sync",
			func() {
				Expect(tb.guestWriteEntry(t.pteGFN, 8,
					entryRaw(0x300))).To(Succeed())
				Expect(tb.guestWriteEntry(t.pteGFN, 9,
					entryRaw(0x301))).To(Succeed())

				before := tb.shadowRaw(t.pteGFN, t.ptIndex)

				Expect(tb.vgpu.SyncOutOfSyncPages()).To(Succeed())

				Expect(tb.shadowRaw(t.pteGFN, t.ptIndex)).
					To(Equal(before))
			})

		It("should release the slot when the page dies", func() {
			Expect(tb.guestWriteEntry(t.pteGFN, 8,
				entryRaw(0x300))).To(Succeed())
			Expect(tb.guestWriteEntry(t.pteGFN, 9,
				entryRaw(0x301))).To(Succeed())

			Expect(tb.engine.oosUse.Len()).To(Equal(1))

			Expect(tb.guestWriteEntry(t.pdeGFN, 0, 0)).To(Succeed())

			Expect(tb.engine.oosUse.Len()).To(Equal(0))
			Expect(tb.vgpu.oosList.Len()).To(Equal(0))
		})
	})

	Context("with out-of-sync shadowing disabled", func() {
		BeforeEach(func() {
			tb = makeTestbed(ctrl, MakeBuilder().
				WithGGTTEntryCount(1<<16).
				WithOutOfSyncEnabled(false))
			makeTable()
		})

		It("should keep every page tracked", func() {
			for i := uint64(0); i < 8; i++ {
				Expect(tb.guestWriteEntry(t.pteGFN, 20+i,
					entryRaw(0x300+i))).To(Succeed())
			}

			Expect(tb.handlers).To(HaveKey(t.pteGFN))
			Expect(tb.vgpu.oosList.Len()).To(Equal(0))
		})
	})

	Context("with a single slot", func() {
		BeforeEach(func() {
			tb = makeTestbed(ctrl, MakeBuilder().
				WithGGTTEntryCount(1<<16).
				WithOutOfSyncSlotCount(1))
			makeTable()
		})

		It("should steal the coldest slot when the pool runs dry",
			func() {
				otherPT := uint64(0x110)
				tb.ram.setEntry(otherPT, 0, entryRaw(0x300))
				Expect(tb.guestWriteEntry(t.pdeGFN, 5,
					entryRaw(otherPT))).To(Succeed())

				Expect(tb.guestWriteEntry(t.pteGFN, 8,
					entryRaw(0x301))).To(Succeed())
				Expect(tb.guestWriteEntry(t.pteGFN, 9,
					entryRaw(0x302))).To(Succeed())
				Expect(tb.handlers).ToNot(HaveKey(t.pteGFN))

				Expect(tb.guestWriteEntry(otherPT, 1,
					entryRaw(0x303))).To(Succeed())
				Expect(tb.guestWriteEntry(otherPT, 2,
					entryRaw(0x304))).To(Succeed())

				// The first page got its trap back and lost the
				// slot to the second one.
				Expect(tb.handlers).To(HaveKey(t.pteGFN))
				Expect(tb.handlers).ToNot(HaveKey(otherPT))

				first := tb.vgpu.trackedPages[t.pteGFN]
				second := tb.vgpu.trackedPages[otherPT]
				Expect(first.guest.oos).To(BeNil())
				Expect(second.guest.oos).ToNot(BeNil())
			})
	})
})
