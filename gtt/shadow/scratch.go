package shadow

import "github.com/sarchlab/gvt/gtt"

// scratchTree is a vGPU's ladder of scratch table pages. frame(k) is the
// page a non-present entry in a table of kind k points at: a zeroed data
// page for the lowest level, and above that a table fully filled with
// entries leading down to it. A walk that enters the ladder at any level
// always lands on the zeroed page.
type scratchTree struct {
	frames [gtt.KindPML4Table - gtt.KindPTETable + 1]uint64
}

func (t *scratchTree) frame(k gtt.EntryKind) uint64 {
	return t.frames[k-gtt.KindPTETable]
}

// build allocates and fills the ladder, lowest level first. The fill
// mirrors what the host driver programs for its own scratch pages:
// present and writable, with the cached page attribute on the entries
// that stand in for data-page mappings.
func (t *scratchTree) build(frames *frameStore, ops gtt.PTEOps) {
	for k := gtt.KindPTETable; k <= gtt.KindPML4Table; k++ {
		mfn := frames.alloc()
		t.frames[k-gtt.KindPTETable] = mfn

		if k == gtt.KindPTETable {
			// The lowest scratch page stays zeroed; it is the data
			// page every scratch walk resolves to.
			continue
		}

		e := gtt.NewEntry(gtt.EntryKindOf(k-1),
			gtt.EntryFlagPresent|gtt.EntryFlagRW)
		if k == gtt.KindPDETable {
			e.Raw |= gtt.EntryFlagPATCache
		}
		ops.SetFrame(&e, t.frame(k-1))

		slots := frames.page(mfn)
		for i := range slots {
			slots[i] = e.Raw
		}
	}
}

func (t *scratchTree) release(frames *frameStore) {
	for i, mfn := range t.frames {
		if mfn != 0 {
			frames.free(mfn)
			t.frames[i] = 0
		}
	}
}
