package shadow

import (
	"container/list"

	"github.com/sarchlab/gvt/gtt"
)

// A Builder can build shadow page-table engines.
type Builder struct {
	pteOps         gtt.PTEOps
	gmaOps         gtt.GMAOps
	ggttEntryCount uint64
	oosEnabled     bool
	oosSlotCount   int
	maxShadowPages int
}

// MakeBuilder creates a Builder with default parameters: the gen8 entry
// codec, a 1M-entry global table (4 GiB of graphics memory), out-of-sync
// shadowing enabled with 8192 slots, and 8192 shadow pages per vGPU.
func MakeBuilder() Builder {
	return Builder{
		pteOps:         gtt.Gen8PTEOps(),
		gmaOps:         gtt.Gen8GMAOps(),
		ggttEntryCount: 1 << 20,
		oosEnabled:     true,
		oosSlotCount:   8192,
		maxShadowPages: 8192,
	}
}

// WithPTEOps sets the entry codec to use.
func (b Builder) WithPTEOps(ops gtt.PTEOps) Builder {
	b.pteOps = ops
	return b
}

// WithGMAOps sets the address-index extractor to use.
func (b Builder) WithGMAOps(ops gtt.GMAOps) Builder {
	b.gmaOps = ops
	return b
}

// WithGGTTEntryCount sets the number of entries in the hardware global
// translation table.
func (b Builder) WithGGTTEntryCount(n uint64) Builder {
	b.ggttEntryCount = n
	return b
}

// WithOutOfSyncEnabled turns the out-of-sync shadowing path on or off.
func (b Builder) WithOutOfSyncEnabled(enabled bool) Builder {
	b.oosEnabled = enabled
	return b
}

// WithOutOfSyncSlotCount sets the number of preallocated out-of-sync
// slots shared by all vGPUs.
func (b Builder) WithOutOfSyncSlotCount(n int) Builder {
	b.oosSlotCount = n
	return b
}

// WithMaxShadowPages caps the number of live shadow pages per vGPU.
// Allocation beyond the cap reclaims an idle address space first.
func (b Builder) WithMaxShadowPages(n int) Builder {
	b.maxShadowPages = n
	return b
}

// Build creates an engine with the given name.
func (b Builder) Build(name string) *Engine {
	e := &Engine{
		HookableBase:   gtt.NewHookableBase(),
		name:           name,
		pteOps:         b.pteOps,
		gmaOps:         b.gmaOps,
		oosEnabled:     b.oosEnabled,
		maxShadowPages: b.maxShadowPages,
		frames:         newFrameStore(),
		hwGGTT:         make([]uint64, b.ggttEntryCount),
		oosFree:        list.New(),
		oosUse:         list.New(),
		mmLRU:          list.New(),
	}

	e.scratchGGTTMFN = e.frames.alloc()

	if b.oosEnabled {
		for i := 0; i < b.oosSlotCount; i++ {
			slot := &oosSlot{
				id:       i,
				snapshot: make([]uint64, gtt.EntriesPerPage),
			}
			slot.poolElem = e.oosFree.PushBack(slot)
		}
	}

	return e
}
