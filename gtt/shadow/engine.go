package shadow

import (
	"container/list"
	"sync"

	"github.com/sarchlab/gvt/gtt"
)

// An Engine is the device-level shadow page-table engine. It owns the
// shadow frame store, the hardware global translation table, the
// out-of-sync slot pool, and the reclamation LRU shared by all vGPUs.
//
// One mutex serializes every structural mutation of the shadow trees.
// Trap callbacks, submission-time flushes, and emulated table accesses all
// take it; GMA translation only reads and takes the read side.
type Engine struct {
	*gtt.HookableBase

	name string
	mu   sync.RWMutex

	pteOps gtt.PTEOps
	gmaOps gtt.GMAOps

	oosEnabled     bool
	maxShadowPages int

	frames *frameStore

	hwGGTT         []uint64
	scratchGGTTMFN uint64

	oosFree *list.List // free *oosSlot, reused from the front
	oosUse  *list.List // attached *oosSlot, least recently attached first

	mmLRU *list.List // shadowed PPGTT *MM, reclaim candidates at the front

	vgpus []*VGPU
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// GGTTEntryCount returns the number of entries in the hardware global
// translation table.
func (e *Engine) GGTTEntryCount() uint64 {
	return uint64(len(e.hwGGTT))
}

// reclaimOne invalidates the shadow table of the least recently pinned,
// currently unpinned PPGTT address space, device wide. It reports whether
// anything was reclaimed. Callers hold the engine lock.
func (e *Engine) reclaimOne() bool {
	for elem := e.mmLRU.Front(); elem != nil; elem = elem.Next() {
		mm := elem.Value.(*MM)

		if mm.pinCount > 0 {
			continue
		}

		e.mmLRU.Remove(elem)
		mm.lruElem = nil
		mm.invalidate()

		e.InvokeHook(gtt.HookCtx{
			Domain: e,
			Pos:    HookPosMMReclaim,
			Item: MMTrace{
				VGPU:   mm.vgpu.name,
				ID:     mm.id,
				Levels: mm.levels,
			},
		})

		return true
	}

	return false
}

// Stats is a point-in-time snapshot of engine occupancy, served by the
// monitor.
type Stats struct {
	Name           string
	ShadowFrames   int
	OOSSlotsFree   int
	OOSSlotsInUse  int
	ReclaimableMMs int
	VGPUs          []VGPUStats
}

// VGPUStats is the per-vGPU slice of Stats.
type VGPUStats struct {
	Name         string
	ShadowPages  int
	TrackedPages int
	OutOfSync    int
	PostShadow   int
	MMs          int
}

// CollectStats snapshots the engine state.
func (e *Engine) CollectStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Name:           e.name,
		ShadowFrames:   len(e.frames.pages),
		OOSSlotsFree:   e.oosFree.Len(),
		OOSSlotsInUse:  e.oosUse.Len(),
		ReclaimableMMs: e.mmLRU.Len(),
	}

	for _, v := range e.vgpus {
		s.VGPUs = append(s.VGPUs, VGPUStats{
			Name:         v.name,
			ShadowPages:  len(v.shadowPages),
			TrackedPages: len(v.trackedPages),
			OutOfSync:    v.oosList.Len(),
			PostShadow:   v.postShadowList.Len(),
			MMs:          v.mmList.Len(),
		})
	}

	return s
}

func (e *Engine) removeVGPU(v *VGPU) {
	for i, o := range e.vgpus {
		if o == v {
			e.vgpus = append(e.vgpus[:i], e.vgpus[i+1:]...)
			return
		}
	}
}
