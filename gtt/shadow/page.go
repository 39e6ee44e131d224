package shadow

import (
	"container/list"
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// trackedPage is the tracking record of one guest page-table page: its
// frame, whether the write trap is armed, how often the guest has written
// it, and the out-of-sync slot it holds while untracked.
type trackedPage struct {
	gfn      uint64
	trapped  bool
	writeCnt uint32
	oos      *oosSlot
}

// A page is one shadow page-table page. It mirrors the guest page named
// by its tracking record into a shadow frame whose entries carry host
// frame numbers. The reference count counts the shadow entries of the
// level above (or root pointers) that point at it; it starts at one for
// the reference the creator is about to install.
type page struct {
	vgpu *VGPU
	kind gtt.EntryKind // table kind
	mfn  uint64

	guest    trackedPage
	refCount int

	postShadowBits [gtt.EntriesPerPage / 64]uint64
	postShadowElem *list.Element // nil while not queued
}

func (p *page) shadowEntry(index uint64) gtt.Entry {
	e := gtt.NewEntry(p.kind, p.vgpu.engine.frames.page(p.mfn)[index])
	p.vgpu.engine.pteOps.TestLargePage(&e)

	return e
}

func (p *page) setShadowEntry(index uint64, e gtt.Entry) {
	p.vgpu.engine.frames.page(p.mfn)[index] = e.Raw
}

func (p *page) guestEntry(index uint64) (gtt.Entry, error) {
	return p.vgpu.readGuestEntry(p.guest.gfn, p.kind, index)
}

func (p *page) setPostShadow(index uint64) {
	p.postShadowBits[index/64] |= 1 << (index % 64)

	if p.postShadowElem == nil {
		p.postShadowElem = p.vgpu.postShadowList.PushBack(p)
	}
}

func (p *page) testPostShadow(index uint64) bool {
	return p.postShadowBits[index/64]&(1<<(index%64)) != 0
}

func (p *page) clearPostShadow(index uint64) {
	p.postShadowBits[index/64] &^= 1 << (index % 64)
}

func (p *page) trace() PageTrace {
	return PageTrace{
		VGPU: p.vgpu.name,
		Kind: p.kind.String(),
		GFN:  p.guest.gfn,
		MFN:  p.mfn,
		Ref:  p.refCount,
	}
}

// allocPage creates a shadow page for the guest page gfn of table kind
// kind, arms the write trap, and registers it under both frame numbers.
// When the vGPU is at its shadow page cap, idle address spaces are
// reclaimed first.
func (v *VGPU) allocPage(kind gtt.EntryKind, gfn uint64) (*page, error) {
	for len(v.shadowPages) >= v.engine.maxShadowPages {
		if !v.engine.reclaimOne() {
			return nil, fmt.Errorf("%w: %d shadow pages live",
				gtt.ErrResourceExhausted, len(v.shadowPages))
		}
	}

	p := &page{
		vgpu:     v,
		kind:     kind,
		mfn:      v.engine.frames.alloc(),
		guest:    trackedPage{gfn: gfn},
		refCount: 1,
	}

	if err := v.traps.SetWriteTrap(gfn, v.handleTrappedWrite); err != nil {
		v.engine.frames.free(p.mfn)
		return nil, fmt.Errorf("arm write trap on 0x%x: %w", gfn, err)
	}
	p.guest.trapped = true

	v.trackedPages[gfn] = p
	v.shadowPages[p.mfn] = p

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosPageAlloc,
		Item:   p.trace(),
	})

	return p, nil
}

// freePage releases everything the shadow page owns. It does not touch
// the entries that point at the page; callers tear those down first.
func (v *VGPU) freePage(p *page) {
	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosPageFree,
		Item:   p.trace(),
	})

	if p.postShadowElem != nil {
		v.postShadowList.Remove(p.postShadowElem)
		p.postShadowElem = nil
	}

	if p.guest.oos != nil {
		v.detachOOSSlot(p.guest.oos)
	}

	if p.guest.trapped {
		_ = v.traps.ClearWriteTrap(p.guest.gfn)
		p.guest.trapped = false
	}

	delete(v.trackedPages, p.guest.gfn)
	delete(v.shadowPages, p.mfn)
	v.engine.frames.free(p.mfn)
}
