package shadow

import (
	"container/list"
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// An oosSlot lets one lowest-level guest page run untracked. While
// attached it holds the last-shadowed snapshot of the guest page, so
// resynchronization only touches the entries that actually changed. The
// slots are a fixed device-wide pool; when it runs dry, the least
// recently attached slot is synced back and stolen.
type oosSlot struct {
	id       int
	snapshot []uint64

	owner    *page
	poolElem *list.Element // in the engine free or use list
	vmElem   *list.Element // in the owner vGPU's oos list, nil if sync
}

// canGoOutOfSync reports whether p may drop its write trap: only
// lowest-level tables qualify, and only once the guest has written them
// at least twice.
func (v *VGPU) canGoOutOfSync(p *page) bool {
	return v.engine.oosEnabled &&
		gtt.IsPTETableKind(p.kind) &&
		p.guest.writeCnt >= 2
}

// allocOOSSlot attaches a slot to p, syncing and stealing the coldest
// attached slot if none are free.
func (v *VGPU) allocOOSSlot(p *page) error {
	e := v.engine

	var slot *oosSlot
	if e.oosFree.Len() == 0 {
		slot = e.oosUse.Front().Value.(*oosSlot)

		victim := slot.owner
		if err := victim.vgpu.setPageSync(victim); err != nil {
			return err
		}
		victim.vgpu.detachOOSSlot(slot)
	} else {
		slot = e.oosFree.Front().Value.(*oosSlot)
	}

	return v.attachOOSSlot(slot, p)
}

// attachOOSSlot snapshots the guest page into the slot and binds it.
func (v *VGPU) attachOOSSlot(slot *oosSlot, p *page) error {
	raws, err := v.readGuestPage(p.guest.gfn)
	if err != nil {
		return err
	}
	copy(slot.snapshot, raws)

	slot.owner = p
	p.guest.oos = slot

	e := v.engine
	e.oosFree.Remove(slot.poolElem)
	slot.poolElem = e.oosUse.PushBack(slot)

	e.InvokeHook(gtt.HookCtx{
		Domain: e,
		Pos:    HookPosOOSAttach,
		Item:   OOSTrace{VGPU: v.name, Slot: slot.id, GFN: p.guest.gfn},
	})

	return nil
}

// detachOOSSlot unbinds a slot and returns it to the free pool.
func (v *VGPU) detachOOSSlot(slot *oosSlot) {
	e := v.engine

	e.InvokeHook(gtt.HookCtx{
		Domain: e,
		Pos:    HookPosOOSDetach,
		Item: OOSTrace{
			VGPU: v.name,
			Slot: slot.id,
			GFN:  slot.owner.guest.gfn,
		},
	})

	slot.owner.guest.writeCnt = 0
	slot.owner.guest.oos = nil
	slot.owner = nil

	if slot.vmElem != nil {
		v.oosList.Remove(slot.vmElem)
		slot.vmElem = nil
	}

	e.oosUse.Remove(slot.poolElem)
	slot.poolElem = e.oosFree.PushBack(slot)
}

// setPageOutOfSync disarms the write trap of p and queues its slot on
// the vGPU's out-of-sync list. From here on the guest writes the page
// untracked until the next SyncOutOfSyncPages.
func (v *VGPU) setPageOutOfSync(p *page) error {
	slot := p.guest.oos

	if err := v.traps.ClearWriteTrap(p.guest.gfn); err != nil {
		return fmt.Errorf("disarm write trap on 0x%x: %w",
			p.guest.gfn, err)
	}
	p.guest.trapped = false

	slot.vmElem = v.oosList.PushBack(slot)

	return nil
}

// setPageSync rearms the write trap of p and folds the guest's
// untracked writes back into the shadow page.
func (v *VGPU) setPageSync(p *page) error {
	slot := p.guest.oos

	if err := v.traps.SetWriteTrap(p.guest.gfn, v.handleTrappedWrite); err != nil {
		return fmt.Errorf("arm write trap on 0x%x: %w",
			p.guest.gfn, err)
	}
	p.guest.trapped = true

	if slot.vmElem != nil {
		v.oosList.Remove(slot.vmElem)
		slot.vmElem = nil
	}

	return v.syncOOSSlot(slot)
}

// syncOOSSlot reshadows every entry of the slot's page whose guest value
// diverged from the snapshot, plus any slot deferred by a sub-entry
// write, then refreshes the snapshot.
func (v *VGPU) syncOOSSlot(slot *oosSlot) error {
	p := slot.owner
	ops := v.engine.pteOps

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosOOSSync,
		Item:   OOSTrace{VGPU: v.name, Slot: slot.id, GFN: p.guest.gfn},
	})

	raws, err := v.readGuestPage(p.guest.gfn)
	if err != nil {
		return err
	}

	for i, raw := range raws {
		index := uint64(i)

		deferred := p.testPostShadow(index)
		if raw == slot.snapshot[index] && !deferred {
			continue
		}
		p.clearPostShadow(index)

		ge := gtt.NewEntry(p.kind, raw)
		ops.TestLargePage(&ge)

		if err := v.handleGuestWrite(p, ge, index); err != nil {
			return err
		}
		slot.snapshot[index] = raw
	}

	p.guest.writeCnt = 0
	if p.postShadowElem != nil {
		v.postShadowList.Remove(p.postShadowElem)
		p.postShadowElem = nil
	}

	return nil
}

// SyncOutOfSyncPages rearms and resynchronizes every out-of-sync page of
// the vGPU. It must run before the guest's next workload is submitted.
func (v *VGPU) SyncOutOfSyncPages() error {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	return v.syncOutOfSyncPages()
}

func (v *VGPU) syncOutOfSyncPages() error {
	if !v.engine.oosEnabled {
		return nil
	}

	var next *list.Element
	for elem := v.oosList.Front(); elem != nil; elem = next {
		next = elem.Next()
		slot := elem.Value.(*oosSlot)

		if err := v.setPageSync(slot.owner); err != nil {
			return err
		}
	}

	return nil
}
