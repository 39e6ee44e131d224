package shadow

import (
	"container/list"
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// handleTrappedWrite is the write-trap callback for every tracked guest
// page of this vGPU. The registrar delivers the written bytes before the
// guest sees them land; the engine writes them through to guest memory
// itself and then reshadows from the updated entry.
func (v *VGPU) handleTrappedWrite(gpa uint64, data []byte) error {
	if len(data) != 4 && len(data) != gtt.EntrySize {
		return fmt.Errorf("%w: %d-byte table write",
			gtt.ErrUnsupportedEntryShape, len(data))
	}

	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	p, ok := v.trackedPages[gpa>>gtt.PageShift]
	if !ok {
		return fmt.Errorf("%w: no tracked page at gpa 0x%x",
			gtt.ErrNotFound, gpa)
	}

	return v.handleGuestWriteBytes(p, gpa, data)
}

func (v *VGPU) handleGuestWriteBytes(p *page, gpa uint64, data []byte) error {
	index := (gpa & (gtt.PageSize - 1)) >> gtt.EntryShift

	if err := v.mem.WriteGPA(gpa, data); err != nil {
		return fmt.Errorf("write through guest entry: %w", err)
	}

	we, err := p.guestEntry(index)
	if err != nil {
		return err
	}

	if len(data) == gtt.EntrySize {
		if err := v.handleGuestWrite(p, we, index); err != nil {
			return err
		}
	} else {
		// A sub-entry write leaves the guest entry half old, half
		// new. Tear the slot down now and reshadow it from the final
		// value at flush time.
		if !p.testPostShadow(index) {
			se := p.shadowEntry(index)
			if err := v.handleGuestEntryRemoval(p, se, index); err != nil {
				return err
			}
			v.engine.pteOps.SetFrame(&se, v.scratch.frame(p.kind))
			p.setShadowEntry(index, se)
		}
		p.setPostShadow(index)
	}

	if !v.engine.oosEnabled {
		return nil
	}

	p.guest.writeCnt++

	if p.guest.oos != nil {
		p.guest.oos.snapshot[index] = we.Raw
	}

	if v.canGoOutOfSync(p) {
		if p.guest.oos == nil {
			if err := v.allocOOSSlot(p); err != nil {
				return err
			}
		}
		if err := v.setPageOutOfSync(p); err != nil {
			return err
		}
	}

	return nil
}

// handleGuestWrite applies one whole-entry guest write to the shadow
// slot. The new mapping goes in before the old one comes out, so the
// table stays valid for hardware across the change; a transition to
// non-present leaves the slot pointing at the scratch frame.
func (v *VGPU) handleGuestWrite(
	p *page,
	we gtt.Entry,
	index uint64,
) error {
	ops := v.engine.pteOps

	newPresent := ops.TestPresent(we)
	se := p.shadowEntry(index)

	if newPresent {
		if err := v.handleGuestEntryAdd(p, we, index); err != nil {
			return err
		}
	}

	if err := v.handleGuestEntryRemoval(p, se, index); err != nil {
		return err
	}

	if !newPresent {
		ops.SetFrame(&se, v.scratch.frame(p.kind))
		p.setShadowEntry(index, se)
	}

	return nil
}

// handleGuestEntryAdd shadows a newly present guest entry into the slot.
func (v *VGPU) handleGuestEntryAdd(
	p *page,
	we gtt.Entry,
	index uint64,
) error {
	ops := v.engine.pteOps

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosEntryAdd,
		Item: EntryTrace{
			VGPU:  v.name,
			Kind:  p.kind.String(),
			GFN:   p.guest.gfn,
			Index: index,
			Raw:   we.Raw,
		},
	})

	if gtt.IsTableKind(gtt.NextTableKind(we.Kind)) {
		child, err := v.populatePageByGuestEntry(v.newTranslator(), we)
		if err != nil {
			return err
		}

		se := we
		ops.SetFrame(&se, child.mfn)
		p.setShadowEntry(index, se)

		return nil
	}

	if !gtt.IsPTETableKind(p.kind) {
		return fmt.Errorf("%w: large page at %s index %d",
			gtt.ErrUnsupportedEntryShape, p.kind, index)
	}

	se, err := v.newTranslator().shadowEntry(we)
	if err != nil {
		return err
	}
	p.setShadowEntry(index, se)

	return nil
}

// handleGuestEntryRemoval undoes the shadow state behind the old shadow
// entry of a slot being overwritten. Non-present slots and slots already
// parked on a scratch frame need nothing.
func (v *VGPU) handleGuestEntryRemoval(
	p *page,
	se gtt.Entry,
	index uint64,
) error {
	ops := v.engine.pteOps

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosEntryRemove,
		Item: EntryTrace{
			VGPU:  v.name,
			Kind:  p.kind.String(),
			GFN:   p.guest.gfn,
			Index: index,
			Raw:   se.Raw,
		},
	})

	if !ops.TestPresent(se) {
		return nil
	}

	if ops.Frame(se) == v.scratch.frame(p.kind) {
		return nil
	}

	if gtt.IsTableKind(gtt.NextTableKind(se.Kind)) {
		child, ok := v.shadowPages[ops.Frame(se)]
		if !ok {
			return fmt.Errorf("%w: shadow page for frame 0x%x",
				gtt.ErrNotFound, ops.Frame(se))
		}

		return v.releasePage(child)
	}

	return nil
}

// FlushPostShadow reshadows every slot deferred by sub-entry writes. It
// must run before the guest's next workload is submitted; until then the
// deferred slots point at scratch frames.
func (v *VGPU) FlushPostShadow() error {
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	return v.flushPostShadow()
}

func (v *VGPU) flushPostShadow() error {
	var next *list.Element
	for elem := v.postShadowList.Front(); elem != nil; elem = next {
		next = elem.Next()
		p := elem.Value.(*page)

		for index := uint64(0); index < gtt.EntriesPerPage; index++ {
			if !p.testPostShadow(index) {
				continue
			}

			ge, err := p.guestEntry(index)
			if err != nil {
				return err
			}

			if err := v.handleGuestWrite(p, ge, index); err != nil {
				return err
			}
			p.clearPostShadow(index)
		}

		v.postShadowList.Remove(elem)
		p.postShadowElem = nil
	}

	return nil
}
