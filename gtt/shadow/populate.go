package shadow

import (
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// populatePageByGuestEntry returns the shadow page backing the guest
// table that we points at, building it (and everything below it) if this
// is the first reference. Every additional reference bumps the refcount.
func (v *VGPU) populatePageByGuestEntry(
	tr *translator,
	we gtt.Entry,
) (*page, error) {
	next := gtt.NextTableKind(we.Kind)
	if !gtt.IsTableKind(next) {
		return nil, fmt.Errorf("%w: entry kind %s points at no table",
			gtt.ErrUnsupportedEntryShape, we.Kind)
	}

	gfn := v.engine.pteOps.Frame(we)

	if p, ok := v.trackedPages[gfn]; ok {
		v.retainPage(p)
		return p, nil
	}

	p, err := v.allocPage(next, gfn)
	if err != nil {
		return nil, err
	}

	if err := v.populatePage(tr, p); err != nil {
		return nil, err
	}

	return p, nil
}

// populatePage fills a freshly allocated shadow page from its guest page.
// The lowest level translates frames entry by entry over one bulk read of
// the guest page; higher levels recurse through populatePageByGuestEntry
// and plant the child's shadow frame.
func (v *VGPU) populatePage(tr *translator, p *page) error {
	ops := v.engine.pteOps

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosPageBorn,
		Item:   p.trace(),
	})

	if gtt.IsPTETableKind(p.kind) {
		raws, err := v.readGuestPage(p.guest.gfn)
		if err != nil {
			return err
		}

		for i, raw := range raws {
			ge := gtt.NewEntry(p.kind, raw)
			ops.TestLargePage(&ge)

			if !ops.TestPresent(ge) {
				continue
			}

			se, err := tr.shadowEntry(ge)
			if err != nil {
				return err
			}
			p.setShadowEntry(uint64(i), se)
		}

		return nil
	}

	for i := uint64(0); i < gtt.EntriesPerPage; i++ {
		ge, err := p.guestEntry(i)
		if err != nil {
			return err
		}
		if !ops.TestPresent(ge) {
			continue
		}

		if !gtt.IsTableKind(gtt.NextTableKind(ge.Kind)) {
			return fmt.Errorf("%w: large page at %s index %d",
				gtt.ErrUnsupportedEntryShape, p.kind, i)
		}

		child, err := v.populatePageByGuestEntry(tr, ge)
		if err != nil {
			return err
		}

		se := ge
		ops.SetFrame(&se, child.mfn)
		p.setShadowEntry(i, se)
	}

	return nil
}

// retainPage adds a reference to an existing shadow page.
func (v *VGPU) retainPage(p *page) {
	p.refCount++
}

// releasePage drops one reference. At zero the page dies: every present
// shadow entry that leads to a deeper shadow page releases it in turn,
// then the page itself is freed. Slots already torn down point at scratch
// frames and are skipped by releaseByShadowEntry.
func (v *VGPU) releasePage(p *page) error {
	p.refCount--
	if p.refCount > 0 {
		return nil
	}

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosPageDie,
		Item:   p.trace(),
	})

	if !gtt.IsPTETableKind(p.kind) {
		ops := v.engine.pteOps

		for i := uint64(0); i < gtt.EntriesPerPage; i++ {
			se := p.shadowEntry(i)
			if !ops.TestPresent(se) {
				continue
			}

			if !gtt.IsTableKind(gtt.NextTableKind(se.Kind)) {
				return fmt.Errorf(
					"%w: large page at %s index %d",
					gtt.ErrUnsupportedEntryShape, p.kind, i)
			}

			if err := v.releaseByShadowEntry(se); err != nil {
				return err
			}
		}
	}

	v.freePage(p)

	return nil
}

// releaseByShadowEntry releases the shadow page a shadow entry points
// at. Entries that point at a scratch frame reference no shadow page and
// terminate the walk.
func (v *VGPU) releaseByShadowEntry(se gtt.Entry) error {
	if !gtt.IsTableKind(gtt.NextTableKind(se.Kind)) {
		return fmt.Errorf("%w: entry kind %s points at no table",
			gtt.ErrUnsupportedEntryShape, se.Kind)
	}

	mfn := v.engine.pteOps.Frame(se)

	if !gtt.IsRootKind(se.Kind) {
		owner := gtt.OwnerTableKind(se.Kind)
		if mfn == v.scratch.frame(owner) {
			return nil
		}
	}

	p, ok := v.shadowPages[mfn]
	if !ok {
		return fmt.Errorf("%w: shadow page for frame 0x%x",
			gtt.ErrNotFound, mfn)
	}

	return v.releasePage(p)
}
