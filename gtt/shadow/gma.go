package shadow

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// Translate resolves a graphics memory address through the address space
// to a host physical address. The walk runs over the shadow tables, which
// are the authority for host frames; the page-offset bits pass through.
func (m *MM) Translate(gma uint64) (uint64, error) {
	v := m.vgpu
	e := v.engine

	e.mu.RLock()
	defer e.mu.RUnlock()

	var (
		hpa uint64
		err error
	)

	if m.kind == gtt.KindGGTTPTE {
		hpa, err = m.translateGGTT(gma)
	} else {
		hpa, err = m.translatePPGTT(gma)
	}
	if err != nil {
		return 0, err
	}

	e.InvokeHook(gtt.HookCtx{
		Domain: e,
		Pos:    HookPosTranslate,
		Item:   TranslateTrace{VGPU: v.name, GMA: gma, HPA: hpa},
	})

	return hpa, nil
}

func (m *MM) translateGGTT(gma uint64) (uint64, error) {
	v := m.vgpu
	e := v.engine

	if !v.gmaValid(gma) {
		return 0, fmt.Errorf("%w: gma 0x%x", gtt.ErrInvalidRange, gma)
	}

	index := e.gmaOps.GGTTIndex(gma)
	he := gtt.NewEntry(gtt.KindGGTTPTE, e.hwGGTT[index])

	return e.pteOps.Frame(he)<<gtt.PageShift +
		gma&(gtt.PageSize-1), nil
}

func (m *MM) translatePPGTT(gma uint64) (uint64, error) {
	v := m.vgpu
	e := v.engine
	ops := e.pteOps
	gmaOps := e.gmaOps

	if !m.shadowed {
		return 0, fmt.Errorf("%w: address space %s has no shadow",
			gtt.ErrNotFound, m.id)
	}

	var (
		root    uint64
		indices []uint64
	)

	switch m.levels {
	case 4:
		root = m.shadowRoots[0]
		indices = []uint64{
			gmaOps.PML4Index(gma),
			gmaOps.L4PDPIndex(gma),
			gmaOps.PDEIndex(gma),
			gmaOps.PTEIndex(gma),
		}
	case 3:
		root = m.shadowRoots[gmaOps.L3PDPIndex(gma)]
		indices = []uint64{
			gmaOps.PDEIndex(gma),
			gmaOps.PTEIndex(gma),
		}
	case 2:
		root = m.shadowRoots[gmaOps.PDEIndex(gma)]
		indices = []uint64{
			gmaOps.PTEIndex(gma),
		}
	}

	cur := gtt.NewEntry(m.kind, root)
	if !ops.TestPresent(cur) {
		return 0, fmt.Errorf("%w: gma 0x%x", gtt.ErrNotPresent, gma)
	}

	for _, index := range indices {
		p, ok := v.shadowPages[ops.Frame(cur)]
		if !ok {
			return 0, fmt.Errorf("%w: shadow page for frame 0x%x",
				gtt.ErrNotFound, ops.Frame(cur))
		}

		// Slots the synchronizer tore down park on the scratch frame
		// with their old flags intact. They are absent mappings, not
		// pages the walk may resolve to or descend into.
		cur = p.shadowEntry(index)
		if !ops.TestPresent(cur) ||
			ops.Frame(cur) == v.scratch.frame(p.kind) {
			return 0, fmt.Errorf("%w: gma 0x%x",
				gtt.ErrNotPresent, gma)
		}
	}

	return ops.Frame(cur)<<gtt.PageShift + gma&(gtt.PageSize-1), nil
}

// GMAValid reports whether gma falls in the vGPU's aperture or hidden
// graphics memory range.
func (v *VGPU) GMAValid(gma uint64) bool {
	return v.gmaValid(gma)
}

// GGTTIndexForGMA converts a graphics memory address into its global
// table index, validating the address against the vGPU's ranges.
func (v *VGPU) GGTTIndexForGMA(gma uint64) (uint64, error) {
	if !v.gmaValid(gma) {
		return 0, fmt.Errorf("%w: gma 0x%x", gtt.ErrInvalidRange, gma)
	}

	return v.engine.gmaOps.GGTTIndex(gma), nil
}

// GMAForGGTTIndex converts a global table index back into the graphics
// memory address of its page, validating it against the vGPU's ranges.
func (v *VGPU) GMAForGGTTIndex(index uint64) (uint64, error) {
	gma := index << gtt.PageShift
	if !v.gmaValid(gma) {
		return 0, fmt.Errorf("%w: global table index 0x%x",
			gtt.ErrInvalidRange, index)
	}

	return gma, nil
}

// ReadGGTT emulates a guest read of the global table at byte offset off.
// Reads return the guest's own view, 4 or 8 bytes wide.
func (v *VGPU) ReadGGTT(off uint64, bytes int) (uint64, error) {
	if bytes != 4 && bytes != 8 {
		return 0, fmt.Errorf("%w: %d-byte global table read",
			gtt.ErrUnsupportedEntryShape, bytes)
	}

	v.engine.mu.RLock()
	defer v.engine.mu.RUnlock()

	index := off >> gtt.EntryShift
	if index >= uint64(len(v.ggttMM.guestRoots)) {
		return 0, fmt.Errorf("%w: global table offset 0x%x",
			gtt.ErrInvalidRange, off)
	}

	raw := v.ggttMM.guestRoots[index]

	var buf [gtt.EntrySize]byte
	binary.LittleEndian.PutUint64(buf[:], raw)

	shift := off & (gtt.EntrySize - 1)
	if bytes == 4 {
		return uint64(binary.LittleEndian.Uint32(buf[shift:])), nil
	}

	return raw, nil
}

// WriteGGTT emulates a guest write of the global table at byte offset
// off. A 4-byte write merges into the stored entry. Writes outside the
// vGPU's ranges are silently dropped; the guest may touch the whole
// table when ballooning. A present entry whose frame cannot be resolved
// lands on the device scratch frame instead of failing the write.
func (v *VGPU) WriteGGTT(off uint64, data []byte) error {
	if len(data) != 4 && len(data) != gtt.EntrySize {
		return fmt.Errorf("%w: %d-byte global table write",
			gtt.ErrUnsupportedEntryShape, len(data))
	}

	e := v.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	index := off >> gtt.EntryShift
	if index >= uint64(len(v.ggttMM.guestRoots)) {
		return fmt.Errorf("%w: global table offset 0x%x",
			gtt.ErrInvalidRange, off)
	}

	if !v.gmaValid(index << gtt.PageShift) {
		return nil
	}

	var buf [gtt.EntrySize]byte
	binary.LittleEndian.PutUint64(buf[:], v.ggttMM.guestRoots[index])
	copy(buf[off&(gtt.EntrySize-1):], data)

	we := gtt.NewEntry(gtt.KindGGTTPTE,
		binary.LittleEndian.Uint64(buf[:]))

	var he gtt.Entry
	if e.pteOps.TestPresent(we) {
		m, err := v.newTranslator().shadowEntry(we)
		if err != nil {
			// The guest may be mid way through a split update, so
			// the frame bits can be transiently bogus. Park the
			// hardware entry on the scratch frame until the entry
			// settles.
			m = we
			e.pteOps.SetFrame(&m, e.scratchGGTTMFN)
		}
		he = m
	} else {
		he = we
		e.pteOps.SetFrame(&he, e.scratchGGTTMFN)
	}

	e.hwGGTT[index] = he.Raw
	v.inval.InvalidateGTT()
	v.ggttMM.guestRoots[index] = we.Raw

	e.InvokeHook(gtt.HookCtx{
		Domain: e,
		Pos:    HookPosGGTTWrite,
		Item: EntryTrace{
			VGPU:  v.name,
			Kind:  gtt.KindGGTTPTE.String(),
			Index: index,
			Raw:   we.Raw,
		},
	})

	return nil
}

// resetGGTT points the vGPU's aperture and hidden ranges of the hardware
// global table at the device scratch frame. Lock held.
func (v *VGPU) resetGGTT() {
	e := v.engine

	se := gtt.NewEntry(gtt.KindGGTTPTE, gtt.EntryFlagPresent)
	e.pteOps.SetFrame(&se, e.scratchGGTTMFN)

	fill := func(base, size uint64) {
		first := base >> gtt.PageShift
		count := size >> gtt.PageShift
		for i := uint64(0); i < count; i++ {
			if first+i < uint64(len(e.hwGGTT)) {
				e.hwGGTT[first+i] = se.Raw
			}
		}
	}

	fill(v.apertureBase, v.apertureSize)
	fill(v.hiddenBase, v.hiddenSize)

	v.inval.InvalidateGTT()
}
