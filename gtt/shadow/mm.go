package shadow

import (
	"container/list"
	"fmt"
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/gvt/gtt"
)

// An MM is one guest address space. The global space holds the guest's
// view of the whole global translation table; a per-process space holds
// the guest root pointers and, while shadowed, the matching shadow root
// pointers that lead into shadow pages.
type MM struct {
	id   string
	vgpu *VGPU

	kind   gtt.EntryKind // root entry kind
	levels int

	guestRoots  []uint64
	shadowRoots []uint64
	shadowed    bool

	refCount int
	pinCount int

	vgpuElem *list.Element
	lruElem  *list.Element
}

// ID returns the identifier of the address space.
func (m *MM) ID() string {
	return m.id
}

// Levels returns the number of table levels the address space uses: 1
// for the global space, 2 to 4 for per-process spaces.
func (m *MM) Levels() int {
	return m.levels
}

// Shadowed reports whether the address space currently has a shadow
// table behind it.
func (m *MM) Shadowed() bool {
	m.vgpu.engine.mu.RLock()
	defer m.vgpu.engine.mu.RUnlock()

	return m.shadowed
}

func rootKindOf(levels int) (gtt.EntryKind, int) {
	switch levels {
	case 1:
		return gtt.KindGGTTPTE, 0
	case 2:
		return gtt.KindRootL2, gtt.EntriesPerPage
	case 3:
		return gtt.KindRootL3, 4
	case 4:
		return gtt.KindRootL4, 1
	default:
		log.Panicf("address space with %d levels", levels)
		return gtt.KindInvalid, 0
	}
}

// CreatePPGTTMM creates and immediately shadows a per-process address
// space from the guest root pointers. The caller owns one reference.
func (v *VGPU) CreatePPGTTMM(levels int, roots []uint64) (*MM, error) {
	if levels < 2 || levels > 4 {
		return nil, fmt.Errorf("%w: %d-level per-process table",
			gtt.ErrUnsupportedEntryShape, levels)
	}

	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	kind, _ := rootKindOf(levels)

	return v.createMM(kind, levels, roots)
}

// createMM builds an address space. Callers hold the engine lock.
func (v *VGPU) createMM(
	kind gtt.EntryKind,
	levels int,
	roots []uint64,
) (*MM, error) {
	rootCount := len(v.engine.hwGGTT)
	if kind != gtt.KindGGTTPTE {
		_, rootCount = rootKindOf(levels)
	}

	mm := &MM{
		id:         xid.New().String(),
		vgpu:       v,
		kind:       kind,
		levels:     levels,
		guestRoots: make([]uint64, rootCount),
		refCount:   1,
	}
	copy(mm.guestRoots, roots)

	mm.vgpuElem = v.mmList.PushBack(mm)

	if kind != gtt.KindGGTTPTE {
		mm.shadowRoots = make([]uint64, rootCount)

		if err := mm.shadow(); err != nil {
			v.mmList.Remove(mm.vgpuElem)
			mm.vgpuElem = nil
			return nil, err
		}

		mm.lruElem = v.engine.mmLRU.PushBack(mm)
	}

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosMMCreate,
		Item:   MMTrace{VGPU: v.name, ID: mm.id, Levels: levels},
	})

	return mm, nil
}

// shadow populates the shadow root pointers from the guest root
// pointers, building the shadow trees beneath them. Lock held.
func (m *MM) shadow() error {
	v := m.vgpu
	ops := v.engine.pteOps
	tr := v.newTranslator()

	if m.shadowed {
		return nil
	}
	m.shadowed = true

	for i, raw := range m.guestRoots {
		ge := gtt.NewEntry(m.kind, raw)
		if !ops.TestPresent(ge) {
			continue
		}

		p, err := v.populatePageByGuestEntry(tr, ge)
		if err != nil {
			m.invalidate()
			return err
		}

		se := ge
		ops.SetFrame(&se, p.mfn)
		m.shadowRoots[i] = se.Raw
	}

	return nil
}

// invalidate tears the shadow trees down root by root. Lock held.
func (m *MM) invalidate() {
	v := m.vgpu
	ops := v.engine.pteOps

	if !m.shadowed {
		return
	}

	for i, raw := range m.shadowRoots {
		se := gtt.NewEntry(m.kind, raw)
		if !ops.TestPresent(se) {
			continue
		}

		if err := v.releaseByShadowEntry(se); err != nil {
			log.Printf("invalidate %s root %d: %v", m.id, i, err)
		}
		m.shadowRoots[i] = 0
	}

	m.shadowed = false
}

// Retain adds a reference to the address space.
func (m *MM) Retain() {
	m.vgpu.engine.mu.Lock()
	defer m.vgpu.engine.mu.Unlock()

	m.refCount++
}

// Release drops one reference. The last reference destroys the address
// space: its shadow trees are invalidated and it leaves every list.
func (m *MM) Release() {
	v := m.vgpu
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	m.refCount--
	if m.refCount > 0 {
		return
	}

	m.destroy()
}

// destroy removes the address space entirely. Lock held.
func (m *MM) destroy() {
	v := m.vgpu

	if m.vgpuElem != nil {
		v.mmList.Remove(m.vgpuElem)
		m.vgpuElem = nil
	}
	if m.lruElem != nil {
		v.engine.mmLRU.Remove(m.lruElem)
		m.lruElem = nil
	}

	m.invalidate()

	v.engine.InvokeHook(gtt.HookCtx{
		Domain: v.engine,
		Pos:    HookPosMMDestroy,
		Item:   MMTrace{VGPU: v.name, ID: m.id, Levels: m.levels},
	})
}

// Pin marks a per-process address space in use by hardware, reshadowing
// it if a reclaim took its shadow table, and moves it to the warm end of
// the reclaim queue. Pinned spaces are never reclaimed.
func (m *MM) Pin() error {
	if m.kind == gtt.KindGGTTPTE {
		log.Panicf("pinning the global address space of %s",
			m.vgpu.name)
	}

	v := m.vgpu
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	m.pinCount++

	if !m.shadowed {
		if err := m.shadow(); err != nil {
			m.pinCount--
			return err
		}
	}

	if m.lruElem != nil {
		v.engine.mmLRU.Remove(m.lruElem)
	}
	m.lruElem = v.engine.mmLRU.PushBack(m)

	return nil
}

// Unpin releases one pin.
func (m *MM) Unpin() {
	if m.kind == gtt.KindGGTTPTE {
		log.Panicf("unpinning the global address space of %s",
			m.vgpu.name)
	}

	v := m.vgpu
	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	m.pinCount--
	if m.pinCount < 0 {
		log.Panicf("unbalanced unpin of address space %s", m.id)
	}
}

// FindPPGTTMM finds the per-process address space whose guest root
// pointers match, or nil.
func (v *VGPU) FindPPGTTMM(levels int, roots []uint64) *MM {
	v.engine.mu.RLock()
	defer v.engine.mu.RUnlock()

	return v.findPPGTTMM(levels, roots)
}

func (v *VGPU) findPPGTTMM(levels int, roots []uint64) *MM {
	for elem := v.mmList.Front(); elem != nil; elem = elem.Next() {
		mm := elem.Value.(*MM)

		if mm.kind == gtt.KindGGTTPTE || mm.levels != levels {
			continue
		}

		_, rootCount := rootKindOf(levels)
		match := true
		for i := 0; i < rootCount; i++ {
			var want uint64
			if i < len(roots) {
				want = roots[i]
			}
			if mm.guestRoots[i] != want {
				match = false
				break
			}
		}

		if match {
			return mm
		}
	}

	return nil
}

// NotifyPPGTTCreate handles the guest announcing a new per-process page
// table: an existing matching space gains a reference, otherwise one is
// created and shadowed.
func (v *VGPU) NotifyPPGTTCreate(levels int, roots []uint64) (*MM, error) {
	if levels < 2 || levels > 4 {
		return nil, fmt.Errorf("%w: %d-level per-process table",
			gtt.ErrUnsupportedEntryShape, levels)
	}

	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	if mm := v.findPPGTTMM(levels, roots); mm != nil {
		mm.refCount++
		return mm, nil
	}

	kind, _ := rootKindOf(levels)

	return v.createMM(kind, levels, roots)
}

// NotifyPPGTTDestroy handles the guest announcing a per-process page
// table went away. Unknown root pointers are an error.
func (v *VGPU) NotifyPPGTTDestroy(levels int, roots []uint64) error {
	if levels < 2 || levels > 4 {
		return fmt.Errorf("%w: %d-level per-process table",
			gtt.ErrUnsupportedEntryShape, levels)
	}

	v.engine.mu.Lock()
	defer v.engine.mu.Unlock()

	mm := v.findPPGTTMM(levels, roots)
	if mm == nil {
		return fmt.Errorf("%w: %d-level table to destroy",
			gtt.ErrNotFound, levels)
	}

	mm.refCount--
	if mm.refCount <= 0 {
		mm.destroy()
	}

	return nil
}
