package shadow

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/sarchlab/gvt/gtt"
)

// A VGPU holds the per-guest shadow state: the tracked guest pages, the
// shadow pages mirroring them, the scratch table tree, the guest's view of
// the global translation table, and the guest's address spaces.
type VGPU struct {
	engine *Engine
	name   string

	mem      gtt.GuestMem
	resolver gtt.FrameResolver
	traps    gtt.TrapRegistrar
	inval    gtt.CacheInvalidator

	apertureBase uint64
	apertureSize uint64
	hiddenBase   uint64
	hiddenSize   uint64

	trackedPages map[uint64]*page // by guest frame number
	shadowPages  map[uint64]*page // by shadow frame number

	scratch scratchTree

	ggttMM *MM
	mmList *list.List // every *MM of this vGPU, GGTT included

	postShadowList *list.List // *page with pending deferred reshadow
	oosList        *list.List // *oosSlot attached to this vGPU's pages

	pageBuf []byte // scratch buffer for whole-page guest reads
}

// A VGPUBuilder can build vGPUs on an engine.
type VGPUBuilder struct {
	engine   *Engine
	mem      gtt.GuestMem
	resolver gtt.FrameResolver
	traps    gtt.TrapRegistrar
	inval    gtt.CacheInvalidator

	apertureBase uint64
	apertureSize uint64
	hiddenBase   uint64
	hiddenSize   uint64
}

// MakeVGPUBuilder creates a VGPUBuilder with no defaults. The engine and
// all four collaborators must be provided.
func MakeVGPUBuilder() VGPUBuilder {
	return VGPUBuilder{}
}

// WithEngine sets the engine the vGPU attaches to.
func (b VGPUBuilder) WithEngine(e *Engine) VGPUBuilder {
	b.engine = e
	return b
}

// WithGuestMem sets the guest memory accessor.
func (b VGPUBuilder) WithGuestMem(m gtt.GuestMem) VGPUBuilder {
	b.mem = m
	return b
}

// WithFrameResolver sets the guest-to-host frame resolver.
func (b VGPUBuilder) WithFrameResolver(r gtt.FrameResolver) VGPUBuilder {
	b.resolver = r
	return b
}

// WithTrapRegistrar sets the write-trap registrar.
func (b VGPUBuilder) WithTrapRegistrar(t gtt.TrapRegistrar) VGPUBuilder {
	b.traps = t
	return b
}

// WithCacheInvalidator sets the device translation-cache invalidator.
func (b VGPUBuilder) WithCacheInvalidator(i gtt.CacheInvalidator) VGPUBuilder {
	b.inval = i
	return b
}

// WithAperture sets the vGPU's mappable graphics memory range.
func (b VGPUBuilder) WithAperture(base, size uint64) VGPUBuilder {
	b.apertureBase = base
	b.apertureSize = size
	return b
}

// WithHiddenRange sets the vGPU's non-mappable graphics memory range.
func (b VGPUBuilder) WithHiddenRange(base, size uint64) VGPUBuilder {
	b.hiddenBase = base
	b.hiddenSize = size
	return b
}

// Build creates the vGPU, builds its scratch table tree, creates its
// global address space, and points its slice of the hardware global table
// at the scratch frame.
func (b VGPUBuilder) Build(name string) (*VGPU, error) {
	if b.engine == nil || b.mem == nil || b.resolver == nil ||
		b.traps == nil || b.inval == nil {
		log.Panicf("vgpu %s built without engine or collaborators", name)
	}

	v := &VGPU{
		engine:         b.engine,
		name:           name,
		mem:            b.mem,
		resolver:       b.resolver,
		traps:          b.traps,
		inval:          b.inval,
		apertureBase:   b.apertureBase,
		apertureSize:   b.apertureSize,
		hiddenBase:     b.hiddenBase,
		hiddenSize:     b.hiddenSize,
		trackedPages:   make(map[uint64]*page),
		shadowPages:    make(map[uint64]*page),
		mmList:         list.New(),
		postShadowList: list.New(),
		oosList:        list.New(),
		pageBuf:        make([]byte, gtt.PageSize),
	}

	e := b.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	v.scratch.build(e.frames, e.pteOps)

	ggttMM, err := v.createMM(gtt.KindGGTTPTE, 1, nil)
	if err != nil {
		v.scratch.release(e.frames)
		return nil, fmt.Errorf("create ggtt address space: %w", err)
	}
	v.ggttMM = ggttMM

	// The shared hardware table is only touched once the vGPU is sure
	// to come up.
	v.resetGGTT()

	e.vgpus = append(e.vgpus, v)

	return v, nil
}

// Name returns the name of the vGPU.
func (v *VGPU) Name() string {
	return v.name
}

// GGTTMM returns the vGPU's global address space.
func (v *VGPU) GGTTMM() *MM {
	return v.ggttMM
}

// gmaValid reports whether gma falls in the vGPU's aperture or hidden
// graphics memory range.
func (v *VGPU) gmaValid(gma uint64) bool {
	if gma >= v.apertureBase && gma < v.apertureBase+v.apertureSize {
		return true
	}

	return gma >= v.hiddenBase && gma < v.hiddenBase+v.hiddenSize
}

// readGuestEntry reads one table entry from a guest page. kind is the
// table kind of the page; the returned entry is normalized to its entry
// kind, promoted to a large-page kind if the entry asks for one.
func (v *VGPU) readGuestEntry(
	gfn uint64,
	kind gtt.EntryKind,
	index uint64,
) (gtt.Entry, error) {
	var buf [gtt.EntrySize]byte

	gpa := gfn<<gtt.PageShift + index*gtt.EntrySize
	if err := v.mem.ReadGPA(gpa, buf[:]); err != nil {
		return gtt.Entry{}, fmt.Errorf("read guest entry: %w", err)
	}

	e := gtt.NewEntry(kind, binary.LittleEndian.Uint64(buf[:]))
	v.engine.pteOps.TestLargePage(&e)

	return e, nil
}

// readGuestPage reads a whole guest page into the vGPU's page buffer and
// returns its raw entry values. The buffer is only valid until the next
// whole-page read.
func (v *VGPU) readGuestPage(gfn uint64) ([]uint64, error) {
	if err := v.mem.ReadGPA(gfn<<gtt.PageShift, v.pageBuf); err != nil {
		return nil, fmt.Errorf("read guest page 0x%x: %w", gfn, err)
	}

	raws := make([]uint64, gtt.EntriesPerPage)
	for i := range raws {
		raws[i] = binary.LittleEndian.Uint64(
			v.pageBuf[i*gtt.EntrySize:])
	}

	return raws, nil
}

// Reset tears the vGPU's translation state down to the post-creation
// state: all shadow pages and PPGTT address spaces are destroyed, the
// global table range is pointed back at the scratch frame, and the
// scratch tree is rebuilt.
func (v *VGPU) Reset() {
	e := v.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	v.freeAllShadowPages()
	v.freeMMs(false)
	v.resetGGTT()

	v.scratch.release(e.frames)
	v.scratch.build(e.frames, e.pteOps)
}

// Destroy releases everything the vGPU owns and detaches it from the
// engine. The vGPU must not be used afterwards.
func (v *VGPU) Destroy() {
	e := v.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	v.freeAllShadowPages()
	v.scratch.release(e.frames)
	v.freeMMs(true)
	v.resetGGTT()

	e.removeVGPU(v)
}

// freeAllShadowPages drops every shadow page of the vGPU without walking
// the trees. Used on reset paths where the trees are going away anyway.
func (v *VGPU) freeAllShadowPages() {
	for _, p := range v.shadowPages {
		v.freePage(p)
	}
}

// freeMMs drops the vGPU's PPGTT address spaces without invalidating
// their trees; the shadow pages are already gone when this runs. When
// includeGGTT is set, the global address space goes too.
func (v *VGPU) freeMMs(includeGGTT bool) {
	var next *list.Element
	for elem := v.mmList.Front(); elem != nil; elem = next {
		next = elem.Next()
		mm := elem.Value.(*MM)

		if mm.kind == gtt.KindGGTTPTE && !includeGGTT {
			continue
		}

		v.mmList.Remove(elem)
		mm.vgpuElem = nil

		if mm.lruElem != nil {
			v.engine.mmLRU.Remove(mm.lruElem)
			mm.lruElem = nil
		}

		for i := range mm.shadowRoots {
			mm.shadowRoots[i] = 0
		}
		mm.shadowed = false
	}

	if includeGGTT {
		v.ggttMM = nil
	}
}
