package shadow

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/mock/gomock"

	"github.com/sarchlab/gvt/gtt"
)

// mfnBias is what the test resolver adds to a guest frame to produce the
// host frame, so expected shadow values are easy to compute.
const mfnBias = uint64(1) << 24

const presentRW = gtt.EntryFlagPresent | gtt.EntryFlagRW

// guestRAM is a sparse guest physical memory.
type guestRAM struct {
	pages map[uint64][]byte
}

func newGuestRAM() *guestRAM {
	return &guestRAM{pages: make(map[uint64][]byte)}
}

func (r *guestRAM) page(gfn uint64) []byte {
	p, ok := r.pages[gfn]
	if !ok {
		p = make([]byte, gtt.PageSize)
		r.pages[gfn] = p
	}
	return p
}

func (r *guestRAM) read(gpa uint64, data []byte) error {
	copy(data, r.page(gpa>>gtt.PageShift)[gpa&(gtt.PageSize-1):])
	return nil
}

func (r *guestRAM) write(gpa uint64, data []byte) error {
	copy(r.page(gpa>>gtt.PageShift)[gpa&(gtt.PageSize-1):], data)
	return nil
}

func (r *guestRAM) setEntry(gfn, index, raw uint64) {
	binary.LittleEndian.PutUint64(
		r.page(gfn)[index*gtt.EntrySize:], raw)
}

func (r *guestRAM) entry(gfn, index uint64) uint64 {
	return binary.LittleEndian.Uint64(
		r.page(gfn)[index*gtt.EntrySize:])
}

// testbed wires an engine and one vGPU to mock collaborators backed by a
// guestRAM, a trap table, and a gfn+bias resolver.
type testbed struct {
	engine *Engine
	vgpu   *VGPU
	ram    *guestRAM

	handlers map[uint64]gtt.WriteTrapHandler
	failGFNs map[uint64]bool

	invalidations int
}

const (
	testAptBase = uint64(0)
	testAptSize = uint64(16 << 20)
	testHidBase = uint64(32 << 20)
	testHidSize = uint64(16 << 20)
)

func makeTestbed(ctrl *gomock.Controller, b Builder) *testbed {
	tb := &testbed{
		ram:      newGuestRAM(),
		handlers: make(map[uint64]gtt.WriteTrapHandler),
		failGFNs: make(map[uint64]bool),
	}

	tb.engine = b.Build("Engine")

	mem := NewMockGuestMem(ctrl)
	mem.EXPECT().ReadGPA(gomock.Any(), gomock.Any()).
		DoAndReturn(tb.ram.read).AnyTimes()
	mem.EXPECT().WriteGPA(gomock.Any(), gomock.Any()).
		DoAndReturn(tb.ram.write).AnyTimes()

	resolver := NewMockFrameResolver(ctrl)
	resolver.EXPECT().GFNToMFN(gomock.Any()).
		DoAndReturn(func(gfn uint64) (uint64, error) {
			if tb.failGFNs[gfn] {
				return 0, fmt.Errorf("gfn 0x%x not owned", gfn)
			}
			return gfn + mfnBias, nil
		}).AnyTimes()

	traps := NewMockTrapRegistrar(ctrl)
	traps.EXPECT().SetWriteTrap(gomock.Any(), gomock.Any()).
		DoAndReturn(func(gfn uint64, h gtt.WriteTrapHandler) error {
			tb.handlers[gfn] = h
			return nil
		}).AnyTimes()
	traps.EXPECT().ClearWriteTrap(gomock.Any()).
		DoAndReturn(func(gfn uint64) error {
			delete(tb.handlers, gfn)
			return nil
		}).AnyTimes()

	inval := NewMockCacheInvalidator(ctrl)
	inval.EXPECT().InvalidateGTT().
		Do(func() { tb.invalidations++ }).AnyTimes()

	vgpu, err := MakeVGPUBuilder().
		WithEngine(tb.engine).
		WithGuestMem(mem).
		WithFrameResolver(resolver).
		WithTrapRegistrar(traps).
		WithCacheInvalidator(inval).
		WithAperture(testAptBase, testAptSize).
		WithHiddenRange(testHidBase, testHidSize).
		Build("VGPU")
	if err != nil {
		panic(err)
	}
	tb.vgpu = vgpu

	return tb
}

func makeDefaultTestbed(ctrl *gomock.Controller) *testbed {
	return makeTestbed(ctrl, MakeBuilder().WithGGTTEntryCount(1<<16))
}

// guestWrite performs a guest store to gpa: through the write trap when
// one is armed on the page, directly to memory otherwise.
func (tb *testbed) guestWrite(gpa uint64, data []byte) error {
	if h, ok := tb.handlers[gpa>>gtt.PageShift]; ok {
		return h(gpa, data)
	}
	return tb.ram.write(gpa, data)
}

func (tb *testbed) guestWriteEntry(gfn, index, raw uint64) error {
	var buf [gtt.EntrySize]byte
	binary.LittleEndian.PutUint64(buf[:], raw)
	return tb.guestWrite(gfn<<gtt.PageShift+index*gtt.EntrySize, buf[:])
}

func entryRaw(frame uint64) uint64 {
	return frame<<gtt.PageShift | presentRW
}

// fourLevelTable is a small guest 4-level page table with one data
// mapping, and the frame numbers of its pages.
type fourLevelTable struct {
	pml4GFN, pdpGFN, pdeGFN, pteGFN uint64
	dataGFN                         uint64
	ptIndex                         uint64
	roots                           []uint64
}

// buildFourLevelTable lays out a guest table mapping the page at
// gma 0x3000 (lowest-level index 3) to dataGFN.
func (tb *testbed) buildFourLevelTable() fourLevelTable {
	t := fourLevelTable{
		pml4GFN: 0x100,
		pdpGFN:  0x101,
		pdeGFN:  0x102,
		pteGFN:  0x103,
		dataGFN: 0x200,
		ptIndex: 3,
	}

	tb.ram.setEntry(t.pml4GFN, 0, entryRaw(t.pdpGFN))
	tb.ram.setEntry(t.pdpGFN, 0, entryRaw(t.pdeGFN))
	tb.ram.setEntry(t.pdeGFN, 0, entryRaw(t.pteGFN))
	tb.ram.setEntry(t.pteGFN, t.ptIndex, entryRaw(t.dataGFN))

	t.roots = []uint64{entryRaw(t.pml4GFN)}

	return t
}

// shadowRaw reads the raw shadow slot of the shadow page tracking gfn.
func (tb *testbed) shadowRaw(gfn, index uint64) uint64 {
	p, ok := tb.vgpu.trackedPages[gfn]
	if !ok {
		panic(fmt.Sprintf("gfn 0x%x not tracked", gfn))
	}
	return tb.engine.frames.page(p.mfn)[index]
}
