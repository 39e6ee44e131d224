package gtt

// Fixed properties of the translation-table format. The entry layout is
// bit-exact with the hardware's table ISA and must not be altered.
const (
	PageShift      = 12
	PageSize       = 1 << PageShift
	PageMask       = ^uint64(PageSize - 1)
	EntrySize      = 8
	EntryShift     = 3
	EntriesPerPage = PageSize / EntrySize
)

// An Entry is a typed view over one raw table slot. Entries are read and
// written only through a PTEOps implementation.
type Entry struct {
	Kind EntryKind
	Raw  uint64
}

// NewEntry decodes a raw 64-bit slot value under the given kind.
func NewEntry(kind EntryKind, raw uint64) Entry {
	return Entry{Kind: kind, Raw: raw}
}

// PTEOps is the per-hardware-generation entry codec. One implementation
// exists per supported generation; the engine selects it once at build
// time.
type PTEOps interface {
	// TestPresent reports whether e maps something. Root-pointer entries
	// are judged on the whole raw value, because hardware accepts root
	// writes that never set the present bit.
	TestPresent(e Entry) bool

	// ClearPresent clears the present bit in place.
	ClearPresent(e *Entry)

	// TestLargePage normalizes e.Kind from a table kind to its entry
	// kind, then promotes it to the large-page kind if the page-size bit
	// is set, reporting whether it did.
	TestLargePage(e *Entry) bool

	// Frame extracts the frame number under the address mask selected by
	// e.Kind.
	Frame(e Entry) uint64

	// SetFrame replaces the frame number under the address mask selected
	// by e.Kind.
	SetFrame(e *Entry, frame uint64)
}

// GMAOps extracts per-level table indices from a graphics memory address.
type GMAOps interface {
	GGTTIndex(gma uint64) uint64
	PTEIndex(gma uint64) uint64
	PDEIndex(gma uint64) uint64
	L3PDPIndex(gma uint64) uint64
	L4PDPIndex(gma uint64) uint64
	PML4Index(gma uint64) uint64
}

// Gen8 entry layout. The hardware address width is 46 bits.
const (
	gen8HAW = 46

	addr1GMask = ((uint64(1) << (gen8HAW - 30)) - 1) << 30
	addr2MMask = ((uint64(1) << (gen8HAW - 21)) - 1) << 21
	addr4KMask = ((uint64(1) << (gen8HAW - 12)) - 1) << 12

	EntryFlagPresent  = uint64(1) << 0
	EntryFlagRW       = uint64(1) << 1
	EntryFlagPSE      = uint64(1) << 7
	EntryFlagPATCache = uint64(1) << 7 // PAT bit on 4K PTEs, cache index
)

type gen8PTEOps struct{}

// Gen8PTEOps returns the entry codec for gen8-class hardware.
func Gen8PTEOps() PTEOps {
	return gen8PTEOps{}
}

func (gen8PTEOps) TestPresent(e Entry) bool {
	if IsRootKind(e.Kind) {
		return e.Raw != 0
	}

	return e.Raw&EntryFlagPresent != 0
}

func (gen8PTEOps) ClearPresent(e *Entry) {
	e.Raw &^= EntryFlagPresent
}

func (gen8PTEOps) TestLargePage(e *Entry) bool {
	if k := EntryKindOf(e.Kind); k != KindInvalid {
		e.Kind = k
	}

	// Root pointers reuse the PSE bit position for other purposes.
	if IsRootKind(e.Kind) {
		return false
	}

	if LargePageKind(e.Kind) == KindInvalid || e.Raw&EntryFlagPSE == 0 {
		return false
	}

	e.Kind = LargePageKind(e.Kind)

	return true
}

func (gen8PTEOps) Frame(e Entry) uint64 {
	switch e.Kind {
	case KindPTE1G:
		return (e.Raw & addr1GMask) >> PageShift
	case KindPTE2M:
		return (e.Raw & addr2MMask) >> PageShift
	default:
		return (e.Raw & addr4KMask) >> PageShift
	}
}

func (gen8PTEOps) SetFrame(e *Entry, frame uint64) {
	switch e.Kind {
	case KindPTE1G:
		e.Raw &^= addr1GMask
		frame &= addr1GMask >> PageShift
	case KindPTE2M:
		e.Raw &^= addr2MMask
		frame &= addr2MMask >> PageShift
	default:
		e.Raw &^= addr4KMask
		frame &= addr4KMask >> PageShift
	}

	e.Raw |= frame << PageShift
}

type gen8GMAOps struct{}

// Gen8GMAOps returns the address-index extractor for gen8-class hardware.
func Gen8GMAOps() GMAOps {
	return gen8GMAOps{}
}

func (gen8GMAOps) GGTTIndex(gma uint64) uint64 {
	return gma >> PageShift
}

func (gen8GMAOps) PTEIndex(gma uint64) uint64 {
	return (gma >> 12) & 0x1ff
}

func (gen8GMAOps) PDEIndex(gma uint64) uint64 {
	return (gma >> 21) & 0x1ff
}

func (gen8GMAOps) L3PDPIndex(gma uint64) uint64 {
	return (gma >> 30) & 0x3
}

func (gen8GMAOps) L4PDPIndex(gma uint64) uint64 {
	return (gma >> 30) & 0x1ff
}

func (gen8GMAOps) PML4Index(gma uint64) uint64 {
	return (gma >> 39) & 0x1ff
}
