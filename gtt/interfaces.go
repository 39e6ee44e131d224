package gtt

// GuestMem reads and writes guest-visible memory. Addresses are guest
// physical. One instance serves one vGPU.
type GuestMem interface {
	ReadGPA(gpa uint64, data []byte) error
	WriteGPA(gpa uint64, data []byte) error
}

// FrameResolver is the sole authority for guest-to-host frame
// translation. The engine never resolves frames itself.
type FrameResolver interface {
	// GFNToMFN translates a guest frame number into a host frame number.
	// It returns ErrTranslationFailure (possibly wrapped) for frames the
	// guest does not own.
	GFNToMFN(gfn uint64) (uint64, error)
}

// WriteTrapHandler is invoked for every intercepted guest write to a
// tracked page. gpa is the byte address written; data holds the written
// bytes, 4 or 8 of them.
type WriteTrapHandler func(gpa uint64, data []byte) error

// TrapRegistrar installs and removes byte-granular write traps on guest
// pages. One instance serves one vGPU.
type TrapRegistrar interface {
	SetWriteTrap(gfn uint64, handler WriteTrapHandler) error
	ClearWriteTrap(gfn uint64) error
}

// CacheInvalidator flushes the device-side translation cache after a
// mutation of a hardware-visible table.
type CacheInvalidator interface {
	InvalidateGTT()
}
