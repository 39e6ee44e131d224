package shadow

import "github.com/sarchlab/gvt/gtt"

// Hook positions raised by the engine. Hooks see the whole lifecycle of
// shadow pages, out-of-sync slots, and address spaces, and are the only
// observability surface of the engine.
var (
	HookPosPageAlloc   = &gtt.HookPos{Name: "ShadowPageAlloc"}
	HookPosPageFree    = &gtt.HookPos{Name: "ShadowPageFree"}
	HookPosPageBorn    = &gtt.HookPos{Name: "ShadowPageBorn"}
	HookPosPageDie     = &gtt.HookPos{Name: "ShadowPageDie"}
	HookPosEntryAdd    = &gtt.HookPos{Name: "GuestEntryAdd"}
	HookPosEntryRemove = &gtt.HookPos{Name: "GuestEntryRemove"}
	HookPosOOSAttach   = &gtt.HookPos{Name: "OOSAttach"}
	HookPosOOSDetach   = &gtt.HookPos{Name: "OOSDetach"}
	HookPosOOSSync     = &gtt.HookPos{Name: "OOSSync"}
	HookPosMMCreate    = &gtt.HookPos{Name: "MMCreate"}
	HookPosMMDestroy   = &gtt.HookPos{Name: "MMDestroy"}
	HookPosMMReclaim   = &gtt.HookPos{Name: "MMReclaim"}
	HookPosGGTTWrite   = &gtt.HookPos{Name: "GGTTWrite"}
	HookPosTranslate   = &gtt.HookPos{Name: "GMATranslate"}
)

// PageTrace is the hook detail for shadow page lifecycle events.
type PageTrace struct {
	VGPU string
	Kind string
	GFN  uint64
	MFN  uint64
	Ref  int
}

// EntryTrace is the hook detail for guest entry add and remove events.
type EntryTrace struct {
	VGPU  string
	Kind  string
	GFN   uint64
	Index uint64
	Raw   uint64
}

// OOSTrace is the hook detail for out-of-sync slot events.
type OOSTrace struct {
	VGPU string
	Slot int
	GFN  uint64
}

// MMTrace is the hook detail for address space lifecycle events.
type MMTrace struct {
	VGPU   string
	ID     string
	Levels int
}

// TranslateTrace is the hook detail for GMA translation events.
type TranslateTrace struct {
	VGPU string
	GMA  uint64
	HPA  uint64
}
