package record

import (
	"sync"

	"github.com/sarchlab/gvt/gtt"
	"github.com/sarchlab/gvt/gtt/shadow"
)

// PageEvent is one shadow page lifecycle event.
type PageEvent struct {
	Serial int
	Event  string
	VGPU   string
	Kind   string
	GFN    uint64
	MFN    uint64
	Ref    int
}

// EntryEvent is one guest entry add, remove, or global table write event.
type EntryEvent struct {
	Serial int
	Event  string
	VGPU   string
	Kind   string
	GFN    uint64
	Slot   uint64
	Raw    uint64
}

// OOSEvent is one out-of-sync slot event.
type OOSEvent struct {
	Serial int
	Event  string
	VGPU   string
	Slot   int
	GFN    uint64
}

// MMEvent is one address space lifecycle event.
type MMEvent struct {
	Serial int
	Event  string
	VGPU   string
	ID     string
	Levels int
}

// TranslateEvent is one address translation event.
type TranslateEvent struct {
	Serial int
	Event  string
	VGPU   string
	GMA    uint64
	HPA    uint64
}

// EventTables maps the table names a Tracer writes to sample entries,
// ready to pass to Reader.MapTable.
var EventTables = map[string]any{
	"page_events":      PageEvent{},
	"entry_events":     EntryEvent{},
	"oos_events":       OOSEvent{},
	"mm_events":        MMEvent{},
	"translate_events": TranslateEvent{},
}

// A Tracer persists every hook event of a shadow engine into a Recorder.
// Register it with Engine.AcceptHook.
type Tracer struct {
	mu      sync.Mutex
	backend Recorder
	serial  int
}

// NewTracer creates a Tracer and prepares its event tables on the
// backend.
func NewTracer(backend Recorder) *Tracer {
	for name, sample := range EventTables {
		backend.CreateTable(name, sample)
	}

	return &Tracer{backend: backend}
}

// Func records one hook event.
func (t *Tracer) Func(ctx gtt.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.serial++

	switch item := ctx.Item.(type) {
	case shadow.PageTrace:
		t.backend.InsertData("page_events", PageEvent{
			Serial: t.serial,
			Event:  ctx.Pos.Name,
			VGPU:   item.VGPU,
			Kind:   item.Kind,
			GFN:    item.GFN,
			MFN:    item.MFN,
			Ref:    item.Ref,
		})
	case shadow.EntryTrace:
		t.backend.InsertData("entry_events", EntryEvent{
			Serial: t.serial,
			Event:  ctx.Pos.Name,
			VGPU:   item.VGPU,
			Kind:   item.Kind,
			GFN:    item.GFN,
			Slot:   item.Index,
			Raw:    item.Raw,
		})
	case shadow.OOSTrace:
		t.backend.InsertData("oos_events", OOSEvent{
			Serial: t.serial,
			Event:  ctx.Pos.Name,
			VGPU:   item.VGPU,
			Slot:   item.Slot,
			GFN:    item.GFN,
		})
	case shadow.MMTrace:
		t.backend.InsertData("mm_events", MMEvent{
			Serial: t.serial,
			Event:  ctx.Pos.Name,
			VGPU:   item.VGPU,
			ID:     item.ID,
			Levels: item.Levels,
		})
	case shadow.TranslateTrace:
		t.backend.InsertData("translate_events", TranslateEvent{
			Serial: t.serial,
			Event:  ctx.Pos.Name,
			VGPU:   item.VGPU,
			GMA:    item.GMA,
			HPA:    item.HPA,
		})
	}
}
