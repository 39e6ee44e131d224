package shadow

import (
	"fmt"

	"github.com/sarchlab/gvt/gtt"
)

// A translator turns guest entries into shadow entries by replacing the
// guest frame with the resolved host frame. The one-deep result cache
// exploits the locality of a table scan; a translator lives for a single
// populate or sync pass and is never shared.
type translator struct {
	resolver gtt.FrameResolver
	ops      gtt.PTEOps

	lastGFN uint64
	lastMFN uint64
	cached  bool
}

func (v *VGPU) newTranslator() *translator {
	return &translator{
		resolver: v.resolver,
		ops:      v.engine.pteOps,
	}
}

// shadowEntry returns e with its frame translated. Non-present entries
// pass through unchanged.
func (t *translator) shadowEntry(e gtt.Entry) (gtt.Entry, error) {
	m := e

	if !t.ops.TestPresent(e) {
		return m, nil
	}

	gfn := t.ops.Frame(e)

	mfn := t.lastMFN
	if !t.cached || gfn != t.lastGFN {
		var err error
		mfn, err = t.resolver.GFNToMFN(gfn)
		if err != nil {
			return m, fmt.Errorf("%w: gfn 0x%x: %v",
				gtt.ErrTranslationFailure, gfn, err)
		}
	}

	t.ops.SetFrame(&m, mfn)
	t.lastGFN = gfn
	t.lastMFN = mfn
	t.cached = true

	return m, nil
}
