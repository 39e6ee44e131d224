package shadow

import (
	"log"

	"github.com/sarchlab/gvt/gtt"
)

// shadowFrameBase is the first frame number the store hands out. It sits
// far above any frame a guest can own, so shadow frames never collide
// with resolver results, while still fitting the entry frame field.
const shadowFrameBase = uint64(1) << 30

// frameStore models the host pages that back shadow tables and scratch
// pages. Frames are identified by a monotonically assigned frame number,
// never reused while allocated.
type frameStore struct {
	next  uint64
	pages map[uint64][]uint64
}

func newFrameStore() *frameStore {
	return &frameStore{
		next:  shadowFrameBase,
		pages: make(map[uint64][]uint64),
	}
}

// alloc returns the frame number of a fresh zeroed page.
func (s *frameStore) alloc() uint64 {
	mfn := s.next
	s.next++
	s.pages[mfn] = make([]uint64, gtt.EntriesPerPage)

	return mfn
}

func (s *frameStore) free(mfn uint64) {
	if _, ok := s.pages[mfn]; !ok {
		log.Panicf("freeing unknown shadow frame 0x%x", mfn)
	}

	delete(s.pages, mfn)
}

// page returns the entry slots of an allocated frame.
func (s *frameStore) page(mfn uint64) []uint64 {
	p, ok := s.pages[mfn]
	if !ok {
		log.Panicf("accessing unknown shadow frame 0x%x", mfn)
	}

	return p
}
