package nandkv

// PageManager owns the bitmap, the mapper, and the free-page cursor — the
// only component permitted to write them (spec.md §4.2). It is grounded on
// original_source/page_manager.c, translated page-for-page from the C
// bit-twiddling into Go, and shaped like the teacher's BufMgr: a plain
// struct of slices plus a cursor, with no locking because the engine is
// single-mutator (spec.md §5).
type PageManager struct {
	numPages      uint64
	pagesPerBlock uint64

	bitmap []byte   // packed 2 bits/page, low pair first (spec.md §3)
	mapper []uint64 // one cell per virtual page

	currentFreePage  uint64
	totalWrittenPage uint64
	readOnly         bool
}

// NewPageManager allocates a fresh (all-FREE, all-UNALLOCATED) page manager
// for a partition with the given geometry. Used by MetadataStore.Construct
// when read_disk is false.
func NewPageManager(numPages, pagesPerBlock uint64) *PageManager {
	pm := &PageManager{
		numPages:      numPages,
		pagesPerBlock: pagesPerBlock,
		bitmap:        make([]byte, bitmapBytes(numPages)),
		mapper:        make([]uint64, numPages),
	}
	for i := range pm.bitmap {
		pm.bitmap[i] = 0xFF // every entry FREE; trailing bits stay FREE too
	}
	for i := range pm.mapper {
		pm.mapper[i] = MapUnallocated
	}
	pm.FixFreePagePointer(0)
	return pm
}

// NewPageManagerFromDisk wraps bitmap/mapper bytes already read from the
// META partition (spec.md §4.3's Construct with read_disk=true).
func NewPageManagerFromDisk(numPages, pagesPerBlock uint64, bitmap []byte, mapper []uint64, totalWrittenPage uint64) *PageManager {
	pm := &PageManager{
		numPages:         numPages,
		pagesPerBlock:    pagesPerBlock,
		bitmap:           bitmap,
		mapper:           mapper,
		totalWrittenPage: totalWrittenPage,
	}
	pm.FixFreePagePointer(0)
	return pm
}

func bitmapBytes(numPages uint64) uint64 {
	return (numPages + 3) / 4
}

// TotalWrittenPage returns the number of pages currently VALID or INVALID.
func (pm *PageManager) TotalWrittenPage() uint64 { return pm.totalWrittenPage }

// ReadOnly reports whether the most recent free-page scan exhausted
// without finding a FREE page.
func (pm *PageManager) ReadOnly() bool { return pm.readOnly }

// Bitmap and Mapper expose the raw backing storage for MetadataStore.Flush.
func (pm *PageManager) Bitmap() []byte   { return pm.bitmap }
func (pm *PageManager) Mapper() []uint64 { return pm.mapper }
func (pm *PageManager) NumPages() uint64 { return pm.numPages }

// GetPPageState is a pure O(1) bit extraction (spec.md §4.2).
func (pm *PageManager) GetPPageState(pp uint64) PageState {
	offset := pp / 4
	index := pp % 4
	return PageState((pm.bitmap[offset] >> (index * 2)) & 0x3)
}

// SetPPageState replaces pp's 2-bit state in place, preserving its
// neighboring pairs.
func (pm *PageManager) SetPPageState(pp uint64, state PageState) {
	offset := pp / 4
	index := pp % 4
	pm.bitmap[offset] = (pm.bitmap[offset] &^ (0x3 << (index * 2))) | (uint8(state) << (index * 2))
}

// FixFreePagePointer scans forward from start, wrapping modulo numPages,
// for the first FREE entry. If the scan returns to its own starting point
// without finding one, the partition flips read-only. Amortized O(1) in
// steady state; O(numPages) worst case (spec.md §4.2).
func (pm *PageManager) FixFreePagePointer(start uint64) {
	if pm.numPages == 0 {
		pm.readOnly = true
		return
	}
	pp := start % pm.numPages
	for i := uint64(0); i < pm.numPages; i++ {
		if pm.GetPPageState(pp) == StateFree {
			pm.currentFreePage = pp
			pm.readOnly = false
			return
		}
		pp = (pp + 1) % pm.numPages
	}
	pm.readOnly = true
}

// GetFreePage returns the current free-page cursor and advances it past
// the page just handed out.
func (pm *PageManager) GetFreePage() (uint64, Status) {
	if pm.readOnly {
		return 0, StatusNoSpace
	}
	pp := pm.currentFreePage
	pm.FixFreePagePointer(pp + 1)
	if !pm.readOnly && pm.currentFreePage == pp {
		// the only FREE page left is the one just handed out
		pm.readOnly = true
	}
	return pp, StatusOK
}

// CreateMapping binds vp to a freshly allocated physical page, marks it
// VALID, and accounts for it in totalWrittenPage. Callers must only invoke
// this when mapper[vp] is UNALLOCATED or GARBAGE-RECLAIMED.
func (pm *PageManager) CreateMapping(vp uint64) (uint64, Status) {
	pp, st := pm.GetFreePage()
	if st != StatusOK {
		return 0, st
	}
	pm.mapper[vp] = pp
	pm.SetPPageState(pp, StateValid)
	pm.totalWrittenPage++
	return pp, StatusOK
}

// CreateMappingAvoidingBlock is CreateMapping but skips any free page
// lying inside forbiddenBlock, for use by GC migrating pages out of the
// block it is about to erase.
func (pm *PageManager) CreateMappingAvoidingBlock(vp, forbiddenBlock uint64) (uint64, Status) {
	blockStart := forbiddenBlock * pm.pagesPerBlock
	blockEnd := blockStart + pm.pagesPerBlock

	pp, st := pm.GetFreePage()
	if st != StatusOK {
		return 0, st
	}
	for pp >= blockStart && pp < blockEnd {
		pp, st = pm.GetFreePage()
		if st != StatusOK {
			return 0, st
		}
	}
	pm.mapper[vp] = pp
	pm.SetPPageState(pp, StateValid)
	pm.totalWrittenPage++
	return pp, StatusOK
}

// CreateMappingMultipage pre-verifies that vp..vp+numPages-1 are all
// UNALLOCATED or GARBAGE-RECLAIMED (returning statusNotPermitted
// atomically, with no partial allocation, if not), then allocates a
// physical page for each one. A per-page allocation failure after the
// pre-check returns StatusNoSpace and leaves the already-bound pages in
// place — the caller is responsible for compensating (spec.md §4.2).
func (pm *PageManager) CreateMappingMultipage(vp uint64, numPages uint32) Status {
	for i := uint32(0); i < numPages; i++ {
		lpage := vp + uint64(i)
		if lpage >= pm.numPages {
			return statusNotPermitted
		}
		if pm.mapper[lpage] != MapUnallocated && pm.mapper[lpage] != MapGarbageReclaimed {
			return statusNotPermitted
		}
	}

	for i := uint32(0); i < numPages; i++ {
		if _, st := pm.CreateMapping(vp + uint64(i)); st != StatusOK {
			return StatusNoSpace
		}
	}
	return StatusOK
}

// GetExistingMapping combines the mapper and bitmap into one lookup.
func (pm *PageManager) GetExistingMapping(vp uint64) (MappingState, uint64) {
	if vp >= pm.numPages {
		return MappingNotMapped, 0
	}
	pp := pm.mapper[vp]
	switch pp {
	case MapUnallocated:
		return MappingNotMapped, 0
	case MapGarbageReclaimed:
		return MappingReclaimed, 0
	}
	switch pm.GetPPageState(pp) {
	case StateValid:
		return MappingValid, pp
	case StateInvalid:
		return MappingInvalid, pp
	default:
		// A mapper cell pointing at a FREE/RESERVED page would violate the
		// mapper/bitmap invariant of spec.md §3; surface it as unmapped
		// rather than lying about validity.
		return MappingNotMapped, pp
	}
}

// MarkVPageInvalid marks the numPages virtual pages starting at vp
// INVALID, requiring each currently be VALID.
func (pm *PageManager) MarkVPageInvalid(vp uint64, numPages uint64) Status {
	for i := uint64(0); i < numPages; i++ {
		state, pp := pm.GetExistingMapping(vp + i)
		if state != MappingValid {
			return StatusAlreadyInvalid
		}
		pm.SetPPageState(pp, StateInvalid)
	}
	return StatusOK
}

// FindVPage reverse-looks-up the virtual page currently mapping to pp, by
// linear scan over the mapper. Spec.md §4.2 calls this out explicitly as
// an acceptable O(numPages)-per-migrated-page cost because GC migrations
// are rare and block-local.
func (pm *PageManager) FindVPage(pp uint64) (uint64, bool) {
	for vp, mapped := range pm.mapper {
		if mapped == pp {
			return uint64(vp), true
		}
	}
	return 0, false
}
