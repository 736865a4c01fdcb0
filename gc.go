package nandkv

import "github.com/achauhan-vt/nandkv/interfaces"

// GarbageCollector reclaims DATA partition blocks whose INVALID-page count
// crosses a threshold, grounded on original_source/garbage_collector.c.
// It holds no state of its own; it only ever mutates the PageManager and
// Partition it is given.
type GarbageCollector struct {
	part          interfaces.Partition
	pagesPerBlock uint64
}

func NewGarbageCollector(part interfaces.Partition, pagesPerBlock uint64) *GarbageCollector {
	return &GarbageCollector{part: part, pagesPerBlock: pagesPerBlock}
}

// migrate copies every VALID page out of blockNum into a free page
// elsewhere, leaving the vacated page INVALID (it is about to be erased
// anyway), before the block can be erased. A failure partway through is
// left in place by design: the block simply isn't erased this round, and
// the next GC pass will retry (original_source/garbage_collector.c's
// project6_migrate_block comment).
func (gc *GarbageCollector) migrate(pm *PageManager, blockNum uint64) Status {
	start := blockNum * gc.pagesPerBlock
	buf := make([]byte, gc.part.PageSize())

	for pp := start; pp < start+gc.pagesPerBlock; pp++ {
		if pm.GetPPageState(pp) != StateValid {
			continue
		}
		vp, ok := pm.FindVPage(pp)
		if !ok {
			continue
		}

		npage, st := pm.CreateMappingAvoidingBlock(vp, blockNum)
		if st != StatusOK {
			return st
		}
		// CreateMapping already incremented totalWrittenPage for npage;
		// this page is a migration, not a new write, so compensate.
		pm.totalWrittenPage--

		if err := gc.part.ReadPage(int(pp), buf); err != nil {
			return StatusIoRead
		}
		if err := gc.part.WritePage(int(npage), buf); err != nil {
			return StatusIoWrite
		}
		pm.SetPPageState(pp, StateInvalid)
	}
	return StatusOK
}

// reclaim runs after blockNum has been erased: every page in the block
// becomes FREE, and any page that was INVALID and is still the target of
// a virtual page has that virtual page flipped to GARBAGE-RECLAIMED and
// is dropped from totalWrittenPage
// (original_source/garbage_collector.c's project6_reclaim_pages). Pages
// vacated by migrate no longer have a virtual page pointing at them, so
// they are freed without a second decrement.
func (gc *GarbageCollector) reclaim(pm *PageManager, blockNum uint64) {
	start := blockNum * gc.pagesPerBlock
	for pp := start; pp < start+gc.pagesPerBlock; pp++ {
		wasInvalid := pm.GetPPageState(pp) == StateInvalid
		pm.SetPPageState(pp, StateFree)
		if !wasInvalid {
			continue
		}
		if vp, ok := pm.FindVPage(pp); ok {
			pm.mapper[vp] = MapGarbageReclaimed
			pm.totalWrittenPage--
		}
	}
}

// Collect scans every block; any block whose INVALID-page count is at
// least pagesPerBlock/threshold is migrated, erased, and reclaimed. The
// free-page cursor is re-armed after each reclaimed block, not only once
// at the end, because reclaim just created FREE pages the cursor may
// need immediately (a correction to the upstream C, which only arms the
// cursor at mount — see DESIGN.md).
func (gc *GarbageCollector) Collect(pm *PageManager, threshold int) Status {
	numBlocks := pm.NumPages() / gc.pagesPerBlock
	for block := uint64(0); block < numBlocks; block++ {
		invalid := 0
		start := block * gc.pagesPerBlock
		for pp := start; pp < start+gc.pagesPerBlock; pp++ {
			if pm.GetPPageState(pp) == StateInvalid {
				invalid++
			}
		}
		if invalid < int(gc.pagesPerBlock)/threshold {
			continue
		}

		if st := gc.migrate(pm, block); st != StatusOK {
			return st
		}

		ch, err := gc.part.Erase(int(block), 1)
		if err != nil {
			return StatusIoErase
		}
		if s := <-ch; s != interfaces.EraseSuccess {
			return StatusIoErase
		}

		gc.reclaim(pm, block)
		pm.FixFreePagePointer(pm.currentFreePage)
	}
	return StatusOK
}
