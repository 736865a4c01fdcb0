package nandkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achauhan-vt/nandkv/storage/memdevice"
)

func TestGarbageCollector_CollectReclaimsAndMigrates(t *testing.T) {
	// 2 blocks of 4 pages each: 8 virtual/physical pages total.
	data := memdevice.New(2, 256, 64)
	pm := NewPageManager(8, 4)
	gc := NewGarbageCollector(data, 4)

	// Fill block 0 (pages 0-3) entirely, then invalidate 3 of its 4
	// pages so it crosses the threshold=2 (>= pagesPerBlock/2 = 2).
	for vp := uint64(0); vp < 4; vp++ {
		pp, st := pm.CreateMapping(vp)
		require.Equal(t, StatusOK, st)
		buf := make([]byte, data.PageSize())
		buf[0] = byte(vp) + 1
		require.NoError(t, data.WritePage(int(pp), buf))
	}
	require.Equal(t, StatusOK, pm.MarkVPageInvalid(0, 1))
	require.Equal(t, StatusOK, pm.MarkVPageInvalid(1, 1))
	require.Equal(t, StatusOK, pm.MarkVPageInvalid(2, 1))
	// vp=3 stays VALID and must survive migration with its content intact.

	before, ppBefore := pm.GetExistingMapping(3)
	require.Equal(t, MappingValid, before)
	beforeBuf := make([]byte, data.PageSize())
	require.NoError(t, data.ReadPage(int(ppBefore), beforeBuf))

	st := gc.Collect(pm, 2)
	require.Equal(t, StatusOK, st)

	// vp=3's content must have migrated intact to a page outside block 0.
	afterState, afterPP := pm.GetExistingMapping(3)
	require.Equal(t, MappingValid, afterState)
	assert.GreaterOrEqual(t, afterPP, uint64(4), "must have migrated out of block 0")
	afterBuf := make([]byte, data.PageSize())
	require.NoError(t, data.ReadPage(int(afterPP), afterBuf))
	assert.Equal(t, beforeBuf, afterBuf)

	// The three invalidated virtual pages are now reclaimed, not merely invalid.
	for _, vp := range []uint64{0, 1, 2} {
		state, _ := pm.GetExistingMapping(vp)
		assert.Equal(t, MappingReclaimed, state)
	}

	// Every physical page in block 0 is FREE again.
	for pp := uint64(0); pp < 4; pp++ {
		assert.Equal(t, StateFree, pm.GetPPageState(pp))
	}
}

func TestGarbageCollector_CollectSkipsBlockBelowThreshold(t *testing.T) {
	data := memdevice.New(2, 256, 64)
	pm := NewPageManager(8, 4)
	gc := NewGarbageCollector(data, 4)

	_, st := pm.CreateMapping(0)
	require.Equal(t, StatusOK, st)
	require.Equal(t, StatusOK, pm.MarkVPageInvalid(0, 1))

	st = gc.Collect(pm, 2)
	require.Equal(t, StatusOK, st)

	// Only one invalid page out of four is below the threshold; block 0
	// must be left untouched.
	state, _ := pm.GetExistingMapping(0)
	assert.Equal(t, MappingInvalid, state)
}
