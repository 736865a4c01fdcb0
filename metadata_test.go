package nandkv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/achauhan-vt/nandkv/storage/memdevice"
)

func newTestMetaPartition() *memdevice.Partition {
	return memdevice.New(4, 256, 64) // 4 blocks * 4 pages/block = 16 pages
}

func TestConstruct_FreshWhenNotReadingDisk(t *testing.T) {
	meta := newTestMetaPartition()

	ms, pm, st := Construct(meta, 8, 4, false)
	require.Equal(t, StatusOK, st)
	require.NotNil(t, ms)
	require.NotNil(t, pm)

	assert.Equal(t, uint64(8), pm.NumPages())
	for vp := uint64(0); vp < 8; vp++ {
		state, _ := pm.GetExistingMapping(vp)
		assert.Equal(t, MappingNotMapped, state)
	}
}

func TestConstruct_ReadDiskBeforeFormatReturnsMustFormat(t *testing.T) {
	meta := newTestMetaPartition()

	_, _, st := Construct(meta, 8, 4, true)
	assert.Equal(t, StatusMustFormat, st)
}

func TestMetadataStore_FlushThenConstructRoundTrips(t *testing.T) {
	meta := newTestMetaPartition()

	ms, pm, st := Construct(meta, 8, 4, false)
	require.Equal(t, StatusOK, st)

	_, err := pm.CreateMapping(3)
	require.Equal(t, StatusOK, err)
	require.Equal(t, StatusOK, pm.MarkVPageInvalid(3, 1))

	require.Equal(t, StatusOK, ms.Flush(pm))

	_, pm2, st := Construct(meta, 8, 4, true)
	require.Equal(t, StatusOK, st)

	state, pp := pm2.GetExistingMapping(3)
	assert.Equal(t, MappingInvalid, state)
	assert.Equal(t, StateInvalid, pm2.GetPPageState(pp))
	assert.Equal(t, pm.TotalWrittenPage(), pm2.TotalWrittenPage())
}

func TestConstruct_AllocFailWhenMetaPartitionTooSmall(t *testing.T) {
	tiny := memdevice.New(1, 64, 64) // just 1 page total

	_, _, st := Construct(tiny, 1<<20, 4, false)
	assert.Equal(t, StatusAllocFail, st)
}
