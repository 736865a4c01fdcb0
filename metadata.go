package nandkv

import (
	"encoding/binary"
	"fmt"

	"github.com/achauhan-vt/nandkv/interfaces"
)

// Metadata layout on the META partition, grounded on
// original_source/meta_data.c: a signature page at physical page 0,
// followed by the bitmap pages, followed by the mapper pages.
// total_written_page sits at byte offset 16 (meta_data.c:58's
// `*(signature+4)`) as a u32: it can never approach 2^32 since it is
// bounded by the DATA partition's page count, so the field stays at the
// spec's offset and width.
const (
	metaSignaturePage = 0
	metaBitmapStart   = 1

	signatureMagic       uint32 = 0xDEADBEEF
	signatureMagicOffset        = 0
	signatureTWPOffset          = 16
)

// MetadataStore owns the on-disk layout of the META partition: the
// signature page, and the placement of the bitmap and mapper regions that
// back a PageManager. It is grounded on original_source/meta_data.c's
// construct/flush pair.
type MetadataStore struct {
	part interfaces.Partition

	bitmapStart uint64
	bitmapPages uint64
	mapperStart uint64
	mapperPages uint64
}

func pagesFor(bytesLen, pageSize uint64) uint64 {
	if bytesLen%pageSize == 0 {
		return bytesLen / pageSize
	}
	return bytesLen/pageSize + 1
}

func layoutFor(part interfaces.Partition, numDataPages uint64) (bitmapPages, mapperStart, mapperPages uint64) {
	pageSize := uint64(part.PageSize())
	bitmapBytesLen := bitmapBytes(numDataPages)
	bitmapPages = pagesFor(bitmapBytesLen, pageSize)
	mapperStart = metaBitmapStart + bitmapPages + 1 // one reserved gap page, matching the C layout
	mapperBytesLen := numDataPages * 8
	mapperPages = pagesFor(mapperBytesLen, pageSize)
	return
}

func writeSignature(part interfaces.Partition, totalWrittenPage uint64) Status {
	buf := make([]byte, part.PageSize())
	for i := range buf {
		buf[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(buf[signatureMagicOffset:], signatureMagic)
	binary.LittleEndian.PutUint32(buf[signatureTWPOffset:], uint32(totalWrittenPage))
	if err := part.WritePage(metaSignaturePage, buf); err != nil {
		return StatusIoWrite
	}
	return StatusOK
}

// Construct builds a MetadataStore and, if readDisk is true, reconstructs
// a PageManager from what's already on the META partition; if readDisk is
// false it hands back a fresh (all-FREE, all-UNALLOCATED) PageManager, as
// by a just-completed Format. Grounded on project6_construct_meta_data.
func Construct(part interfaces.Partition, numDataPages, dataPagesPerBlock uint64, readDisk bool) (*MetadataStore, *PageManager, Status) {
	bitmapPages, mapperStart, mapperPages := layoutFor(part, numDataPages)

	ms := &MetadataStore{
		part:        part,
		bitmapStart: metaBitmapStart,
		bitmapPages: bitmapPages,
		mapperStart: mapperStart,
		mapperPages: mapperPages,
	}

	capacity := uint64(part.NumBlocks() * part.PagesPerBlock())
	if mapperStart+mapperPages > capacity {
		return nil, nil, StatusAllocFail
	}

	if !readDisk {
		return ms, NewPageManager(numDataPages, dataPagesPerBlock), StatusOK
	}

	sig := make([]byte, part.PageSize())
	if err := part.ReadPage(metaSignaturePage, sig); err != nil {
		return nil, nil, StatusIoRead
	}
	if binary.LittleEndian.Uint32(sig[signatureMagicOffset:]) != signatureMagic {
		return nil, nil, StatusMustFormat
	}
	totalWrittenPage := uint64(binary.LittleEndian.Uint32(sig[signatureTWPOffset:]))

	bitmap, st := ms.readRegion(ms.bitmapStart, ms.bitmapPages)
	if st != StatusOK {
		return nil, nil, st
	}
	bitmap = bitmap[:bitmapBytes(numDataPages)]

	mapperBytes, st := ms.readRegion(ms.mapperStart, ms.mapperPages)
	if st != StatusOK {
		return nil, nil, st
	}
	mapper := make([]uint64, numDataPages)
	for i := range mapper {
		mapper[i] = binary.LittleEndian.Uint64(mapperBytes[i*8:])
	}

	pm := NewPageManagerFromDisk(numDataPages, dataPagesPerBlock, bitmap, mapper, totalWrittenPage)
	return ms, pm, StatusOK
}

func (ms *MetadataStore) readRegion(start, pages uint64) ([]byte, Status) {
	pageSize := uint64(ms.part.PageSize())
	out := make([]byte, pages*pageSize)
	buf := make([]byte, pageSize)
	for i := uint64(0); i < pages; i++ {
		if err := ms.part.ReadPage(int(start+i), buf); err != nil {
			return nil, StatusIoRead
		}
		copy(out[i*pageSize:], buf)
	}
	return out, StatusOK
}

func (ms *MetadataStore) writeRegion(start uint64, data []byte) Status {
	pageSize := uint64(ms.part.PageSize())
	pages := pagesFor(uint64(len(data)), pageSize)
	padded := make([]byte, pages*pageSize)
	copy(padded, data)
	for i := uint64(0); i < pages; i++ {
		if err := ms.part.WritePage(int(start+i), padded[i*pageSize:(i+1)*pageSize]); err != nil {
			return StatusIoWrite
		}
	}
	return StatusOK
}

// Flush erases the META partition's signature/bitmap/mapper blocks and
// rewrites all three regions from pm's current state. Grounded on
// project6_flush_meta_data_to_flash, called at clean unmount (spec.md
// §4.3).
func (ms *MetadataStore) Flush(pm *PageManager) Status {
	totalPages := ms.mapperStart + ms.mapperPages
	blockCount := int(pagesFor(totalPages, uint64(ms.part.PagesPerBlock())))

	ch, err := ms.part.Erase(0, blockCount)
	if err != nil {
		return StatusIoErase
	}
	if st := <-ch; st != interfaces.EraseSuccess {
		return StatusIoErase
	}

	if st := writeSignature(ms.part, pm.TotalWrittenPage()); st != StatusOK {
		return st
	}

	if st := ms.writeRegion(ms.bitmapStart, pm.Bitmap()); st != StatusOK {
		return st
	}

	mapper := pm.Mapper()
	mapperBytes := make([]byte, len(mapper)*8)
	for i, v := range mapper {
		binary.LittleEndian.PutUint64(mapperBytes[i*8:], v)
	}
	return ms.writeRegion(ms.mapperStart, mapperBytes)
}

func (ms *MetadataStore) String() string {
	return fmt.Sprintf("metadata{bitmap=[%d,%d) mapper=[%d,%d)}",
		ms.bitmapStart, ms.bitmapStart+ms.bitmapPages,
		ms.mapperStart, ms.mapperStart+ms.mapperPages)
}
