// Package memdevice implements interfaces.Partition entirely in memory,
// backed by dsnet/golib/memfile. It stands in for a real flash partition in
// tests and in any flow that doesn't need durability across process
// restarts — the analogue of the teacher's ParentBufMgrDummy/ParentPageDummy
// in-memory stand-ins for its parent buffer manager.
package memdevice

import (
	"fmt"

	"github.com/dsnet/golib/memfile"

	"github.com/achauhan-vt/nandkv/interfaces"
)

// Partition is an in-memory interfaces.Partition. Erase completes
// synchronously (there is no hardware latency to model) but still reports
// its result on a channel so callers exercise the same completion protocol
// as a real device.
type Partition struct {
	pageSize      int
	blockSize     int
	pagesPerBlock int
	numBlocks     int
	file          *memfile.File
}

// New creates an erased (0xFF-filled, matching an erased NAND cell) partition
// of numBlocks blocks, each blockSize bytes, addressed in pageSize chunks.
func New(numBlocks, blockSize, pageSize int) *Partition {
	if blockSize%pageSize != 0 {
		panic("memdevice: blockSize must be a multiple of pageSize")
	}
	buf := make([]byte, numBlocks*blockSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	return &Partition{
		pageSize:      pageSize,
		blockSize:     blockSize,
		pagesPerBlock: blockSize / pageSize,
		numBlocks:     numBlocks,
		file:          memfile.New(buf),
	}
}

func (p *Partition) PageSize() int      { return p.pageSize }
func (p *Partition) BlockSize() int     { return p.blockSize }
func (p *Partition) PagesPerBlock() int { return p.pagesPerBlock }
func (p *Partition) NumBlocks() int     { return p.numBlocks }

func (p *Partition) ReadPage(pp int, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("memdevice: read buffer must be %d bytes, got %d", p.pageSize, len(buf))
	}
	off := int64(pp) * int64(p.pageSize)
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return fmt.Errorf("memdevice: read page %d: %w", pp, err)
	}
	return nil
}

func (p *Partition) WritePage(pp int, buf []byte) error {
	if len(buf) != p.pageSize {
		return fmt.Errorf("memdevice: write buffer must be %d bytes, got %d", p.pageSize, len(buf))
	}
	off := int64(pp) * int64(p.pageSize)
	if _, err := p.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("memdevice: write page %d: %w", pp, err)
	}
	return nil
}

func (p *Partition) Erase(firstBlock, count int) (<-chan interfaces.EraseStatus, error) {
	if firstBlock < 0 || count < 0 || firstBlock+count > p.numBlocks {
		return nil, fmt.Errorf("memdevice: erase range [%d,%d) out of bounds", firstBlock, firstBlock+count)
	}
	done := make(chan interfaces.EraseStatus, 1)

	off := int64(firstBlock) * int64(p.blockSize)
	n := count * p.blockSize
	blank := make([]byte, n)
	for i := range blank {
		blank[i] = 0xFF
	}
	if _, err := p.file.WriteAt(blank, off); err != nil {
		done <- interfaces.EraseFailure
		return done, nil
	}
	done <- interfaces.EraseSuccess
	return done, nil
}
