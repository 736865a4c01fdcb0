// Package nandkv implements a log-structured key/value store addressed
// through a hash-placed virtual-page mapping over a physically
// out-of-place-written NAND partition, grounded on the teacher's
// constructor-and-lifecycle style (bufmgr.go's NewBufMgr/Close) and on
// original_source/core.c, keyval.c, page_manager.c, meta_data.c and
// garbage_collector.c for the on-disk semantics.
package nandkv

import (
	"fmt"
	"io"
	"log"

	"github.com/achauhan-vt/nandkv/cache"
	"github.com/achauhan-vt/nandkv/interfaces"
)

// gcThreshold mirrors the literal `2` set_keyval/del_keyval pass to
// project6_garbage_collection: a block is reclaimed once at least
// pagesPerBlock/gcThreshold (half) of its pages are INVALID. When GC runs
// at all is decided separately, by maybeCollect.
const gcThreshold = 2

// Engine is the key/value store. One Engine owns one META partition and
// one DATA partition; both must be supplied already open.
type Engine struct {
	metaPart interfaces.Partition
	dataPart interfaces.Partition

	ms *MetadataStore
	pm *PageManager
	gc *GarbageCollector

	cache  *cache.Cache
	logger *log.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger routes the engine's diagnostic output through l instead of
// discarding it.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCacheCapacity overrides the lookup cache's entry limit
// (cache.Capacity by default).
func WithCacheCapacity(n int) Option {
	return func(e *Engine) { e.cache = cache.New(n) }
}

func newEngine(metaPart, dataPart interfaces.Partition, ms *MetadataStore, pm *PageManager, opts ...Option) *Engine {
	e := &Engine{
		metaPart: metaPart,
		dataPart: dataPart,
		ms:       ms,
		pm:       pm,
		gc:       NewGarbageCollector(dataPart, uint64(dataPart.PagesPerBlock())),
		cache:    cache.New(cache.Capacity),
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Format erases both partitions and writes a fresh, empty mapping,
// returning an Engine ready for use. Grounded on
// project6_flush_meta_data_to_flash, which this mirrors by constructing
// an in-memory PageManager from scratch and immediately flushing it.
func Format(metaPart, dataPart interfaces.Partition, opts ...Option) (*Engine, Status) {
	for _, part := range []interfaces.Partition{metaPart, dataPart} {
		ch, err := part.Erase(0, part.NumBlocks())
		if err != nil {
			return nil, StatusIoErase
		}
		if s := <-ch; s != interfaces.EraseSuccess {
			return nil, StatusIoErase
		}
	}

	numDataPages := uint64(dataPart.NumBlocks() * dataPart.PagesPerBlock())

	ms, pm, st := Construct(metaPart, numDataPages, uint64(dataPart.PagesPerBlock()), false)
	if st != StatusOK {
		return nil, st
	}
	if st := ms.Flush(pm); st != StatusOK {
		return nil, st
	}
	return newEngine(metaPart, dataPart, ms, pm, opts...), StatusOK
}

// Mount reconstructs an Engine from what's already on the META partition.
// It returns StatusMustFormat if the signature page doesn't match —
// spec.md §7 — in which case the caller must call Format instead.
func Mount(metaPart, dataPart interfaces.Partition, opts ...Option) (*Engine, Status) {
	numDataPages := uint64(dataPart.NumBlocks() * dataPart.PagesPerBlock())

	ms, pm, st := Construct(metaPart, numDataPages, uint64(dataPart.PagesPerBlock()), true)
	if st != StatusOK {
		return nil, st
	}
	return newEngine(metaPart, dataPart, ms, pm, opts...), StatusOK
}

// Close flushes the mapper and bitmap back to the META partition, the
// only point at which either is durably persisted (spec.md §5: a crash
// between Close calls loses everything written since the last one).
func (e *Engine) Close() Status {
	return e.ms.Flush(e.pm)
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// probe walks the open-addressed hash chain starting at djb2Hash(key),
// exactly as get_key_page/get_keyval do: an UNMAPPED slot ends the
// search (the key was never written), an INVALID or GARBAGE-RECLAIMED
// slot is skipped, and a VALID slot is read and compared.
func (e *Engine) probe(key string) (vp uint64, numPages uint32, value []byte, found bool, st Status) {
	n := e.pm.NumPages()
	vp = djb2Hash(key, n)

	for counter := uint64(0); counter <= n; counter++ {
		state, pp := e.pm.GetExistingMapping(vp)
		switch state {
		case MappingNotMapped:
			return 0, 0, nil, false, StatusOK
		case MappingValid:
			head := make([]byte, e.dataPart.PageSize())
			if err := e.dataPart.ReadPage(int(pp), head); err != nil {
				return 0, 0, nil, false, StatusIoRead
			}
			marker, np, keyLen, _ := decodeHeadPage(head)
			if marker == markerNewKey && int(keyLen) == len(key) {
				k, v, st := e.readRecord(vp, np, head)
				if st != StatusOK {
					return 0, 0, nil, false, st
				}
				if string(k) == key {
					return vp, np, v, true, StatusOK
				}
			}
		}
		vp = (vp + 1) % n
	}
	return 0, 0, nil, false, StatusOK
}

// readRecord reassembles the full key and value bytes for a record whose
// head page has already been read into head. It is the exact inverse of
// writeRecord/encodeHeadPage/encodeContPage.
func (e *Engine) readRecord(vp uint64, numPages uint32, head []byte) (key, value []byte, st Status) {
	_, _, keyLen, valLen := decodeHeadPage(head)
	total := int(keyLen) + int(valLen)
	stream := make([]byte, 0, total)

	headCap := len(head) - headHeaderSize
	if headCap > total {
		headCap = total
	}
	stream = append(stream, head[headHeaderSize:headHeaderSize+headCap]...)

	buf := make([]byte, e.dataPart.PageSize())
	for i := uint32(1); i < numPages; i++ {
		state, pp := e.pm.GetExistingMapping(vp + uint64(i))
		if state != MappingValid {
			return nil, nil, StatusNotFound
		}
		if err := e.dataPart.ReadPage(int(pp), buf); err != nil {
			return nil, nil, StatusIoRead
		}
		remaining := total - len(stream)
		contCap := len(buf) - contHeaderSize
		if contCap > remaining {
			contCap = remaining
		}
		stream = append(stream, buf[contHeaderSize:contHeaderSize+contCap]...)
	}

	return stream[:keyLen], stream[keyLen : keyLen+uint32(valLen)], StatusOK
}

// writeRecord lays a new key/value record across vp..vp+numPages-1,
// whose mappings must already exist and be VALID (just allocated by
// CreateMappingMultipage).
func (e *Engine) writeRecord(vp uint64, numPages uint32, key, value []byte) Status {
	pageSize := e.dataPart.PageSize()
	buf := make([]byte, pageSize)

	keyConsumed, valConsumed := encodeHeadPage(buf, numPages, uint32(len(key)), uint32(len(value)), key, value)
	_, pp := e.pm.GetExistingMapping(vp)
	if err := e.dataPart.WritePage(int(pp), buf); err != nil {
		return StatusIoWrite
	}

	remaining := make([]byte, 0, (len(key)-keyConsumed)+(len(value)-valConsumed))
	remaining = append(remaining, key[keyConsumed:]...)
	remaining = append(remaining, value[valConsumed:]...)

	for i := uint32(1); i < numPages; i++ {
		consumed := encodeContPage(buf, remaining)
		_, pp := e.pm.GetExistingMapping(vp + uint64(i))
		if err := e.dataPart.WritePage(int(pp), buf); err != nil {
			return StatusIoWrite
		}
		remaining = remaining[consumed:]
	}
	return StatusOK
}

// maybeCollect runs GC when more than half of the DATA partition is
// written, matching set_keyval/del_keyval's inline check.
func (e *Engine) maybeCollect() {
	if e.pm.TotalWrittenPage() > e.pm.NumPages()/2 {
		if st := e.gc.Collect(e.pm, gcThreshold); st != StatusOK {
			e.logf("garbage collection failed: %v", st)
		}
	}
}

// Get returns the value stored for key, or StatusNotFound if it was
// never set or has since been deleted.
func (e *Engine) Get(key string) (string, Status) {
	if entry, ok := e.cache.Lookup(key); ok {
		return string(entry.Value), StatusOK
	}

	vp, numPages, value, found, st := e.probe(key)
	if st != StatusOK {
		return "", st
	}
	if !found {
		return "", StatusNotFound
	}
	e.cache.Add(key, vp, numPages, value)
	return string(value), StatusOK
}

// Set stores value for key, invalidating any prior record for the same
// key first. Grounded on set_keyval, including its fail: label: any
// failure past the invalidate step removes key's cache entry too, so a
// superseded value never survives a failed overwrite as a stale hit.
func (e *Engine) Set(key, value string) Status {
	e.maybeCollect()

	if st := e.invalidateExisting(key); st != StatusOK && st != StatusAlreadyInvalid {
		e.logf("set %q: invalidating previous record: %v", key, st)
	}

	keyBytes := []byte(key)
	valBytes := []byte(value)
	numPages := numPagesFor(len(keyBytes), len(valBytes), e.dataPart.PageSize())

	n := e.pm.NumPages()
	vp := djb2Hash(key, n)

	for counter := uint64(0); counter <= n; counter++ {
		state, _ := e.pm.GetExistingMapping(vp)
		if state == MappingNotMapped || state == MappingReclaimed {
			st := e.pm.CreateMappingMultipage(vp, numPages)
			switch st {
			case StatusOK:
				if st := e.writeRecord(vp, numPages, keyBytes, valBytes); st != StatusOK {
					e.cache.Remove(key)
					return st
				}
				e.cache.Update(key, vp, numPages, valBytes)
				return StatusOK
			case statusNotPermitted:
				// the run starting at vp doesn't have numPages
				// consecutive free slots; keep probing.
			default:
				// The pre-check passed, so any page of the run that is
				// VALID now was bound by this failed attempt: release it.
				for i := uint32(0); i < numPages; i++ {
					if s, _ := e.pm.GetExistingMapping(vp + uint64(i)); s == MappingValid {
						e.pm.MarkVPageInvalid(vp+uint64(i), 1)
					}
				}
				e.cache.Remove(key)
				return st
			}
		}
		vp = (vp + 1) % n
	}
	e.cache.Remove(key)
	return StatusNoSpace
}

// Delete removes key's record, if present.
func (e *Engine) Delete(key string) Status {
	e.maybeCollect()

	if entry, ok := e.cache.Lookup(key); ok {
		st := e.pm.MarkVPageInvalid(entry.VPage, uint64(entry.NumPages))
		e.cache.Remove(key)
		return st
	}

	vp, numPages, _, found, st := e.probe(key)
	if st != StatusOK {
		return st
	}
	if !found {
		return StatusNotFound
	}
	return e.pm.MarkVPageInvalid(vp, uint64(numPages))
}

// invalidateExisting marks any record currently stored for key as
// INVALID, using the cache to skip the probe when possible.
func (e *Engine) invalidateExisting(key string) Status {
	if entry, ok := e.cache.Lookup(key); ok {
		return e.pm.MarkVPageInvalid(entry.VPage, uint64(entry.NumPages))
	}
	vp, numPages, _, found, st := e.probe(key)
	if st != StatusOK {
		return st
	}
	if !found {
		return StatusOK
	}
	return e.pm.MarkVPageInvalid(vp, uint64(numPages))
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine{%s written=%d/%d}", e.ms, e.pm.TotalWrittenPage(), e.pm.NumPages())
}
