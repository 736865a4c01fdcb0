package nandkv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDjb2Hash_IsStableAndInRange(t *testing.T) {
	h1 := djb2Hash("hello", 97)
	h2 := djb2Hash("hello", 97)
	assert.Equal(t, h1, h2)
	assert.Less(t, h1, uint64(97))

	// "" is the djb2 seed itself mod n.
	assert.Equal(t, uint64(5381)%97, djb2Hash("", 97))
}

func TestNumPagesFor(t *testing.T) {
	tests := []struct {
		name           string
		keyLen, valLen int
		pageSize       int
	}{
		{"fits easily in one page", 3, 5, 64},
		{"spills into a second page", 4, 56, 64},
		{"small overflow needs second page", 10, 40, 64},
		{"clearly needs several pages", 100, 100, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := numPagesFor(tt.keyLen, tt.valLen, tt.pageSize)
			total := 12 + tt.keyLen + tt.valLen
			capacity := tt.pageSize - 4
			wantPages := uint32(total / capacity)
			if total%capacity != 0 {
				wantPages++
			}
			assert.Equal(t, wantPages, got)
		})
	}
}

func TestEncodeDecodeHeadPage_RoundTrip(t *testing.T) {
	pageSize := 64
	key := []byte("shortkey")
	value := []byte("shortvalue")

	buf := make([]byte, pageSize)
	keyConsumed, valConsumed := encodeHeadPage(buf, 1, uint32(len(key)), uint32(len(value)), key, value)
	require.Equal(t, len(key), keyConsumed)
	require.Equal(t, len(value), valConsumed)

	marker, numPages, keyLen, valLen := decodeHeadPage(buf)
	assert.Equal(t, markerNewKey, marker)
	assert.Equal(t, uint32(1), numPages)
	assert.Equal(t, uint32(len(key)), keyLen)
	assert.Equal(t, uint32(len(value)), valLen)

	assert.Equal(t, key, buf[headHeaderSize:headHeaderSize+keyConsumed])
	assert.Equal(t, value, buf[headHeaderSize+keyConsumed:headHeaderSize+keyConsumed+valConsumed])
}

func TestEncodeHeadPage_TruncatesWhenOversized(t *testing.T) {
	pageSize := 32 // capacity for key+value after the 16-byte header is 16 bytes
	key := []byte(strings.Repeat("k", 10))
	value := []byte(strings.Repeat("v", 20))

	buf := make([]byte, pageSize)
	keyConsumed, valConsumed := encodeHeadPage(buf, 3, uint32(len(key)), uint32(len(value)), key, value)

	assert.Equal(t, 10, keyConsumed, "key fits entirely")
	assert.Equal(t, 6, valConsumed, "only the remaining 6 bytes of capacity go to value")
}

func TestEncodeContPage(t *testing.T) {
	buf := make([]byte, 16)
	payload := []byte("0123456789abcdefghij")

	consumed := encodeContPage(buf, payload)
	assert.Equal(t, len(buf)-contHeaderSize, consumed)
	assert.Equal(t, markerPrevKey, uint32FromLE(buf[0:4]))
	assert.Equal(t, payload[:consumed], buf[contHeaderSize:])
}

func uint32FromLE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
