package volume_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t9t/ntfsindex/volume"
)

const recordSize = 1024
const sectorSize = 512

func putUint16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// buildMFTRecord constructs the MFT's own (pre-fixup) file record, holding a single non-resident $DATA attribute
// whose data runs describe one extent starting at cluster runOffset spanning runLength clusters.
func buildMFTRecord(runOffset, runLength uint64, actualSize uint64) []byte {
	b := make([]byte, recordSize)
	copy(b[0:4], "FILE")

	const usaOffset = 42
	const usaCount = 3
	putUint16(b[4:], usaOffset)
	putUint16(b[6:], usaCount)

	const firstAttributeOffset = 56
	putUint16(b[0x14:], firstAttributeOffset)
	putUint16(b[0x16:], 1) // in-use, not a directory

	dataRuns := []byte{0x11, byte(runLength), byte(runOffset), 0x00}
	const nonResidentTailSize = 0x40 // 64 bytes: the whole non-resident header, from type through initialized_size
	attrLength := nonResidentTailSize + len(dataRuns)

	attr := make([]byte, attrLength)
	putUint32(attr[0x00:], 0x80) // $DATA
	putUint32(attr[0x04:], uint32(attrLength))
	attr[0x08] = 1 // non-resident
	putUint16(attr[0x20:], nonResidentTailSize)
	putUint64(attr[0x28:], (runLength)*4096) // allocated_size, arbitrary cluster size assumption for the fixture
	putUint64(attr[0x30:], actualSize)
	copy(attr[nonResidentTailSize:], dataRuns)

	copy(b[firstAttributeOffset:], attr)
	terminatorOffset := firstAttributeOffset + attrLength
	putUint32(b[terminatorOffset:], 0xFFFFFFFF)
	putUint32(b[0x18:], uint32(terminatorOffset+4))
	putUint32(b[0x1C:], recordSize)

	usaSignature := []byte{0x01, 0x02}
	copy(b[usaOffset:usaOffset+2], usaSignature)
	copy(b[usaOffset+2:usaOffset+4], []byte{0x11, 0x11})
	copy(b[usaOffset+4:usaOffset+6], []byte{0x22, 0x22})
	copy(b[sectorSize-2:sectorSize], usaSignature)
	copy(b[2*sectorSize-2:2*sectorSize], usaSignature)

	return b
}

func TestResolveMFTRuns_DecodesDataRunsAndTotalSize(t *testing.T) {
	data := buildMFTRecord(2, 4, 16000)
	r := bytes.NewReader(data)

	geometry := volume.Geometry{
		BytesPerCluster:           4096,
		BytesPerFileRecordSegment: recordSize,
		MftStartLcn:               0,
	}

	totalSize, runs, err := volume.ResolveMFTRuns(r, geometry)
	require.NoError(t, err)
	assert.Equal(t, int64(16000), totalSize)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(2*4096), runs[0].Offset)
	assert.Equal(t, int64(4*4096), runs[0].Length)
}

func TestResolveMFTRuns_UsesClusterOffsetForReadPosition(t *testing.T) {
	data := buildMFTRecord(1, 1, 4096)
	padding := make([]byte, 8192)
	combined := append(padding, data...)
	r := bytes.NewReader(combined)

	geometry := volume.Geometry{
		BytesPerCluster:           4096,
		BytesPerFileRecordSegment: recordSize,
		MftStartLcn:               2, // MftClusterOffset = 4096*2 = 8192, exactly where buildMFTRecord's bytes start
	}

	_, runs, err := volume.ResolveMFTRuns(r, geometry)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestResolveMFTRuns_MissingDataAttributeIsRecordMalformed(t *testing.T) {
	b := make([]byte, recordSize)
	copy(b[0:4], "FILE")
	const usaOffset = 42
	putUint16(b[4:], usaOffset)
	putUint16(b[6:], 3)
	putUint16(b[0x14:], 56)
	putUint16(b[0x16:], 1)
	putUint32(b[0x18:], 60)
	putUint32(b[0x1C:], recordSize)
	putUint32(b[56:], 0xFFFFFFFF) // terminator only, no attributes at all
	usaSignature := []byte{0x01, 0x02}
	copy(b[usaOffset:usaOffset+2], usaSignature)
	copy(b[usaOffset+2:usaOffset+4], []byte{0x11, 0x11})
	copy(b[usaOffset+4:usaOffset+6], []byte{0x22, 0x22})
	copy(b[sectorSize-2:sectorSize], usaSignature)
	copy(b[2*sectorSize-2:2*sectorSize], usaSignature)

	r := bytes.NewReader(b)
	geometry := volume.Geometry{BytesPerCluster: 4096, BytesPerFileRecordSegment: recordSize}

	_, _, err := volume.ResolveMFTRuns(r, geometry)
	assert.Error(t, err)
}

func TestResolveMFTRuns_InvalidRecordSegmentSizeIsRejected(t *testing.T) {
	geometry := volume.Geometry{BytesPerCluster: 4096, BytesPerFileRecordSegment: 0}
	_, _, err := volume.ResolveMFTRuns(bytes.NewReader(nil), geometry)
	assert.Error(t, err)
}
