package fileinfo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t9t/ntfsindex/fileinfo"
	"github.com/t9t/ntfsindex/mft"
)

func TestNew_PacksSizeAndDirectoryBit(t *testing.T) {
	f := fileinfo.New("report.pdf", 42, 12345, false)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, uint64(42), f.Parent)
	assert.Equal(t, uint64(12345), f.Size())
	assert.False(t, f.IsDirectory())
}

func TestNew_DirectorySizeIsAlwaysZero(t *testing.T) {
	f := fileinfo.New("Documents", 5, 999, true)
	assert.Equal(t, uint64(0), f.Size())
	assert.True(t, f.IsDirectory())
}

func TestNew_ParentIsMaskedTo48Bits(t *testing.T) {
	f := fileinfo.New("x", 0xFFFFFFFFFFFFFFFF, 0, false)
	assert.Equal(t, uint64(1)<<48-1, f.Parent)
}

func TestExtract_PrefersWin32Namespace(t *testing.T) {
	record := mft.Record{
		Header: mft.RecordHeader{Flags: 0},
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{
				ParentFileReference: mft.FileReference{RecordNumber: 10},
				RealSize:            100,
				Namespace:           2, // DOS, should be skipped in favor of Win32
				Name:                "longfilename.txt",
			}),
			fileNameAttribute(t, mft.FileName{
				ParentFileReference: mft.FileReference{RecordNumber: 10},
				RealSize:            100,
				Namespace:           1, // Win32
				Name:                "longfi~1.txt",
			}),
		},
	}

	info, ok := fileinfo.Extract(record)
	require.True(t, ok)
	assert.Equal(t, "longfi~1.txt", info.Name)
	assert.Equal(t, uint64(10), info.Parent)
}

func TestExtract_SkipsReparsePoints(t *testing.T) {
	record := mft.Record{
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{
				ParentFileReference: mft.FileReference{RecordNumber: 3},
				Flags:               mft.FileAttributeReparsePoint,
				Namespace:           1,
				Name:                "symlink",
			}),
			fileNameAttribute(t, mft.FileName{
				ParentFileReference: mft.FileReference{RecordNumber: 3},
				Namespace:           0,
				Name:                "fallback.txt",
			}),
		},
	}

	info, ok := fileinfo.Extract(record)
	require.True(t, ok)
	assert.Equal(t, "fallback.txt", info.Name)
}

func TestExtract_NoUsableFileNameAttribute(t *testing.T) {
	record := mft.Record{
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{
				Flags: mft.FileAttributeReparsePoint,
				Name:  "onlyreparse",
			}),
		},
	}

	_, ok := fileinfo.Extract(record)
	assert.False(t, ok)
}

func TestExtract_SizeIsMaxOfDataAndNameRealSize(t *testing.T) {
	record := mft.Record{
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{Namespace: 1, Name: "a.txt", RealSize: 500}),
			{Type: mft.AttributeTypeData, Resident: false, AllocatedSize: 4096, ActualSize: 300},
		},
	}

	info, ok := fileinfo.Extract(record)
	require.True(t, ok)
	assert.Equal(t, uint64(4096), info.Size())
}

func TestExtract_IgnoresNamedDataStreams(t *testing.T) {
	record := mft.Record{
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{Namespace: 1, Name: "a.txt", RealSize: 10}),
			{Type: mft.AttributeTypeData, Name: "Zone.Identifier", Resident: true, Data: make([]byte, 9999)},
		},
	}

	info, ok := fileinfo.Extract(record)
	require.True(t, ok)
	assert.Equal(t, uint64(10), info.Size())
}

func TestExtract_DirectoryFlagComesFromRecordHeader(t *testing.T) {
	record := mft.Record{
		Header: mft.RecordHeader{Flags: mft.RecordFlagInUse | mft.RecordFlagIsDirectory},
		Attributes: []mft.Attribute{
			fileNameAttribute(t, mft.FileName{Namespace: 1, Name: "Documents"}),
		},
	}

	info, ok := fileinfo.Extract(record)
	require.True(t, ok)
	assert.True(t, info.IsDirectory())
	assert.Equal(t, uint64(0), info.Size())
}

// fileNameAttribute encodes a FileName struct into a resident attribute the way $FILE_NAME attributes actually look,
// reusing the real binary layout instead of special-casing the test path through a fake accessor.
func fileNameAttribute(t *testing.T, fn mft.FileName) mft.Attribute {
	t.Helper()
	return mft.Attribute{
		Type:     mft.AttributeTypeFileName,
		Resident: true,
		Data:     encodeFileName(fn),
	}
}

// encodeFileName is the inverse of mft.ParseFileName, built only for test fixtures.
func encodeFileName(fn mft.FileName) []byte {
	nameUtf16 := make([]byte, 0, len(fn.Name)*2)
	for _, r := range fn.Name {
		nameUtf16 = append(nameUtf16, byte(r), byte(r>>8))
	}

	b := make([]byte, 66+len(nameUtf16))
	putUint64(b[0x00:], fn.ParentFileReference.RecordNumber|(uint64(fn.ParentFileReference.SequenceNumber)<<48))
	putUint64(b[0x28:], fn.AllocatedSize)
	putUint64(b[0x30:], fn.RealSize)
	putUint32(b[0x38:], uint32(fn.Flags))
	b[0x40] = byte(len(fn.Name))
	b[0x41] = byte(fn.Namespace)
	copy(b[0x42:], nameUtf16)
	return b
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
