/*
	Package fileinfo extracts the compact per-record summary (name, parent, size, directory bit) that the indexer
	stores for every live MFT record.

	A FileInfo packs size and the directory bit into a single 64-bit word so that the record table, which has one
	entry per MFT record and can run into the millions, stays within its per-entry byte budget. Go has no small-string
	optimization for strings the way a systems language with custom string types might, so Name is stored as a plain
	string; this is a deliberate deviation documented alongside the rest of the packing decisions.
*/
package fileinfo

import (
	"github.com/t9t/ntfsindex/mft"
)

// sizeDirectoryBit marks the top bit of the packed size/directory word.
const sizeDirectoryBit = uint64(1) << 63

// parentMask keeps only the low 48 bits of an 8-byte parent file reference, matching the 48-bit MFT index budget.
const parentMask = uint64(1)<<48 - 1

// FileInfo is the compact, per-record summary held by the index store. It is deliberately small: Parent is masked to
// 48 bits and Size/IsDirectory share one packed word, keeping each live entry within the index table's per-record
// budget.
type FileInfo struct {
	Name   string
	Parent uint64
	packed uint64
}

// New builds a FileInfo from already-extracted fields, packing size and the directory bit into one word.
func New(name string, parent uint64, size uint64, isDirectory bool) FileInfo {
	return FileInfo{
		Name:   name,
		Parent: parent & parentMask,
		packed: pack(size, isDirectory),
	}
}

func pack(size uint64, isDirectory bool) uint64 {
	packed := size &^ sizeDirectoryBit
	if isDirectory {
		packed |= sizeDirectoryBit
	}
	return packed
}

// Size returns the logical file length in bytes. Directories always report 0.
func (f FileInfo) Size() uint64 {
	if f.IsDirectory() {
		return 0
	}
	return f.packed &^ sizeDirectoryBit
}

// IsDirectory reports whether this record describes a directory.
func (f FileInfo) IsDirectory() bool {
	return f.packed&sizeDirectoryBit != 0
}

// Extract decodes a live file record's primary $FILE_NAME attribute, its $DATA attribute, and its directory flag into
// a FileInfo. ok is false when no usable $FILE_NAME attribute could be found (record should be indexed as an empty
// slot in that case).
func Extract(record mft.Record) (info FileInfo, ok bool) {
	fileName, found := primaryFileName(record)
	if !found {
		return FileInfo{}, false
	}

	size := sizeFromAttributes(record, fileName)
	isDirectory := record.Header.IsDirectory()

	return New(fileName.Name, fileName.ParentFileReference.RecordNumber, size, isDirectory), true
}

// primaryFileName selects the attribute used for the record's primary name, per the namespace preference: prefer
// Win32 or Win32AndDOS; otherwise fall back to the last non-reparse instance encountered. Attributes whose flags
// indicate a reparse point are skipped entirely; the record is still indexable via a non-reparse alternative if one
// exists.
func primaryFileName(record mft.Record) (mft.FileName, bool) {
	var fallback mft.FileName
	haveFallback := false

	for _, attr := range record.FindAttributes(mft.AttributeTypeFileName) {
		if !attr.Resident {
			continue
		}
		fileName, err := mft.ParseFileName(attr.Data)
		if err != nil {
			continue
		}
		if fileName.Flags.Is(mft.FileAttributeReparsePoint) {
			continue
		}

		if fileName.Namespace == namespaceWin32 || fileName.Namespace == namespaceWin32AndDos {
			return fileName, true
		}

		fallback = fileName
		haveFallback = true
	}

	return fallback, haveFallback
}

const (
	namespaceWin32       mft.FileNameNamespace = 1
	namespaceWin32AndDos mft.FileNameNamespace = 3
)

// sizeFromAttributes computes max(data-attribute size, name-attribute real size), tolerating records where either is
// unreliable. Non-resident $DATA uses allocated size (covers sparse/compressed files); resident $DATA uses its value
// length; an absent $DATA attribute contributes zero.
func sizeFromAttributes(record mft.Record, fileName mft.FileName) uint64 {
	dataSize := uint64(0)
	for _, attr := range record.FindAttributes(mft.AttributeTypeData) {
		if attr.Name != "" {
			continue // alternate data streams are out of scope; only the unnamed stream counts toward size
		}
		size := attr.AllocatedSize
		if attr.Resident {
			size = uint64(len(attr.Data))
		}
		if size > dataSize {
			dataSize = size
		}
	}

	if fileName.RealSize > dataSize {
		return fileName.RealSize
	}
	return dataSize
}
