package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/t9t/ntfsindex/binutil"
	"github.com/t9t/ntfsindex/mft"
	"github.com/t9t/ntfsindex/utf16"
)

// usnRecordV3FixedSize is the size, in bytes, of a USN_RECORD_V3 up to (but not including) its variable-length
// FileName field.
const usnRecordV3FixedSize = 0x4C

// Reason bit values for USN_RECORD_V3.Reason. Only the subset the journal reader acts on is named here; any other
// bit combination results in the record being dropped during normalization.
const (
	reasonFileCreate    uint32 = 0x00000100
	reasonFileDelete    uint32 = 0x00000200
	reasonRenameOldName uint32 = 0x00001000
	reasonRenameNewName uint32 = 0x00002000
)

// attributeDirectory is the Win32 FILE_ATTRIBUTE_DIRECTORY bit as reported in a USN record's FileAttributes field.
// It uses the same Win32 bit layout as mft.FileAttribute, which declares no constant for the directory bit.
const attributeDirectory uint32 = 0x00000010

// usnRecord is one decoded USN_RECORD_V3.
type usnRecord struct {
	RecordLength   uint32
	MajorVersion   uint16
	Mft            uint64
	ParentMft      uint64
	Usn            uint64
	Reason         uint32
	FileAttributes uint32
	FileName       string
}

func (r usnRecord) isDirectory() bool {
	return r.FileAttributes&attributeDirectory != 0
}

// parseUSNRecordV3 parses one USN_RECORD_V3 from the front of b. The MFT index carried in FileReferenceNumber and
// ParentFileReferenceNumber is the low 48 bits of their first 8 bytes, same as an MFT FileReference; the remaining
// bytes of the 128-bit file ID are sequence-number/ReFS-only data this reader does not use.
func parseUSNRecordV3(b []byte) (usnRecord, error) {
	if len(b) < usnRecordV3FixedSize {
		return usnRecord{}, fmt.Errorf("usn record data should be at least %d bytes but is %d", usnRecordV3FixedSize, len(b))
	}

	r := binutil.NewLittleEndianReader(b)
	recordLength := r.Uint32(0x00)

	mftRef, err := mft.ParseFileReference(r.Read(0x08, 8))
	if err != nil {
		return usnRecord{}, fmt.Errorf("unable to parse file reference: %w", err)
	}
	parentRef, err := mft.ParseFileReference(r.Read(0x18, 8))
	if err != nil {
		return usnRecord{}, fmt.Errorf("unable to parse parent file reference: %w", err)
	}

	nameLength := int(r.Uint16(0x48))
	nameOffset := int(r.Uint16(0x4A))
	if len(b) < nameOffset+nameLength {
		return usnRecord{}, fmt.Errorf("expected at least %d bytes for file name but got %d", nameOffset+nameLength, len(b))
	}
	name, err := utf16.DecodeString(r.Read(nameOffset, nameLength), binary.LittleEndian)
	if err != nil {
		return usnRecord{}, fmt.Errorf("unable to decode file name: %w", err)
	}

	return usnRecord{
		RecordLength:   recordLength,
		MajorVersion:   r.Uint16(0x04),
		Mft:            mftRef.RecordNumber,
		ParentMft:      parentRef.RecordNumber,
		Usn:            r.Uint64(0x28),
		Reason:         r.Uint32(0x38),
		FileAttributes: r.Uint32(0x44),
		FileName:       name,
	}, nil
}
