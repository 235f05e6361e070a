package volume

import (
	"fmt"
	"io"

	"github.com/t9t/ntfsindex/fragment"
	"github.com/t9t/ntfsindex/mft"
	"github.com/t9t/ntfsindex/ntfserr"
)

// ResolveMFTRuns locates the MFT's own $DATA extent: it reads the MFT's first file-record-segment at
// geometry.MftClusterOffset(), applies fixup, and decodes its $DATA attribute to obtain the MFT's total size and the
// list of fragments (absolute byte ranges) describing where its records live on disk. r must expose the MFT's own
// record at that offset; on Windows this is the volume's ReadAt, which uses the same bulk-read timeout as every other
// read.
func ResolveMFTRuns(r io.ReaderAt, geometry Geometry) (totalSize int64, runs []fragment.Fragment, err error) {
	recordSize := geometry.BytesPerFileRecordSegment
	if recordSize <= 0 {
		return 0, nil, ntfserr.New(ntfserr.MftRead, fmt.Errorf("invalid file record segment size %d", recordSize))
	}

	buf := make([]byte, recordSize)
	if _, err := r.ReadAt(buf, geometry.MftClusterOffset()); err != nil {
		return 0, nil, ntfserr.New(ntfserr.MftRead, err)
	}

	record, err := mft.ParseRecord(buf, 0)
	if err != nil {
		return 0, nil, ntfserr.New(ntfserr.RecordMalformed, err)
	}

	dataAttrs := record.FindAttributes(mft.AttributeTypeData)
	for _, attr := range dataAttrs {
		if attr.Name != "" {
			continue // named/alternate data stream, not the MFT's primary extent
		}
		if attr.Resident {
			return 0, nil, ntfserr.New(ntfserr.RecordMalformed, fmt.Errorf("MFT's own $DATA attribute is unexpectedly resident"))
		}

		dataRuns, err := mft.ParseDataRuns(attr.Data)
		if err != nil {
			return 0, nil, ntfserr.New(ntfserr.RecordMalformed, fmt.Errorf("unable to parse MFT data runs: %w", err))
		}

		fragments := mft.DataRunsToFragments(dataRuns, geometry.BytesPerCluster)
		return int64(attr.ActualSize), fragments, nil
	}

	return 0, nil, ntfserr.New(ntfserr.RecordMalformed, fmt.Errorf("MFT record has no unnamed $DATA attribute"))
}
