/*
	Package indexer builds the record table by reading MFT clusters in parallel and decoding each file record into a
	fileinfo.FileInfo.

	Construction fans out over a scoped pool of workers (one per assigned partition) using golang.org/x/sync/errgroup
	and joins before returning, mirroring the fan-out/fan-in pattern distr1-distri uses for its own parallel package
	builds: each worker owns a disjoint slice of the output, so no locking is needed during the scan, and a failure in
	any one worker aborts the whole build.
*/
package indexer

import (
	"context"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/t9t/ntfsindex/fileinfo"
	"github.com/t9t/ntfsindex/fragment"
	"github.com/t9t/ntfsindex/mft"
	"github.com/t9t/ntfsindex/ntfserr"
)

// Options configures a Build call.
type Options struct {
	// RecordSize is the NTFS file-record-segment size in bytes (commonly 1024).
	RecordSize int
	// BytesPerCluster is the volume's cluster size in bytes, used to align partition splits.
	BytesPerCluster int
	// NumWorkers is the number of partitions/goroutines to use. Zero means runtime.NumCPU().
	NumWorkers int
}

func (o Options) numWorkers() int {
	if o.NumWorkers > 0 {
		return o.NumWorkers
	}
	return runtime.NumCPU()
}

// Build reads totalSize bytes of MFT content from r across the given fragments (absolute byte ranges, in MFT byte
// order) and decodes one FileInfo per record, returning a flat slice indexed by record number (nil entries for
// invalid, unused, or unparseable records). Any worker's read failure aborts the build with an MftRead error; the
// partial result is discarded.
func Build(ctx context.Context, r io.ReaderAt, fragments []fragment.Fragment, totalSize int64, opts Options) ([]*fileinfo.FileInfo, error) {
	groups := Partition(fragments, totalSize, opts.BytesPerCluster, opts.numWorkers())
	startOffsets := StartOffsets(groups)

	results := make([][]*fileinfo.FileInfo, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		startOffset := startOffsets[i]
		g.Go(func() error {
			slots, err := decodeGroup(ctx, r, group, startOffset, opts.RecordSize)
			if err != nil {
				return err
			}
			results[i] = slots
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*fileinfo.FileInfo, 0, totalSize/int64(opts.RecordSize)+1)
	for _, slots := range results {
		out = append(out, slots...)
	}
	return out, nil
}

// decodeGroup reads one worker's assigned fragments into a contiguous buffer and decodes it record by record.
func decodeGroup(ctx context.Context, r io.ReaderAt, group []fragment.Fragment, startOffset int64, recordSize int) ([]*fileinfo.FileInfo, error) {
	groupLength := int64(0)
	for _, frag := range group {
		groupLength += frag.Length
	}
	if groupLength == 0 {
		return nil, nil
	}

	buf := make([]byte, groupLength)
	localOffset := int64(0)
	for _, frag := range group {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.ReadAt(buf[localOffset:localOffset+frag.Length], frag.Offset)
		if err != nil && err != io.EOF {
			return nil, ntfserr.New(ntfserr.MftRead, err)
		}
		localOffset += int64(n)
		if int64(n) != frag.Length && err != io.EOF {
			return nil, ntfserr.New(ntfserr.MftRead, io.ErrShortBuffer)
		}
	}

	startRecordNumber := uint64(startOffset / int64(recordSize))
	recordCount := len(buf) / recordSize // an MFT size not a multiple of record size: trailing partial chunk is ignored

	slots := make([]*fileinfo.FileInfo, recordCount)
	for i := 0; i < recordCount; i++ {
		recordBytes := buf[i*recordSize : (i+1)*recordSize]
		recordNumber := startRecordNumber + uint64(i)

		header, err := mft.ParseRecordHeader(recordBytes)
		if err != nil || !header.IsValid() || !header.InUse() {
			continue // RecordMalformed/unused: leave the slot empty, preserving index alignment
		}

		record, err := mft.ParseRecord(recordBytes, recordNumber)
		if err != nil {
			continue
		}

		info, ok := fileinfo.Extract(record)
		if !ok {
			continue
		}
		slots[i] = &info
	}
	return slots, nil
}
