/*
	Package journal queries and reads the NTFS USN change journal and normalizes raw records into create/delete/rename
	events for index.Store.ApplyBatch; this package does not apply them itself.

	The read loop is cooperative: Poll does one FSCTL_READ_USN_JOURNAL-shaped call per invocation and returns
	whatever events resulted; the caller (not this package) is responsible for scheduling cadence, typically once per
	second on its own goroutine.
*/
package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/t9t/ntfsindex/index"
	"github.com/t9t/ntfsindex/ntfserr"
)

// renameFifoCapacity bounds the queue of unmatched RENAME_OLD_NAME mft indices. Exceeding it silently ages out the
// oldest unmatched entry; this is intentional, to bound memory under a pathological rename-without-new-name
// workload rather than leak without limit.
const renameFifoCapacity = 2000

// Reader is the low-level journal access the embedder provides, typically backed by FSCTL_QUERY_USN_JOURNAL and
// FSCTL_READ_USN_JOURNAL over a volume handle. It is the seam that lets the normalization/FIFO logic in this
// package be tested without real Windows I/O.
type Reader interface {
	// Query returns the journal's current NextUsn and its stable UsnJournalID.
	Query() (nextUsn uint64, journalID uint64, err error)
	// Read issues one read starting at startUsn and returns the raw buffer, including its leading 8-byte NextUsn
	// header, exactly as FSCTL_READ_USN_JOURNAL would.
	Read(startUsn uint64) ([]byte, error)
}

// Journal tracks read position and pending rename state for one volume's change journal.
type Journal struct {
	reader    Reader
	NextUsn   uint64
	JournalID uint64

	pendingRenames []uint64
}

// Open queries the journal for its current position and identity.
func Open(r Reader) (*Journal, error) {
	nextUsn, journalID, err := r.Query()
	if err != nil {
		return nil, ntfserr.New(ntfserr.JournalOpen, err)
	}
	return &Journal{reader: r, NextUsn: nextUsn, JournalID: journalID}, nil
}

// Poll issues one read, advances NextUsn, and returns the batch of normalized events (after rename matching and
// create/delete coalescing) in journal order. An idle or regressing journal yields a nil, non-error batch.
func (j *Journal) Poll() ([]index.Event, error) {
	buf, err := j.reader.Read(j.NextUsn)
	if err != nil {
		return nil, ntfserr.New(ntfserr.JournalOpen, err)
	}
	if len(buf) < 8 {
		return nil, ntfserr.New(ntfserr.JournalCorrupt, fmt.Errorf("read buffer shorter than the NextUsn header: %d bytes", len(buf)))
	}

	newNextUsn := binary.LittleEndian.Uint64(buf[:8])
	if newNextUsn == 0 || newNextUsn < j.NextUsn {
		return nil, nil
	}
	j.NextUsn = newNextUsn

	records, err := j.parseRecords(buf[8:])
	if err != nil {
		return nil, err
	}

	events := j.normalize(records)
	return coalesceCreateDelete(events), nil
}

func (j *Journal) parseRecords(b []byte) ([]usnRecord, error) {
	var records []usnRecord
	for len(b) > 0 {
		record, err := parseUSNRecordV3(b)
		if err != nil {
			return nil, ntfserr.New(ntfserr.JournalCorrupt, err)
		}
		if record.RecordLength == 0 {
			return nil, ntfserr.New(ntfserr.JournalCorrupt, fmt.Errorf("zero record length"))
		}
		if record.MajorVersion != 3 {
			return nil, ntfserr.New(ntfserr.JournalCorrupt, fmt.Errorf("unsupported USN record major version %d", record.MajorVersion))
		}
		if int(record.RecordLength) > len(b) {
			return nil, ntfserr.New(ntfserr.JournalCorrupt, fmt.Errorf("record length %d exceeds remaining buffer %d", record.RecordLength, len(b)))
		}

		records = append(records, record)
		b = b[record.RecordLength:]
	}
	return records, nil
}

// normalize turns raw USN records into index.Events, matching renames against the pending FIFO. Records whose
// reason combination doesn't match any recognized case are dropped.
func (j *Journal) normalize(records []usnRecord) []index.Event {
	events := make([]index.Event, 0, len(records))

	for _, r := range records {
		switch {
		case r.Reason&reasonRenameOldName != 0:
			j.pushPendingRename(r.Mft)

		case r.Reason&reasonRenameNewName != 0:
			if !j.takePendingRename(r.Mft) {
				continue // no matching RENAME_OLD_NAME observed; best-effort drop
			}
			events = append(events, index.Event{
				Kind:   index.EventRename,
				MFT:    r.Mft,
				Parent: r.ParentMft,
				Name:   r.FileName,
			})

		case r.Reason == reasonFileCreate:
			events = append(events, index.Event{
				Kind:        index.EventCreate,
				MFT:         r.Mft,
				Parent:      r.ParentMft,
				Name:        r.FileName,
				IsDirectory: r.isDirectory(),
			})

		case r.Reason&reasonFileDelete != 0:
			events = append(events, index.Event{
				Kind: index.EventDelete,
				MFT:  r.Mft,
			})
		}
	}

	return events
}

func (j *Journal) pushPendingRename(mft uint64) {
	j.pendingRenames = append(j.pendingRenames, mft)
	if len(j.pendingRenames) > renameFifoCapacity {
		j.pendingRenames = j.pendingRenames[1:]
	}
}

// takePendingRename removes and reports the first FIFO entry matching mft, scanning front-to-back so an
// interleaved rename of a different file in the same batch can't steal another file's slot.
func (j *Journal) takePendingRename(mft uint64) bool {
	for i, pending := range j.pendingRenames {
		if pending == mft {
			j.pendingRenames = append(j.pendingRenames[:i], j.pendingRenames[i+1:]...)
			return true
		}
	}
	return false
}

// coalesceCreateDelete removes every Create{mft=m} that is followed later in the same batch by a Delete{mft=m},
// together with that Delete, suppressing transient scratch files that come and go within one poll.
func coalesceCreateDelete(events []index.Event) []index.Event {
	dropped := make(map[int]bool)
	for i, e := range events {
		if e.Kind != index.EventCreate || dropped[i] {
			continue
		}
		for k := i + 1; k < len(events); k++ {
			if events[k].Kind == index.EventDelete && events[k].MFT == e.MFT && !dropped[k] {
				dropped[i] = true
				dropped[k] = true
				break
			}
		}
	}

	out := make([]index.Event, 0, len(events))
	for i, e := range events {
		if !dropped[i] {
			out = append(out, e)
		}
	}
	return out
}
