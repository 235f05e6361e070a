/*
	Package index holds the in-memory file table built by the indexer and mutated by journal replay.

	The table is a slot vector addressed directly by MFT record number rather than a hash map: record numbers are
	dense (0..N), so a vector of optional entries gives O(1) lookup-by-index and better cache behavior than a map
	would for a multi-million-entry table. The package keeps no internal lock; independent readers are safe, but a
	reader concurrent with ApplyBatch is not. The embedder is responsible for synchronizing reads against mutation,
	typically with a single RWMutex wrapped around the whole Store.
*/
package index

import (
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/t9t/ntfsindex/fileinfo"
)

// RootRecordNumber is the well-known MFT index of the volume root directory. Its Parent always equals its own
// record number, which terminates path and parent walks.
const RootRecordNumber = 5

// parIterChunks is the maximum number of chunks ParIter and FindByName split the table into; tables shorter than
// that get one chunk per slot. A coarse chunk count keeps per-goroutine scheduling overhead low on
// multi-million-entry scans.
const parIterChunks = 64

// Entry pairs a FileInfo with the MFT record number of the slot it came from. FileInfo itself does not carry its own
// record number to stay within the table's tight per-entry byte budget, so callers that need to walk parents or
// reconstruct a path use Entry instead of a bare *fileinfo.FileInfo.
type Entry struct {
	RecordNumber uint64
	Info         *fileinfo.FileInfo
}

// Store is the parent-indexed file directory for one volume. A Store is built once by the indexer and afterwards
// mutated only via ApplyBatch.
type Store struct {
	driveLetter byte
	slots       []*fileinfo.FileInfo
}

// NewStore wraps a flat, record-number-indexed slice of entries (nil for empty slots) produced by the indexer.
// driveLetter is the upper-case drive letter used to build full paths.
func NewStore(driveLetter byte, slots []*fileinfo.FileInfo) *Store {
	return &Store{
		driveLetter: toUpper(driveLetter),
		slots:       slots,
	}
}

// Len returns the number of slots in the table, including empty ones.
func (s *Store) Len() int {
	return len(s.slots)
}

// FindByIndex returns the entry at MFT record number i, or the zero Entry (Info == nil) if the slot is empty or i is
// out of range.
func (s *Store) FindByIndex(i uint64) Entry {
	if i >= uint64(len(s.slots)) {
		return Entry{RecordNumber: i}
	}
	return Entry{RecordNumber: i, Info: s.slots[i]}
}

// FindByName performs a parallel linear scan for the first occupied entry (in record order) whose Name equals name.
// Ties are broken by first encounter in record order, matching a straightforward sequential scan. The zero Entry is
// returned when there is no match.
func (s *Store) FindByName(name string) Entry {
	n := len(s.slots)
	if n == 0 {
		return Entry{}
	}

	type match struct {
		index uint64
		info  *fileinfo.FileInfo
	}

	matches := make(chan match, parIterChunks)
	var g errgroup.Group
	for _, r := range chunkRanges(n) {
		start, end := r[0], r[1]
		g.Go(func() error {
			for i := start; i < end; i++ {
				info := s.slots[i]
				if info != nil && info.Name == name {
					matches <- match{index: uint64(i), info: info}
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(matches)

	best, found := match{}, false
	for m := range matches {
		if !found || m.index < best.index {
			best, found = m, true
		}
	}
	if !found {
		return Entry{}
	}
	return Entry{RecordNumber: best.index, Info: best.info}
}

// ComputeFullPath walks from e up to the root, accumulating ancestor names, and returns the upper-case
// drive-letter-prefixed path (e.g. "C:\dir\file.bin"). It terminates at the root record or at a broken parent
// chain, whichever comes first. The output buffer size is computed up front so the builder allocates once.
func (s *Store) ComputeFullPath(e Entry) (string, error) {
	if e.Info == nil {
		return "", fmt.Errorf("cannot compute path of empty entry")
	}

	// The root's own name (conventionally "." or empty) never becomes part of the path; the walk stops as soon as
	// it reaches the root, without pushing the root's entry.
	chain := make([]Entry, 0, 16)
	size := 2 // drive letter + colon
	for cur := e; cur.Info != nil && cur.RecordNumber != RootRecordNumber; {
		chain = append(chain, cur)
		size += len(cur.Info.Name) + 1
		if cur.Info.Parent == cur.RecordNumber {
			break
		}
		cur = s.FindByIndex(cur.Info.Parent)
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteByte(s.driveLetter)
	b.WriteByte(':')
	for i := len(chain) - 1; i >= 0; i-- {
		name := chain[i].Info.Name
		if name == "" {
			continue
		}
		b.WriteByte('\\')
		b.WriteString(name)
	}
	return b.String(), nil
}

// ParentIterator yields an entry and each of its ancestors, in order, up to and including the root.
type ParentIterator struct {
	store   *Store
	current Entry
	done    bool
}

// IterWithParents returns a lazy, finite iterator starting at e and walking up the parent chain to the root
// (inclusive of e itself).
func (s *Store) IterWithParents(e Entry) *ParentIterator {
	return &ParentIterator{store: s, current: e, done: e.Info == nil}
}

// Next returns the next ancestor in the walk, or (Entry{}, false) once the root has been yielded or the chain
// breaks.
func (it *ParentIterator) Next() (Entry, bool) {
	if it.done {
		return Entry{}, false
	}

	result := it.current
	if result.RecordNumber == RootRecordNumber || result.Info.Parent == result.RecordNumber {
		it.done = true
	} else {
		next := it.store.FindByIndex(result.Info.Parent)
		if next.Info == nil {
			it.done = true
		} else {
			it.current = next
		}
	}
	return result, true
}

// Iter returns the full table in record order, with empty slots represented as a nil Info.
func (s *Store) Iter() []Entry {
	out := make([]Entry, len(s.slots))
	for i, info := range s.slots {
		out[i] = Entry{RecordNumber: uint64(i), Info: info}
	}
	return out
}

// ParIter invokes fn once per slot (nil Info for empty slots) across the table, fanning work out over coarse chunks
// (table length / 64) to keep scheduling overhead low on multi-million-entry scans. fn is called concurrently from
// multiple goroutines and must not assume any particular order across chunks; within a chunk, calls are in record
// order.
func (s *Store) ParIter(fn func(e Entry)) error {
	var g errgroup.Group
	for _, r := range chunkRanges(len(s.slots)) {
		start, end := r[0], r[1]
		g.Go(func() error {
			for i := start; i < end; i++ {
				fn(Entry{RecordNumber: uint64(i), Info: s.slots[i]})
			}
			return nil
		})
	}
	return g.Wait()
}

// chunkRanges splits [0, n) into at most parIterChunks contiguous, non-overlapping [start, end) ranges.
func chunkRanges(n int) [][2]int {
	if n == 0 {
		return nil
	}
	chunkSize := (n + parIterChunks - 1) / parIterChunks
	if chunkSize == 0 {
		chunkSize = n
	}
	ranges := make([][2]int, 0, parIterChunks)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

func toUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
