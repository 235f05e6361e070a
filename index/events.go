package index

import (
	"log"

	"github.com/t9t/ntfsindex/fileinfo"
)

// EventKind discriminates the three mutation kinds the journal reader produces.
type EventKind int

const (
	// EventCreate introduces a new live record.
	EventCreate EventKind = iota
	// EventRename updates an existing record's name and parent in place.
	EventRename
	// EventDelete empties a record's slot.
	EventDelete
)

// String renders the event kind as a lowercase verb, matching the vocabulary used in cmd/ntfsindex's watch output.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventRename:
		return "rename"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one normalized journal mutation, as produced by the journal reader after rename matching and
// create/delete coalescing. The fields that apply depend on Kind.
type Event struct {
	Kind        EventKind
	MFT         uint64
	Parent      uint64
	Name        string
	IsDirectory bool
}

// ApplyBatch applies events to the table in order. It holds no lock of its own; the caller must ensure no concurrent
// readers are active for the duration of the call. Per-event failures (occupied slot on create, absent parent) are
// logged and skipped so one bad event in the batch doesn't abort the rest.
func (s *Store) ApplyBatch(events []Event) {
	for _, e := range events {
		switch e.Kind {
		case EventCreate:
			s.applyCreate(e)
		case EventRename:
			s.applyRename(e)
		case EventDelete:
			s.applyDelete(e)
		default:
			log.Printf("index: dropping event with unknown kind %d for mft %d", e.Kind, e.MFT)
		}
	}
}

// applyCreate writes a new entry with size 0; the journal does not report sizes, so callers needing an accurate
// size must schedule a targeted re-read of the MFT record afterwards.
func (s *Store) applyCreate(e Event) {
	if e.MFT < uint64(len(s.slots)) && s.slots[e.MFT] != nil {
		log.Printf("index: create for mft %d skipped, slot already occupied", e.MFT)
		return
	}
	if s.FindByIndex(e.Parent).Info == nil {
		log.Printf("index: create for mft %d skipped, parent %d is absent", e.MFT, e.Parent)
		return
	}

	s.grow(e.MFT)
	info := fileinfo.New(e.Name, e.Parent, 0, e.IsDirectory)
	s.slots[e.MFT] = &info
}

func (s *Store) applyRename(e Event) {
	entry := s.FindByIndex(e.MFT)
	if entry.Info == nil {
		log.Printf("index: rename for mft %d skipped, slot is empty", e.MFT)
		return
	}
	if s.FindByIndex(e.Parent).Info == nil {
		log.Printf("index: rename for mft %d skipped, parent %d is absent", e.MFT, e.Parent)
		return
	}

	updated := fileinfo.New(e.Name, e.Parent, entry.Info.Size(), entry.Info.IsDirectory())
	s.slots[e.MFT] = &updated
}

func (s *Store) applyDelete(e Event) {
	if e.MFT >= uint64(len(s.slots)) {
		return
	}
	s.slots[e.MFT] = nil
}

// grow extends the slot vector, filling new slots with nil, so it has room for record number i.
func (s *Store) grow(i uint64) {
	if i < uint64(len(s.slots)) {
		return
	}
	grown := make([]*fileinfo.FileInfo, i+1)
	copy(grown, s.slots)
	s.slots = grown
}
