/*
	Package ntfserr classifies the errors this module can produce into the small taxonomy consumers need to react to:
	is this an unrecoverable construction failure, or a per-record/per-event problem that was already absorbed?

	Errors are built with New and classified with Is, which is built on the standard library's errors.As; Error also
	implements Unwrap, so errors.Is and errors.As work on it directly.
*/
package ntfserr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories callers can match on.
type Kind int

const (
	// VolumeOpen indicates the volume handle itself could not be opened.
	VolumeOpen Kind = iota
	// VolumeQuery indicates FSCTL_GET_NTFS_VOLUME_DATA (or equivalent geometry query) failed.
	VolumeQuery
	// MftRead indicates an overlapped read or wait on MFT extents failed during index construction.
	MftRead
	// RecordMalformed indicates a record's magic is missing or its attribute stream is corrupt.
	RecordMalformed
	// JournalOpen indicates the change journal could not be queried/opened.
	JournalOpen
	// JournalCorrupt indicates a journal record has zero length or an unsupported version.
	JournalCorrupt
	// HandleClose indicates CloseHandle (or equivalent) returned failure.
	HandleClose
)

func (k Kind) String() string {
	switch k {
	case VolumeOpen:
		return "VolumeOpen"
	case VolumeQuery:
		return "VolumeQuery"
	case MftRead:
		return "MftRead"
	case RecordMalformed:
		return "RecordMalformed"
	case JournalOpen:
		return "JournalOpen"
	case JournalCorrupt:
		return "JournalCorrupt"
	case HandleClose:
		return "HandleClose"
	}
	return "unknown"
}

// Error wraps an underlying error with a Kind, letting callers distinguish construction failures (which should
// abort and discard partial state) from per-record/per-event failures (which are absorbed locally by the caller
// before ever reaching this type).
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given Kind wrapping err. Returns nil if err is nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err is (or wraps) an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
