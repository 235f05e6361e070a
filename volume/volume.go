/*
	Package volume opens a raw NTFS volume handle, queries its geometry and USN journal, and locates the Master File
	Table's own extent on disk. The platform-specific halves (volume_windows.go, volume_other.go) both satisfy the
	Volume interface declared here so callers (indexer.Build, journal.Open) only ever depend on io.ReaderAt and
	journal.Reader.
*/
package volume

import (
	"io"

	"github.com/t9t/ntfsindex/journal"
)

// Geometry holds the on-disk layout facts read from FSCTL_GET_NTFS_VOLUME_DATA, enough to locate the MFT's first
// cluster and to align the parallel indexer's partition splits.
type Geometry struct {
	BytesPerSector            int
	BytesPerCluster           int
	BytesPerFileRecordSegment int
	MftStartLcn               uint64
	TotalSectors              uint64
}

// MftClusterOffset is the byte offset of the MFT's own first file-record-segment, per spec 4.D.
func (g Geometry) MftClusterOffset() int64 {
	return int64(g.BytesPerCluster) * int64(g.MftStartLcn)
}

// Volume is a read-only handle to an NTFS volume: random access to its raw bytes (for indexer.Build), geometry, and
// its USN change journal (for journal.Open/Poll). DriveLetter is the upper-case single letter this volume was opened
// with, e.g. 'C'.
type Volume interface {
	io.ReaderAt
	journal.Reader
	DriveLetter() byte
	Geometry() Geometry
	Close() error
}

// DiscoverVolumes enumerates 'a'..'z', keeping the letters for which probe reports a mounted volume. probe is
// platform-specific (on Windows it checks GetVolumeNameForVolumeMountPointW); this loop itself is not.
func DiscoverVolumes(probe func(letter byte) bool) []byte {
	var letters []byte
	for c := byte('a'); c <= 'z'; c++ {
		if probe(c) {
			letters = append(letters, c)
		}
	}
	return letters
}
