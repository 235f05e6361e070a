package mft_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t9t/ntfsindex/mft"
)

func TestFileAttribute(t *testing.T) {
	a := mft.FileAttribute(0x83)

	// just a sample
	assert.True(t, a.Is(mft.FileAttributeReadOnly))
	assert.True(t, a.Is(mft.FileAttributeHidden))
	assert.True(t, a.Is(mft.FileAttributeNormal))
	assert.False(t, a.Is(mft.FileAttributeDevice))
	assert.False(t, a.Is(mft.FileAttributeCompressed))
}

func TestParseFileName(t *testing.T) {
	input := decodeHex(t, "e2680900000004007064eacc62b2d501000f014577c1cf01808beacc62b2d5017064eacc62b2d50100a00100000000002a9801000000000020000000000000000c036c006f0067006f002d003200350030002e0070006e006700")
	out, err := mft.ParseFileName(input)
	require.Nilf(t, err, "could not parse attribute: %v", err)
	expected := mft.FileName{
		ParentFileReference: mft.FileReference{RecordNumber: 616674, SequenceNumber: 4},
		Creation:            time.Date(2019, time.December, 14, 9, 42, 29, 175000000, time.UTC),
		FileLastModified:    time.Date(2014, time.August, 26, 21, 47, 02, 0, time.UTC),
		MftLastModified:     time.Date(2019, time.December, 14, 9, 42, 29, 176000000, time.UTC),
		LastAccess:          time.Date(2019, time.December, 14, 9, 42, 29, 175000000, time.UTC),
		AllocatedSize:       106496,
		RealSize:            104490,
		Flags:               mft.FileAttribute(32),
		ExtendedData:        0,
		Namespace:           3,
		Name:                "logo-250.png",
	}
	assert.Equal(t, expected, out)
}
