package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/t9t/ntfsindex/index"
	"github.com/t9t/ntfsindex/indexer"
	"github.com/t9t/ntfsindex/volume"
)

var verbose bool
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "ntfsindex",
	Short: "Build and query an in-memory index of an NTFS volume's Master File Table",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON instead of plain text")
	rootCmd.AddCommand(indexCmd, findCmd, watchCmd)
}

func logf(format string, args ...interface{}) {
	if verbose {
		log.Printf(format, args...)
	}
}

// openAndBuild opens the given drive letter's volume, resolves the MFT's own extent, and builds the full index
// table. The caller owns the returned volume.Volume and must Close it.
func openAndBuild(ctx context.Context, driveLetter byte) (volume.Volume, *index.Store, error) {
	logf("[ntfsindex] opening volume %c:", driveLetter)
	v, err := volume.Open(driveLetter)
	if err != nil {
		return nil, nil, fmt.Errorf("opening volume %c: %w", driveLetter, err)
	}

	geometry := v.Geometry()
	logf("[ntfsindex] geometry: %+v", geometry)

	totalSize, runs, err := volume.ResolveMFTRuns(v, geometry)
	if err != nil {
		v.Close()
		return nil, nil, fmt.Errorf("resolving MFT extent: %w", err)
	}
	logf("[ntfsindex] MFT size %d bytes across %d runs", totalSize, len(runs))

	start := time.Now()
	slots, err := indexer.Build(ctx, v, runs, totalSize, indexer.Options{
		RecordSize:      geometry.BytesPerFileRecordSegment,
		BytesPerCluster: geometry.BytesPerCluster,
	})
	if err != nil {
		v.Close()
		return nil, nil, fmt.Errorf("building index: %w", err)
	}
	logf("[ntfsindex] indexed %d records in %s", len(slots), time.Since(start))

	return v, index.NewStore(driveLetter, slots), nil
}

func driveLetterArg(args []string) (byte, error) {
	if len(args) != 1 || len(args[0]) != 1 {
		return 0, fmt.Errorf("expected a single drive letter argument, e.g. C")
	}
	return args[0][0], nil
}

// entryJSON is the --json rendering of an index.Entry; fileinfo.FileInfo packs size and the directory bit into an
// unexported word, so this unpacks them into plain fields rather than marshaling the FileInfo directly.
type entryJSON struct {
	RecordNumber uint64 `json:"recordNumber"`
	Name         string `json:"name"`
	Parent       uint64 `json:"parent"`
	Size         uint64 `json:"size"`
	IsDirectory  bool   `json:"isDirectory"`
	Path         string `json:"path,omitempty"`
}

func toEntryJSON(e index.Entry, path string) entryJSON {
	return entryJSON{
		RecordNumber: e.RecordNumber,
		Name:         e.Info.Name,
		Parent:       e.Info.Parent,
		Size:         e.Info.Size(),
		IsDirectory:  e.Info.IsDirectory(),
		Path:         path,
	}
}
