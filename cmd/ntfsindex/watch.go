package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/t9t/ntfsindex/index"
	"github.com/t9t/ntfsindex/journal"
)

var watchCmd = &cobra.Command{
	Use:   "watch <drive letter>",
	Short: "Build the index for a volume, then replay USN journal events onto it once per second",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		letter, err := driveLetterArg(args)
		if err != nil {
			return err
		}

		v, store, err := openAndBuild(context.Background(), letter)
		if err != nil {
			return err
		}
		defer v.Close()

		j, err := journal.Open(v)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		fmt.Printf("watching %c: from usn %d (journal id %d); press Ctrl+C to stop\n", letter, j.NextUsn, j.JournalID)

		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			events, err := j.Poll()
			if err != nil {
				return fmt.Errorf("polling journal: %w", err)
			}
			if len(events) == 0 {
				continue
			}
			store.ApplyBatch(events)
			for _, e := range events {
				if jsonOutput {
					json.NewEncoder(os.Stdout).Encode(eventJSON{
						Kind: e.Kind.String(), MFT: e.MFT, Parent: e.Parent, Name: e.Name, IsDirectory: e.IsDirectory,
					})
					continue
				}
				fmt.Printf("%s\n", describeEvent(e))
			}
		}
		return nil
	},
}

type eventJSON struct {
	Kind        string `json:"kind"`
	MFT         uint64 `json:"mft"`
	Parent      uint64 `json:"parent"`
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
}

func describeEvent(e index.Event) string {
	switch e.Kind {
	case index.EventCreate:
		return fmt.Sprintf("create  mft=%d parent=%d name=%q dir=%t", e.MFT, e.Parent, e.Name, e.IsDirectory)
	case index.EventRename:
		return fmt.Sprintf("rename  mft=%d parent=%d name=%q", e.MFT, e.Parent, e.Name)
	case index.EventDelete:
		return fmt.Sprintf("delete  mft=%d", e.MFT)
	default:
		return fmt.Sprintf("unknown event %+v", e)
	}
}
