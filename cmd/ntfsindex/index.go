package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <drive letter>",
	Short: "Build the index for a volume and report how many records were found",
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

		live := 0
		for _, e := range store.Iter() {
			if e.Info != nil {
				live++
			}
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]int{"slots": store.Len(), "liveRecords": live})
		}
		fmt.Printf("%d slots, %d live records\n", store.Len(), live)
		return nil
	},
}
