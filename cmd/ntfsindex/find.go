package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find <drive letter> <name>",
	Short: "Build the index for a volume and print the full path of the first record matching name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		letter, err := driveLetterArg(args[:1])
		if err != nil {
			return err
		}
		name := args[1]

		v, store, err := openAndBuild(context.Background(), letter)
		if err != nil {
			return err
		}
		defer v.Close()

		entry := store.FindByName(name)
		if entry.Info == nil {
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"error": fmt.Sprintf("no record named %q found", name)})
			}
			fmt.Printf("no record named %q found\n", name)
			return nil
		}

		path, err := store.ComputeFullPath(entry)
		if err != nil {
			return fmt.Errorf("computing path: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(toEntryJSON(entry, path))
		}
		fmt.Println(path)
		return nil
	},
}
