// Command ntfsindex is a thin demonstration of the read-only query surface described in spec §6: it builds an
// in-memory index of an NTFS volume's Master File Table and lets you search or watch it from the command line. It is
// not a packaged product CLI (no installer, no config file, no persisted state) — just enough surface to exercise
// the core library end to end.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
