package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "docsmith",
		Short:   "Docsmith — queued LLM document generation service",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
