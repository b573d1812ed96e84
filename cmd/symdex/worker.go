package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/symdex"
	"github.com/jward/symdex/internal/parser"
)

// workerCmd is the entry point of directory worker processes, which the
// index command starts by re-executing this binary.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Index one chunk of a directory pass (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return symdex.ServeWorker(cmd.Context(), cmd.InOrStdin(), parser.NewTreeSitter(), logger)
	},
}
