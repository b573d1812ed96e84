package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var flagDropAll bool

var dropCmd = &cobra.Command{
	Use:   "drop [file...]",
	Short: "Remove files, or everything, from the index",
	Long:  "Removes every row recorded for the given files, or all rows with --all. Either way the next index run indexes the project again.",
	RunE:  runDrop,
}

func init() {
	dropCmd.Flags().BoolVar(&flagDropAll, "all", false, "drop every row")
}

func runDrop(cmd *cobra.Command, args []string) error {
	if flagDropAll == (len(args) > 0) {
		return outputError("drop", errors.New("drop takes either file arguments or --all"))
	}
	e, err := openEngine()
	if err != nil {
		return outputError("drop", err)
	}
	defer e.Close()

	if flagDropAll {
		if err := e.DropAll(); err != nil {
			return outputError("drop", err)
		}
		return outputResult(CLIResult{Command: "drop", Results: []string{}})
	}

	dropped := make([]string, 0, len(args))
	for _, arg := range args {
		file, err := resolveFilePath(arg)
		if err != nil {
			return outputError("drop", err)
		}
		if err := e.DropFile(file); err != nil {
			return outputError("drop", err)
		}
		dropped = append(dropped, file)
	}
	return outputResult(CLIResult{Command: "drop", Results: dropped})
}
