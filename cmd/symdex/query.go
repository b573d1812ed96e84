package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the symbol index",
	Long:  "Run position queries against an indexed project. Line and column numbers are 1-based.",
}

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find the definition of the symbol at a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runDefinition,
}

var referencesCmd = &cobra.Command{
	Use:   "references <file> <line> <col>",
	Short: "Find every indexed occurrence of the symbol at a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runReferences,
}

func init() {
	queryCmd.PersistentFlags().StringVar(&flagCompilerArgs, "compiler-args", "", "compiler flags used to parse <file> (default: index.compiler_args)")

	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(referencesCmd)
}

// parsePosition decodes <file> <line> <col>.
func parsePosition(args []string) (string, int, int, error) {
	file, err := resolveFilePath(args[0])
	if err != nil {
		return "", 0, 0, err
	}
	line, err := parseIntArg(args[1], "line")
	if err != nil {
		return "", 0, 0, err
	}
	col, err := parseIntArg(args[2], "col")
	if err != nil {
		return "", 0, 0, err
	}
	return file, line, col, nil
}

// parseIntArg parses a positional argument as a positive integer with a
// clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be at least 1", name, value)
	}
	return n, nil
}

func runDefinition(cmd *cobra.Command, args []string) error {
	file, line, col, err := parsePosition(args)
	if err != nil {
		return outputError("definition", err)
	}
	e, err := openEngine()
	if err != nil {
		return outputError("definition", err)
	}
	defer e.Close()

	loc, err := e.Query().DefinitionAt(cmd.Context(), file, flagCompilerArgs, line, col)
	if err != nil {
		return outputError("definition", err)
	}
	return outputResult(CLIResult{Command: "definition", Results: locationToCLI(loc)})
}

func runReferences(cmd *cobra.Command, args []string) error {
	file, line, col, err := parsePosition(args)
	if err != nil {
		return outputError("references", err)
	}
	e, err := openEngine()
	if err != nil {
		return outputError("references", err)
	}
	defer e.Close()

	syms, err := e.Query().ReferencesAt(cmd.Context(), file, flagCompilerArgs, line, col)
	if err != nil {
		return outputError("references", err)
	}
	total := len(syms)
	return outputResult(CLIResult{
		Command:    "references",
		Results:    symbolsToCLI(syms),
		TotalCount: &total,
	})
}
