package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.Line, loc.Column)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tLINE\tCOL\tTYPE\tUSR")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", s.File, s.Line, s.Column, s.Type, s.USR)
	}
	tw.Flush()
}

func formatIndexSummaryText(w io.Writer, s CLIIndexSummary) {
	if s.Skipped {
		fmt.Fprintf(w, "%s already indexed (drop to re-index)\n", s.Root)
		return
	}
	fmt.Fprintf(w, "Indexed %d files under %s in %s\n",
		s.Files, s.Root, (time.Duration(s.DurationMS) * time.Millisecond).String())
	fmt.Fprintf(w, "Rows: %d\n", s.Rows)
	if s.Chunks > 0 {
		fmt.Fprintf(w, "Workers: %d (%d failed)\n", s.Chunks, s.FailedWorkers)
	}
}

func formatFilesText(w io.Writer, files []string) {
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
}

func formatDispatchText(w io.Writer, d CLIDispatch) error {
	fmt.Fprintf(w, "%s %s\n", d.Opcode, d.Operation)
	if d.Payload == nil {
		return nil
	}
	return writeText(w, d.Payload)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	if err := writeText(os.Stdout, result.Results); err != nil {
		return err
	}
	if result.TotalCount != nil {
		fmt.Fprintf(os.Stdout, "\n%d results\n", *result.TotalCount)
	}
	return nil
}

func writeText(w io.Writer, v any) error {
	switch v := v.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLIIndexSummary:
		formatIndexSummaryText(w, v)
	case CLIDispatch:
		return formatDispatchText(w, v)
	case []string:
		formatFilesText(w, v)
	case nil:
		// No output for nil results (e.g., drop-all).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
