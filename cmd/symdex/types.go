package main

import "github.com/jward/symdex"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISymbol is a JSON-friendly symbol row.
type CLISymbol struct {
	File   string `json:"file"`
	USR    string `json:"usr"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Type   string `json:"type"`
}

// CLILocation is a source position.
type CLILocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// CLIIndexSummary reports one index or index-file run.
type CLIIndexSummary struct {
	Root          string `json:"root"`
	RunID         string `json:"run_id,omitempty"`
	Skipped       bool   `json:"skipped"`
	Files         int    `json:"files"`
	Chunks        int    `json:"chunks,omitempty"`
	FailedWorkers int    `json:"failed_workers"`
	Rows          int    `json:"rows"`
	DurationMS    int64  `json:"duration_ms"`
}

// CLIDispatch reports one dispatched request.
type CLIDispatch struct {
	Opcode    string `json:"opcode"`
	Operation string `json:"operation"`
	Payload   any    `json:"payload"`
}

func symbolToCLI(s symdex.Symbol) CLISymbol {
	return CLISymbol{
		File:   s.Filename,
		USR:    s.USR,
		Line:   s.Line,
		Column: s.Column,
		Type:   s.Type.Name(),
	}
}

func symbolsToCLI(syms []symdex.Symbol) []CLISymbol {
	out := make([]CLISymbol, len(syms))
	for i, s := range syms {
		out[i] = symbolToCLI(s)
	}
	return out
}

func locationToCLI(loc *symdex.Location) []CLILocation {
	if loc == nil {
		return []CLILocation{}
	}
	return []CLILocation{{File: loc.File, Line: loc.Line, Column: loc.Column}}
}
