package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/symdex"
	"github.com/jward/symdex/internal/hook"
)

var flagHook string

var execCmd = &cobra.Command{
	Use:   "exec <operation|opcode> [args...]",
	Short: "Dispatch one request by opcode",
	Long: `Sends one request through the command dispatcher, the same surface editor integrations use.
The operation is a name or a numeric opcode:

  index-file           0x00  root contents-path display-path [compiler-args]
  index-directory      0x01  root [compiler-args]
  drop-file            0x02  root filename
  drop-all             0x03  root
  go-to-definition     0x10  root file compiler-args line col
  find-all-references  0x11  root file compiler-args line col

With --hook, the given Risor script runs with the callback payload.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&flagHook, "hook", "", "Risor script to run on each completed request")
	watchCmd.Flags().StringVar(&flagHook, "hook", "", "Risor script to run on each completed request")
}

// hookCallback adapts an optional hook script to a dispatcher callback.
// Script errors are logged; the last one is kept in *hookErr.
func hookCallback(ctx context.Context, runner *hook.Runner, record func(symdex.Opcode, any), hookErr *error) symdex.Callback {
	return func(op symdex.Opcode, payload any) {
		if record != nil {
			record(op, payload)
		}
		if runner == nil {
			return
		}
		if err := runner.Run(ctx, int(op), op.String(), payload); err != nil {
			logger.Error("hook.failed", "op", op, "error", err)
			*hookErr = err
		}
	}
}

func loadHook() (*hook.Runner, error) {
	if flagHook == "" {
		return nil, nil
	}
	return hook.Load(flagHook, hook.WithLogger(logger))
}

func runExec(cmd *cobra.Command, args []string) error {
	op, err := symdex.ParseOpcode(args[0])
	if err != nil {
		return outputError("exec", err)
	}
	runner, err := loadHook()
	if err != nil {
		return outputError("exec", err)
	}
	root, err := projectRoot()
	if err != nil {
		return outputError("exec", err)
	}

	var (
		result  *CLIDispatch
		hookErr error
	)
	record := func(op symdex.Opcode, payload any) {
		result = &CLIDispatch{
			Opcode:    fmt.Sprintf("0x%02x", uint8(op)),
			Operation: op.String(),
			Payload:   payloadToCLI(payload),
		}
	}
	d := symdex.NewDispatcher(hookCallback(cmd.Context(), runner, record, &hookErr), logger, engineOptions(root)...)
	defer d.Close()

	if err := d.Dispatch(cmd.Context(), symdex.Request{Op: op, Args: args[1:]}); err != nil {
		return outputError("exec", err)
	}
	if hookErr != nil {
		return outputError("exec", hookErr)
	}
	if result == nil {
		return outputError("exec", errors.New("dispatcher made no callback"))
	}
	return outputResult(CLIResult{Command: "exec", Results: *result})
}

// payloadToCLI converts a dispatcher payload to its CLI representation.
func payloadToCLI(payload any) any {
	switch v := payload.(type) {
	case *symdex.Location:
		return locationToCLI(v)
	case []symdex.Symbol:
		return symbolsToCLI(v)
	}
	return payload
}
