// Package hook runs a Risor script after each dispatched command.
//
// The script sees four globals: opcode (int), operation (string), payload
// (the callback payload converted through JSON into Risor maps, lists and
// scalars, or nil) and log (Info/Warn/Error/Debug methods backed by slog).
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

// Runner evaluates one script source per Run call. A Runner holds no VM
// state between calls and is safe for concurrent use.
type Runner struct {
	source string
	label  string
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger behind the script's log global.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// New returns a Runner for inline source.
func New(source string, opts ...Option) *Runner {
	r := &Runner{source: source, label: "<inline>", logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads a .risor script from disk.
func Load(path string, opts ...Option) (*Runner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hook: loading script %s: %w", path, err)
	}
	r := New(string(data), opts...)
	r.label = path
	return r, nil
}

// Run evaluates the script for one completed command.
func (r *Runner) Run(ctx context.Context, opcode int, operation string, payload any) error {
	value, err := toObject(payload)
	if err != nil {
		return fmt.Errorf("hook: script %s: %w", r.label, err)
	}
	log, err := object.NewProxy(&logObject{logger: r.logger.With("hook", r.label, "operation", operation)})
	if err != nil {
		return fmt.Errorf("hook: proxy error: %w", err)
	}

	_, err = risor.Eval(ctx, r.source,
		risor.WithGlobal("opcode", object.NewInt(int64(opcode))),
		risor.WithGlobal("operation", object.NewString(operation)),
		risor.WithGlobal("payload", value),
		risor.WithGlobal("log", log),
	)
	if err != nil {
		return fmt.Errorf("hook: script %s: %w", r.label, err)
	}
	return nil
}

// toObject converts a Go value to Risor objects by way of its JSON form,
// so struct tags decide the field names scripts see.
func toObject(v any) (object.Object, error) {
	if v == nil {
		return object.Nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return fromJSON(generic), nil
}

func fromJSON(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case bool:
		return object.NewBool(v)
	case string:
		return object.NewString(v)
	case float64:
		if v == float64(int64(v)) {
			return object.NewInt(int64(v))
		}
		return object.NewFloat(v)
	case []any:
		items := make([]object.Object, len(v))
		for i, item := range v {
			items[i] = fromJSON(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(v))
		for k, item := range v {
			m[k] = fromJSON(item)
		}
		return object.NewMap(m)
	}
	return object.Nil
}

// logObject provides log.Info/Warn/Error/Debug methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }
func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }
