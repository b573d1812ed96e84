package symdex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
)

// Opcode addresses one Dispatcher operation. The values are part of the
// wire surface editors speak and must not change.
type Opcode uint8

const (
	OpIndexFile      Opcode = 0x00
	OpIndexDirectory Opcode = 0x01
	OpDropFile       Opcode = 0x02
	OpDropAll        Opcode = 0x03
	OpGoToDefinition Opcode = 0x10
	OpFindReferences Opcode = 0x11
)

var opNames = map[Opcode]string{
	OpIndexFile:      "index-file",
	OpIndexDirectory: "index-directory",
	OpDropFile:       "drop-file",
	OpDropAll:        "drop-all",
	OpGoToDefinition: "go-to-definition",
	OpFindReferences: "find-all-references",
}

func (op Opcode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%02x)", uint8(op))
}

// ParseOpcode accepts an operation name or a numeric opcode.
func ParseOpcode(s string) (Opcode, error) {
	for op, name := range opNames {
		if name == s {
			return op, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOpcode, s)
	}
	op := Opcode(n)
	if _, ok := opNames[op]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	return op, nil
}

var (
	// ErrUnknownOpcode is returned for a request whose opcode has no
	// handler. No callback is made.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrBadRequest is returned for malformed request arguments. No
	// callback is made.
	ErrBadRequest = errors.New("bad request")
)

// Request is one command. Args are positional:
//
//	index-file:           root, contents path, display path[, compiler args]
//	index-directory:      root[, compiler args]
//	drop-file:            root, filename
//	drop-all:             root
//	go-to-definition:     root, file, compiler args, line, column
//	find-all-references:  root, file, compiler args, line, column
type Request struct {
	Op   Opcode   `json:"op"`
	Args []string `json:"args"`
}

// Callback receives the payload of every successful request:
// index-file, index-directory and drop-file echo the request args,
// drop-all sends nil, go-to-definition sends a *Location (nil when nothing
// resolves) and find-all-references sends a []Symbol.
type Callback func(op Opcode, payload any)

type handler func(d *Dispatcher, ctx context.Context, args []string) (any, error)

var handlers = map[Opcode]handler{
	OpIndexFile:      (*Dispatcher).indexFile,
	OpIndexDirectory: (*Dispatcher).indexDirectory,
	OpDropFile:       (*Dispatcher).dropFile,
	OpDropAll:        (*Dispatcher).dropAll,
	OpGoToDefinition: (*Dispatcher).goToDefinition,
	OpFindReferences: (*Dispatcher).findReferences,
}

// Dispatcher routes requests to per-project Engines, opening each lazily
// on first use and keeping it until Close.
type Dispatcher struct {
	callback Callback
	logger   *slog.Logger
	opts     []Option

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewDispatcher returns a Dispatcher that reports results to cb, which may
// be nil. opts configure every Engine it opens.
func NewDispatcher(cb Callback, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		callback: cb,
		logger:   logger,
		opts:     append([]Option{WithLogger(logger)}, opts...),
		engines:  make(map[string]*Engine),
	}
}

// Dispatch runs one request and, on success, invokes the callback with
// its payload.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	h, ok := handlers[req.Op]
	if !ok {
		d.logger.Warn("dispatch.unknown_opcode", "op", req.Op)
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, req.Op)
	}
	payload, err := h(d, ctx, req.Args)
	if err != nil {
		d.logger.Error("dispatch.failed", "op", req.Op, "error", err)
		return fmt.Errorf("%s: %w", req.Op, err)
	}
	if d.callback != nil {
		d.callback(req.Op, payload)
	}
	return nil
}

// Engine returns the Engine for root, opening it if needed.
func (d *Dispatcher) Engine(root string) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: root %q: %v", ErrBadRequest, root, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.engines[abs]; ok {
		return e, nil
	}
	e, err := New(abs, d.opts...)
	if err != nil {
		return nil, err
	}
	d.engines[abs] = e
	return e, nil
}

// Close closes every Engine the Dispatcher opened.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for root, e := range d.engines {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", root, err))
		}
		delete(d.engines, root)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) indexFile(ctx context.Context, args []string) (any, error) {
	if err := argCount(args, 3, 4); err != nil {
		return nil, err
	}
	e, err := d.Engine(args[0])
	if err != nil {
		return nil, err
	}
	if _, err := e.IndexFile(ctx, args[1], args[2], optional(args, 3)); err != nil {
		return nil, err
	}
	return args, nil
}

func (d *Dispatcher) indexDirectory(ctx context.Context, args []string) (any, error) {
	if err := argCount(args, 1, 2); err != nil {
		return nil, err
	}
	e, err := d.Engine(args[0])
	if err != nil {
		return nil, err
	}
	if _, err := e.IndexDirectory(ctx, optional(args, 1)); err != nil {
		return nil, err
	}
	return args, nil
}

func (d *Dispatcher) dropFile(_ context.Context, args []string) (any, error) {
	if err := argCount(args, 2, 2); err != nil {
		return nil, err
	}
	e, err := d.Engine(args[0])
	if err != nil {
		return nil, err
	}
	if err := e.DropFile(args[1]); err != nil {
		return nil, err
	}
	return args, nil
}

func (d *Dispatcher) dropAll(_ context.Context, args []string) (any, error) {
	if err := argCount(args, 1, 1); err != nil {
		return nil, err
	}
	e, err := d.Engine(args[0])
	if err != nil {
		return nil, err
	}
	return nil, e.DropAll()
}

func (d *Dispatcher) goToDefinition(ctx context.Context, args []string) (any, error) {
	e, file, line, col, err := d.position(args)
	if err != nil {
		return nil, err
	}
	return e.Query().DefinitionAt(ctx, file, args[2], line, col)
}

func (d *Dispatcher) findReferences(ctx context.Context, args []string) (any, error) {
	e, file, line, col, err := d.position(args)
	if err != nil {
		return nil, err
	}
	return e.Query().ReferencesAt(ctx, file, args[2], line, col)
}

// position decodes root, file, compiler args, line, column.
func (d *Dispatcher) position(args []string) (*Engine, string, int, int, error) {
	if err := argCount(args, 5, 5); err != nil {
		return nil, "", 0, 0, err
	}
	line, err := strconv.Atoi(args[3])
	if err != nil || line < 1 {
		return nil, "", 0, 0, fmt.Errorf("%w: line %q", ErrBadRequest, args[3])
	}
	col, err := strconv.Atoi(args[4])
	if err != nil || col < 1 {
		return nil, "", 0, 0, fmt.Errorf("%w: column %q", ErrBadRequest, args[4])
	}
	e, err := d.Engine(args[0])
	if err != nil {
		return nil, "", 0, 0, err
	}
	return e, args[1], line, col, nil
}

func argCount(args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("%w: want %d args, got %d", ErrBadRequest, lo, len(args))
		}
		return fmt.Errorf("%w: want %d to %d args, got %d", ErrBadRequest, lo, hi, len(args))
	}
	return nil
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
