// Package symdex builds and queries a symbol index for C and C++ source
// trees, backing editor features such as go-to-definition and
// find-all-references without re-parsing the project on every query.
//
// # Pipeline
//
// Indexing a file parses it with tree-sitter, walks the resulting cursor
// tree and records every function, variable, user-defined type and macro
// occurrence that belongs to the file itself (never to the headers it
// includes) as a row keyed by (filename, USR, line, column).
//
// Indexing a directory discovers every C/C++ file under the project root,
// splits the list into one contiguous chunk per CPU and hands each chunk
// to a separate worker process with its own parser and private store.
// Once every worker has exited, the private stores are merged into the
// project's master store one at a time and removed.
//
// # Usage
//
//	e, err := symdex.New("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.IndexDirectory(ctx, "-Iinclude")
//
//	q := e.Query()
//	loc, err := q.DefinitionAt(ctx, "path/to/project/main.c", "-Iinclude", 10, 5)
//	refs, err := q.ReferencesAt(ctx, "path/to/project/main.c", "-Iinclude", 10, 5)
//
// # Commands
//
// [Dispatcher] exposes the same operations behind opcodes, delivering each
// result through a completion callback. Directory indexing re-executes the
// running binary as a worker; programs embedding symdex must route a
// "worker" invocation to [ServeWorker] or configure a [WorkerLauncher].
package symdex
