package parser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Dialect selects the grammar a translation unit is parsed with.
type Dialect string

const (
	DialectC   Dialect = "c"
	DialectCXX Dialect = "c++"
)

// extToDialect maps C/C++ source and header extensions to their default
// dialect. Flags may override it.
var extToDialect = map[string]Dialect{
	".c":   DialectC,
	".h":   DialectC,
	".cpp": DialectCXX,
	".cc":  DialectCXX,
	".cxx": DialectCXX,
	".hh":  DialectCXX,
	".hpp": DialectCXX,
}

// Extensions returns the file extensions recognized as C/C++ sources or
// headers, sorted.
func Extensions() []string {
	return []string{".c", ".cc", ".cpp", ".cxx", ".h", ".hh", ".hpp"}
}

// IsSource reports whether path has a C/C++ extension.
func IsSource(path string) bool {
	_, ok := extToDialect[strings.ToLower(filepath.Ext(path))]
	return ok
}

var (
	dialectToGrammar map[Dialect]*sitter.Language
	grammarsOnce     sync.Once
)

func grammarFor(d Dialect) *sitter.Language {
	grammarsOnce.Do(func() {
		dialectToGrammar = map[Dialect]*sitter.Language{
			DialectC:   c.GetLanguage(),
			DialectCXX: cpp.GetLanguage(),
		}
	})
	return dialectToGrammar[d]
}

// DialectFor picks the dialect for path. An explicit -x or a C++ -std
// flag wins over the extension; unknown extensions parse as C++.
func DialectFor(path string, flags Flags) Dialect {
	if flags.Dialect != "" {
		return flags.Dialect
	}
	if d, ok := extToDialect[strings.ToLower(filepath.Ext(path))]; ok {
		return d
	}
	return DialectCXX
}
