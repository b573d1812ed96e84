package parser

import (
	"path/filepath"
	"strings"
)

// Flags is the subset of a compiler command line the frontend honors.
// Everything else is ignored.
type Flags struct {
	IncludeDirs []string // -I
	QuoteDirs   []string // -iquote
	SystemDirs  []string // -isystem
	// Defines holds -D macros. Values are kept verbatim; "1" when absent.
	Defines map[string]string
	// Dialect is set by -x c / -x c++ or by a -std= value.
	Dialect Dialect
}

// ParseFlags splits a compiler argument string on whitespace. Relative
// include directories are resolved against projectRoot.
func ParseFlags(args, projectRoot string) Flags {
	f := Flags{Defines: map[string]string{}}
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		arg := fields[i]
		// value returns the argument of a flag given either joined
		// ("-Idir") or as the next field ("-I dir").
		value := func(prefix string) (string, bool) {
			if arg == prefix {
				if i+1 < len(fields) {
					i++
					return fields[i], true
				}
				return "", false
			}
			if strings.HasPrefix(arg, prefix) {
				return arg[len(prefix):], true
			}
			return "", false
		}

		switch {
		case strings.HasPrefix(arg, "-isystem"):
			if v, ok := value("-isystem"); ok {
				f.SystemDirs = append(f.SystemDirs, absDir(v, projectRoot))
			}
		case strings.HasPrefix(arg, "-iquote"):
			if v, ok := value("-iquote"); ok {
				f.QuoteDirs = append(f.QuoteDirs, absDir(v, projectRoot))
			}
		case strings.HasPrefix(arg, "-I"):
			if v, ok := value("-I"); ok {
				f.IncludeDirs = append(f.IncludeDirs, absDir(v, projectRoot))
			}
		case strings.HasPrefix(arg, "-D"):
			if v, ok := value("-D"); ok && v != "" {
				name, val, found := strings.Cut(v, "=")
				if !found {
					val = "1"
				}
				f.Defines[name] = val
			}
		case strings.HasPrefix(arg, "-x"):
			if v, ok := value("-x"); ok {
				switch v {
				case "c", "c-header":
					f.Dialect = DialectC
				case "c++", "c++-header":
					f.Dialect = DialectCXX
				}
			}
		case strings.HasPrefix(arg, "-std="):
			std := strings.TrimPrefix(arg, "-std=")
			if strings.Contains(std, "++") {
				f.Dialect = DialectCXX
			} else if f.Dialect == "" && (strings.HasPrefix(std, "c") || strings.HasPrefix(std, "gnu")) {
				f.Dialect = DialectC
			}
		}
	}
	return f
}

func absDir(dir, root string) string {
	if filepath.IsAbs(dir) || root == "" {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}
