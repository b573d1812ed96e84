package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// USRs follow clang's shapes closely enough that a reader used to
// libclang output recognizes them. Overloads share a USR because no type
// signature is encoded.

const usrRoot = "c:"

func usrFunction(prefix, name string) string { return prefix + "@F@" + name }

func usrRecord(prefix string, kind Kind, name string) string {
	switch kind {
	case KindUnionDecl:
		return prefix + "@U@" + name
	case KindEnumDecl:
		return prefix + "@E@" + name
	}
	return prefix + "@S@" + name
}

// usrAnonRecord names a record with no tag. A typedef name, when there is
// one, gives it a stable identity.
func usrAnonRecord(prefix string, kind Kind, typedefName, root string, loc Location) string {
	tag := "SA"
	switch kind {
	case KindUnionDecl:
		tag = "UA"
	case KindEnumDecl:
		tag = "EA"
	}
	if typedefName != "" {
		return prefix + "@" + tag + "@" + typedefName
	}
	return fmt.Sprintf("%s@%s@%s@%d:%d", prefix, tag, usrFile(root, loc.File), loc.Line, loc.Column)
}

func usrField(recordUSR, name string) string { return recordUSR + "@FI@" + name }

func usrEnumConstant(enumUSR, name string) string { return enumUSR + "@" + name }

func usrTypedef(prefix, name string) string { return prefix + "@T@" + name }

func usrNamespace(prefix, name string) string {
	if name == "" {
		return prefix + "@aN"
	}
	return prefix + "@N@" + name
}

func usrGlobal(prefix, name string) string { return prefix + "@" + name }

func usrMacro(name string) string { return usrRoot + "@macro@" + name }

// usrInternal is the prefix for entities with internal linkage, which clang
// scopes to the file that declares them.
func usrInternal(root, file string) string { return usrRoot + usrFile(root, file) }

// usrLocal names a block-scope entity. Its declaration position keeps it
// distinct from same-named locals elsewhere.
func usrLocal(root string, loc Location, owner, name string) string {
	return fmt.Sprintf("%s%s@%d:%d%s@%s", usrRoot, usrFile(root, loc.File), loc.Line, loc.Column, owner, name)
}

// usrFile names file by its path relative to the project root, so
// same-named files in different directories stay apart. Files outside the
// root keep their full path.
func usrFile(root, file string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, file); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(file))
}
