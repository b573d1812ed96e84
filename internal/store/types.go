package store

import "fmt"

// SymbolType is the category of an indexed symbol. The numeric values are
// persisted in the symbol_type relation and must not change.
type SymbolType int

const (
	Function        SymbolType = 1
	Variable        SymbolType = 2
	UserDefinedType SymbolType = 3
	Macro           SymbolType = 4
)

// SymbolTypes lists every category in id order.
var SymbolTypes = []SymbolType{Function, Variable, UserDefinedType, Macro}

// Name returns the persisted name of the category.
func (t SymbolType) Name() string {
	switch t {
	case Function:
		return "function"
	case Variable:
		return "variable"
	case UserDefinedType:
		return "user_defined_type"
	case Macro:
		return "macro"
	}
	return ""
}

func (t SymbolType) String() string {
	if n := t.Name(); n != "" {
		return n
	}
	return fmt.Sprintf("SymbolType(%d)", int(t))
}

// Valid reports whether t is one of the four categories.
func (t SymbolType) Valid() bool {
	return t >= Function && t <= Macro
}

// Symbol is one indexed occurrence. (Filename, USR, Line, Column) is unique
// within a store.
type Symbol struct {
	Filename string     `json:"filename"`
	USR      string     `json:"usr"`
	Line     int        `json:"line"`
	Column   int        `json:"column"`
	Type     SymbolType `json:"type"`
}
