package parser

type scopeKind int

const (
	scopeFile scopeKind = iota
	scopeNamespace
	scopeRecord
	scopeTemplate
	scopeBlock
)

// symbol is a name the resolver knows about.
type symbol struct {
	cursor *Cursor
	// rec is the record a record, enum or typedef names, or the record type
	// of a variable, field or function result. Nil when unknown.
	rec *record
}

type record struct {
	name  string
	sym   *symbol
	scope *scope
	bases []*record
}

// member finds name among the record's members or those of its bases.
func (r *record) member(name string) *symbol {
	return r.memberDepth(name, 0)
}

func (r *record) memberDepth(name string, depth int) *symbol {
	if sym, ok := r.scope.values[name]; ok {
		return sym
	}
	if depth > 16 {
		return nil
	}
	for _, base := range r.bases {
		if sym := base.memberDepth(name, depth+1); sym != nil {
			return sym
		}
	}
	return nil
}

type scope struct {
	kind   scopeKind
	parent *scope
	// prefix is the USR prefix for entities declared here. Empty for block
	// and template scopes, which borrow their enclosing scope's.
	prefix string
	// owner is the enclosing function's USR suffix, used for locals.
	owner string
	rec   *record

	values     map[string]*symbol
	types      map[string]*symbol
	tags       map[string]*symbol
	namespaces map[string]*scope
	usings     []*scope
}

func newScope(kind scopeKind, parent *scope, prefix string) *scope {
	s := &scope{
		kind:       kind,
		parent:     parent,
		prefix:     prefix,
		values:     map[string]*symbol{},
		types:      map[string]*symbol{},
		tags:       map[string]*symbol{},
		namespaces: map[string]*scope{},
	}
	if parent != nil {
		s.owner = parent.owner
	}
	return s
}

// target is the scope declarations made here are registered in. Template
// parameter scopes are transparent.
func (s *scope) target() *scope {
	for s.kind == scopeTemplate && s.parent != nil {
		s = s.parent
	}
	return s
}

// declPrefix is the USR prefix of the nearest file, namespace or record
// scope.
func (s *scope) declPrefix() string {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.kind != scopeBlock && sc.kind != scopeTemplate {
			return sc.prefix
		}
	}
	return usrRoot
}

func (s *scope) localValue(name string) *symbol {
	if sym, ok := s.values[name]; ok {
		return sym
	}
	if s.rec != nil {
		if sym := s.rec.member(name); sym != nil {
			return sym
		}
	}
	for _, u := range s.usings {
		if sym, ok := u.values[name]; ok {
			return sym
		}
	}
	return nil
}

func (s *scope) localType(name string) *symbol {
	if sym, ok := s.types[name]; ok {
		return sym
	}
	if sym, ok := s.tags[name]; ok {
		return sym
	}
	for _, u := range s.usings {
		if sym, ok := u.types[name]; ok {
			return sym
		}
		if sym, ok := u.tags[name]; ok {
			return sym
		}
	}
	return nil
}

func (s *scope) lookupValue(name string) *symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym := sc.localValue(name); sym != nil {
			return sym
		}
	}
	return nil
}

func (s *scope) lookupType(name string) *symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym := sc.localType(name); sym != nil {
			return sym
		}
	}
	return nil
}

func (s *scope) lookupTag(name string) *symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.tags[name]; ok {
			return sym
		}
	}
	return nil
}

func (s *scope) lookupNamespace(name string) *scope {
	for sc := s; sc != nil; sc = sc.parent {
		if ns, ok := sc.namespaces[name]; ok {
			return ns
		}
		for _, u := range sc.usings {
			if ns, ok := u.namespaces[name]; ok {
				return ns
			}
		}
	}
	return nil
}
