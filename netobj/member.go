package netobj

import (
	"reflect"
	"strings"
)

type MemberKind uint8

const (
	KindMethod MemberKind = iota
	KindProperty
	KindGetter
)

func (k MemberKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindProperty:
		return "property"
	default:
		return "getter"
	}
}

// MemberDefinition is one replicated method or property of a network type.
// Index and the resolved getter are filled by Registration.Compile.
type MemberDefinition struct {
	DeclaringType string
	Name          string
	Kind          MemberKind
	Flags         Flags
	Params        []reflect.Type
	Index         uint8

	target     reflect.Type
	invoke     func(target any, args []any)
	get        func(target any) any
	getterName string
	signature  string
}

// Signature is the name plus parameter types, unique inside a registration
func (m *MemberDefinition) Signature() string {
	return m.signature
}

func (m *MemberDefinition) IsProperty() bool {
	return m.Kind == KindProperty
}

// WireIndex is the record index byte, properties carry the high bit
func (m *MemberDefinition) WireIndex() byte {
	if m.Kind == KindProperty {
		return 0x80 | m.Index
	}
	return m.Index
}

// HasGetter reports whether the current value of the member can be read back
func (m *MemberDefinition) HasGetter() bool {
	return m.get != nil
}

// Value reads the current value through the member getter
func (m *MemberDefinition) Value(target any) any {
	return m.get(target)
}

// WithGetter names the getter of a snapshot method explicitly
func (m *MemberDefinition) WithGetter(name string) *MemberDefinition {
	m.getterName = name
	return m
}

func (m *MemberDefinition) String() string {
	return m.DeclaringType + "." + m.signature
}

// upcast rebinds a base member to a derived target
func (m *MemberDefinition) upcast(target reflect.Type, up func(any) any) *MemberDefinition {
	c := *m
	c.target = target
	c.Params = append([]reflect.Type(nil), m.Params...)
	if m.invoke != nil {
		inv := m.invoke
		c.invoke = func(t any, args []any) { inv(up(t), args) }
	}
	if m.get != nil {
		get := m.get
		c.get = func(t any) any { return get(up(t)) }
	}
	return &c
}

func newMember[T any](name string, kind MemberKind, flags Flags, params ...reflect.Type) *MemberDefinition {
	m := &MemberDefinition{
		Name:   name,
		Kind:   kind,
		Flags:  flags,
		Params: params,
		target: typeOf[T](),
	}
	m.signature = signature(name, kind, params)
	return m
}

func signature(name string, kind MemberKind, params []reflect.Type) string {
	var sb strings.Builder
	sb.WriteString(name)
	if kind == KindProperty {
		sb.WriteByte(':')
		if len(params) > 0 {
			sb.WriteString(params[0].String())
		}
		return sb.String()
	}
	sb.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func Method0[T any](name string, fn func(T), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindMethod, flags)
	m.invoke = func(t any, _ []any) { fn(t.(T)) }
	return m
}

func Method1[T, A any](name string, fn func(T, A), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindMethod, flags, typeOf[A]())
	m.invoke = func(t any, args []any) { fn(t.(T), args[0].(A)) }
	return m
}

func Method2[T, A, B any](name string, fn func(T, A, B), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindMethod, flags, typeOf[A](), typeOf[B]())
	m.invoke = func(t any, args []any) { fn(t.(T), args[0].(A), args[1].(B)) }
	return m
}

func Method3[T, A, B, C any](name string, fn func(T, A, B, C), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindMethod, flags, typeOf[A](), typeOf[B](), typeOf[C]())
	m.invoke = func(t any, args []any) { fn(t.(T), args[0].(A), args[1].(B), args[2].(C)) }
	return m
}

func Method4[T, A, B, C, D any](name string, fn func(T, A, B, C, D), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindMethod, flags, typeOf[A](), typeOf[B](), typeOf[C](), typeOf[D]())
	m.invoke = func(t any, args []any) { fn(t.(T), args[0].(A), args[1].(B), args[2].(C), args[3].(D)) }
	return m
}

// Property is a replicated value with a getter and a setter. Properties are
// always part of a snapshot.
func Property[T, V any](name string, get func(T) V, set func(T, V), flags Flags) *MemberDefinition {
	m := newMember[T](name, KindProperty, flags, typeOf[V]())
	m.invoke = func(t any, args []any) { set(t.(T), args[0].(V)) }
	m.get = func(t any) any { return get(t.(T)) }
	return m
}

// Getter declares an accessor that is never sent itself. Snapshot methods
// find their getter among these.
func Getter[T, V any](name string, get func(T) V) *MemberDefinition {
	m := newMember[T](name, KindGetter, 0, typeOf[V]())
	m.get = func(t any) any { return get(t.(T)) }
	return m
}

// Upcast adapts a derived to base conversion for Registration.Extends
func Upcast[D, B any](f func(D) B) func(any) any {
	return func(t any) any { return f(t.(D)) }
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// getterCandidates lists the conventional getter names of a setter
func getterCandidates(name string) []string {
	switch {
	case strings.HasPrefix(name, "Set") && len(name) > 3:
		return []string{"Get" + name[3:]}
	case strings.HasPrefix(name, "set") && len(name) > 3:
		return []string{"get" + name[3:]}
	}
	return nil
}
