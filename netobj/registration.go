package netobj

import (
	"fmt"
	"log"
	"reflect"
	"sort"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/crypto"
)

// MaxMembers is the table limit for methods and for properties, the high bit
// of the index byte tells them apart
const MaxMembers = 128

// MaxStateValues is how many properties and methods with a getter one full
// state can carry
const MaxStateValues = 255

// Registration is the compiled member table of one network type. Declare and
// Extends are only valid before Compile, afterwards it is read only.
type Registration struct {
	name    string
	target  reflect.Type
	factory func() any

	declared []*MemberDefinition
	base     *Registration
	up       func(any) any

	compiled    bool
	methods     []*MemberDefinition
	properties  []*MemberDefinition
	getters     map[string]*MemberDefinition
	fingerprint string
}

// NewRegistration starts the declaration of network type T, factory builds a
// fresh instance for every created object
func NewRegistration[T any](name string, factory func() T) *Registration {
	return &Registration{
		name:    name,
		target:  typeOf[T](),
		factory: func() any { return factory() },
	}
}

func (r *Registration) Name() string {
	return r.name
}

// Target is the Go type the members are declared on
func (r *Registration) Target() reflect.Type {
	return r.target
}

func (r *Registration) Declare(members ...*MemberDefinition) *Registration {
	if r.compiled {
		log.Panic(fmt.Errorf("registration %s already compiled", r.name))
	}
	for _, m := range members {
		m.DeclaringType = r.name
		r.declared = append(r.declared, m)
	}
	return r
}

// Extends inherits the members of base, up converts a target of this
// registration to the base target
func (r *Registration) Extends(base *Registration, up func(any) any) *Registration {
	if r.compiled {
		log.Panic(fmt.Errorf("registration %s already compiled", r.name))
	}
	r.base = base
	r.up = up
	return r
}

func (r *Registration) Base() *Registration {
	return r.base
}

func (r *Registration) Compiled() bool {
	return r.compiled
}

// MustCompile panics on error, registrations are compiled once at startup
func (r *Registration) MustCompile(codecs *codec.Registry) *Registration {
	if err := r.Compile(codecs); err != nil {
		log.Panic(err)
	}
	return r
}

// Compile builds the sorted member tables. Members declared here win over
// base members with the same signature.
func (r *Registration) Compile(codecs *codec.Registry) error {
	if r.compiled {
		return nil
	}
	var inherited []*MemberDefinition
	getters := make(map[string]*MemberDefinition)
	if r.base != nil {
		if r.up == nil {
			return errors.Wrapf(ErrCompile, "%s extends %s without upcast", r.name, r.base.name)
		}
		if err := r.base.Compile(codecs); err != nil {
			return err
		}
		for _, m := range r.base.methods {
			inherited = append(inherited, m.upcast(r.target, r.up))
		}
		for _, m := range r.base.properties {
			inherited = append(inherited, m.upcast(r.target, r.up))
		}
		for name, g := range r.base.getters {
			getters[name] = g.upcast(r.target, r.up)
		}
	}

	seen := make(map[string]*MemberDefinition)
	var methods, properties []*MemberDefinition
	for _, m := range r.declared {
		if m.target != r.target {
			return errors.Wrapf(ErrCompile, "%s: %s declared on %s", r.name, m.Name, m.target)
		}
		if m.Kind == KindGetter {
			getters[m.Name] = m
			continue
		}
		if _, ok := seen[m.signature]; ok {
			return errors.Wrapf(ErrCompile, "%s: duplicate member %s", r.name, m.signature)
		}
		c := *m
		seen[m.signature] = &c
	}
	for _, m := range inherited {
		if _, ok := seen[m.signature]; ok {
			continue
		}
		seen[m.signature] = m
	}
	for _, m := range seen {
		for _, p := range m.Params {
			if !codecs.Supports(p) {
				return errors.Wrapf(ErrCompile, "%s: no codec for %s of %s", r.name, p, m.signature)
			}
		}
		if m.Kind == KindProperty {
			properties = append(properties, m)
		} else {
			methods = append(methods, m)
		}
	}
	for _, m := range methods {
		if err := resolveGetter(r.name, m, getters); err != nil {
			return err
		}
	}
	for _, m := range append(methods, properties...) {
		if m.Flags.Has(Delta) {
			if m.Flags.Has(Snapshot) {
				return errors.Wrapf(ErrCompile, "%s: delta member %s can not travel on the snapshot lane", r.name, m.signature)
			}
			if len(m.Params) != 1 {
				return errors.Wrapf(ErrCompile, "%s: delta member %s needs one parameter", r.name, m.signature)
			}
			c, _ := codecs.Lookup(m.Params[0])
			if _, ok := c.(codec.DeltaCodec); !ok {
				return errors.Wrapf(ErrCompile, "%s: %s has no delta codec", r.name, m.Params[0])
			}
		}
	}
	if len(methods) > MaxMembers || len(properties) > MaxMembers {
		return errors.Wrapf(ErrCompile, "%s: %d methods, %d properties, limit %d",
			r.name, len(methods), len(properties), MaxMembers)
	}
	// 完整状态的记录数是一个字节
	stateful := len(properties)
	for _, m := range methods {
		if m.get != nil {
			stateful++
		}
	}
	if stateful > MaxStateValues {
		return errors.Wrapf(ErrCompile, "%s: %d members in a full state, limit %d", r.name, stateful, MaxStateValues)
	}
	sortMembers(methods)
	sortMembers(properties)
	r.methods = methods
	r.properties = properties
	r.getters = getters
	r.fingerprint = r.buildFingerprint()
	r.compiled = true
	return nil
}

// resolveGetter finds the getter of a method. Snapshot, persistent and delta
// methods must have one, any other one parameter method links its companion
// getter when there is one so a full state carries its value.
func resolveGetter(reg string, m *MemberDefinition, getters map[string]*MemberDefinition) error {
	if m.get != nil {
		return nil
	}
	need := m.Flags&(Snapshot|Persistent|Delta) != 0 || m.getterName != ""
	if len(m.Params) != 1 {
		if need {
			return errors.Wrapf(ErrCompile, "%s: %s needs exactly one parameter to have a getter", reg, m.signature)
		}
		return nil
	}
	names := getterCandidates(m.Name)
	if m.getterName != "" {
		names = []string{m.getterName}
	}
	for _, name := range names {
		g, ok := getters[name]
		if !ok {
			continue
		}
		if g.Params[0] != m.Params[0] {
			if !need {
				return nil
			}
			return errors.Wrapf(ErrCompile, "%s: getter %s returns %s, %s takes %s",
				reg, name, g.Params[0], m.Name, m.Params[0])
		}
		m.get = g.get
		return nil
	}
	if !need {
		return nil
	}
	return errors.Wrapf(ErrCompile, "%s: no getter for %s", reg, m.signature)
}

func sortMembers(ms []*MemberDefinition) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Name != ms[j].Name {
			return ms[i].Name < ms[j].Name
		}
		return ms[i].signature < ms[j].signature
	})
	for i, m := range ms {
		m.Index = uint8(i)
	}
}

func (r *Registration) buildFingerprint() string {
	lines := make([]string, 0, len(r.methods)+len(r.properties)+1)
	lines = append(lines, r.name)
	for _, m := range r.methods {
		lines = append(lines, fmt.Sprintf("m%d %s %d", m.Index, m.signature, m.Flags))
	}
	for _, m := range r.properties {
		lines = append(lines, fmt.Sprintf("p%d %s %d", m.Index, m.signature, m.Flags))
	}
	return crypto.Md5Lines(lines)
}

// Fingerprint is the md5 of the compiled tables, equal on both ends when the
// schemas agree
func (r *Registration) Fingerprint() string {
	return r.fingerprint
}

func (r *Registration) Methods() []*MemberDefinition {
	return r.methods
}

func (r *Registration) Properties() []*MemberDefinition {
	return r.properties
}

// Member finds a member by its wire index byte
func (r *Registration) Member(index byte) (*MemberDefinition, bool) {
	table := r.methods
	if index&0x80 != 0 {
		table = r.properties
		index &^= 0x80
	}
	if int(index) >= len(table) {
		return nil, false
	}
	return table[index], true
}

// Lookup finds the member called name that accepts args
func (r *Registration) Lookup(name string, args []any) (*MemberDefinition, bool) {
	for _, table := range [][]*MemberDefinition{r.methods, r.properties} {
		for _, m := range table {
			if m.Name == name && accepts(m, args) {
				return m, true
			}
		}
	}
	return nil, false
}

func accepts(m *MemberDefinition, args []any) bool {
	if len(m.Params) != len(args) {
		return false
	}
	for i, a := range args {
		if reflect.TypeOf(a) != m.Params[i] {
			return false
		}
	}
	return true
}

// New builds an object with the registration factory
func (r *Registration) New() any {
	return r.factory()
}
