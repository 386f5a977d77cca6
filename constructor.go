package xrepo

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
)

// Constructor describes one way of building a target type from an ordered
// parameter list. Go has no constructor reflection, so constructors are plain
// functions registered with their parameter names:
//
//	xrepo.Register(NewPerson, xrepo.Params("name", "age"))
//	xrepo.Register(NewShortPerson, xrepo.Params("name"), xrepo.Qualifier("short"))
//
// The function must not be variadic and must return the target, or the target
// and an error.
type Constructor struct {
	target     reflect.Type
	fn         reflect.Value
	names      []string
	types      []reflect.Type
	qualifier  string
	preferred  bool
	returnsErr bool
}

// ConstructorOption configures a Constructor.
type ConstructorOption func(*Constructor)

// Params names the parameters in declaration order. Projections built from a
// constructor select these attributes, so the names double as attribute names.
func Params(names ...string) ConstructorOption {
	return func(c *Constructor) { c.names = append([]string(nil), names...) }
}

// Preferred marks the constructor as the one to use when several are
// registered for the same type.
func Preferred() ConstructorOption {
	return func(c *Constructor) { c.preferred = true }
}

// Qualifier tags the constructor with a name callers can ask for. A qualified
// constructor is also preferred.
func Qualifier(name string) ConstructorOption {
	return func(c *Constructor) {
		c.qualifier = name
		c.preferred = true
	}
}

var errorType = reflect.TypeFor[error]()

// NewConstructor wraps fn without registering it.
func NewConstructor(fn any, opts ...ConstructorOption) (*Constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidConstructor, fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: %s is variadic", ErrInvalidConstructor, ft)
	}
	c := &Constructor{fn: fv}
	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		c.returnsErr = true
	default:
		return nil, fmt.Errorf("%w: %s must return T or (T, error)", ErrInvalidConstructor, ft)
	}
	c.target = ft.Out(0)
	c.types = make([]reflect.Type, ft.NumIn())
	for i := range c.types {
		c.types[i] = ft.In(i)
	}
	for _, o := range opts {
		o(c)
	}
	if c.names != nil && len(c.names) != len(c.types) {
		return nil, fmt.Errorf("%w: %s takes %d parameters, %d names given", ErrInvalidConstructor, ft, len(c.types), len(c.names))
	}
	return c, nil
}

func (c *Constructor) Target() reflect.Type { return c.target }

// ParamNames returns the declared parameter names, or nil when none were
// given with Params.
func (c *Constructor) ParamNames() []string { return append([]string(nil), c.names...) }

func (c *Constructor) ParamTypes() []reflect.Type { return append([]reflect.Type(nil), c.types...) }

func (c *Constructor) Arity() int { return len(c.types) }

func (c *Constructor) QualifierName() string { return c.qualifier }

func (c *Constructor) IsPreferred() bool { return c.preferred }

func (c *Constructor) String() string {
	var b strings.Builder
	b.WriteString(c.target.String())
	b.WriteByte('(')
	for i, t := range c.types {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.names != nil {
			b.WriteString(c.names[i])
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
	if c.qualifier != "" {
		fmt.Fprintf(&b, "[%s]", c.qualifier)
	}
	return b.String()
}

// Invoke calls the constructor with args in parameter order. A nil argument
// becomes the zero value of its parameter; numeric arguments convert to the
// parameter's numeric type and []byte converts to string. Arity and type
// mismatches, and errors returned by the function, are reported as
// *MappingError.
func (c *Constructor) Invoke(args []any) (any, error) {
	if len(args) != len(c.types) {
		return nil, mappingErrorf(c.target, "constructor %s takes %d arguments, row has %d", c, len(c.types), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := convertArg(a, c.types[i])
		if err != nil {
			return nil, mappingErrorf(c.target, "argument %d of %s: %w", i, c, err)
		}
		in[i] = v
	}
	out := c.fn.Call(in)
	if c.returnsErr && !out[1].IsNil() {
		return nil, asMappingError(c.target, out[1].Interface().(error))
	}
	return out[0].Interface(), nil
}

func convertArg(a any, to reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(to), nil
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(to) {
		return v, nil
	}
	// Pointer parameters take the address of a copy.
	if to.Kind() == reflect.Pointer {
		el, err := convertArg(a, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(el)
		return p, nil
	}
	if isNumeric(v.Kind()) && isNumeric(to.Kind()) {
		out, ok := convertNumber(v, to)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%v (%s) does not fit %s", a, v.Type(), to)
		}
		return out, nil
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 && to.Kind() == reflect.String {
		return v.Convert(to), nil
	}
	if v.Kind() == reflect.String && to.Kind() == reflect.String {
		return v.Convert(to), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Type(), to)
}

// convertNumber converts between numeric kinds only when the value survives
// exactly. Float narrowing may round but must stay in range.
func convertNumber(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	out := reflect.New(to).Elem()
	fk, tk := v.Kind(), to.Kind()
	switch {
	case isSigned(fk):
		n := v.Int()
		switch {
		case isSigned(tk):
			if out.OverflowInt(n) {
				return out, false
			}
			out.SetInt(n)
		case isUnsigned(tk):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return out, false
			}
			out.SetUint(uint64(n))
		default:
			f := floatOf(float64(n), tk)
			if f >= 0x1p63 || f < -0x1p63 || int64(f) != n {
				return out, false
			}
			out.SetFloat(f)
		}
	case isUnsigned(fk):
		u := v.Uint()
		switch {
		case isSigned(tk):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return out, false
			}
			out.SetInt(int64(u))
		case isUnsigned(tk):
			if out.OverflowUint(u) {
				return out, false
			}
			out.SetUint(u)
		default:
			f := floatOf(float64(u), tk)
			if f >= 0x1p64 || uint64(f) != u {
				return out, false
			}
			out.SetFloat(f)
		}
	default:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			if !isFloat(tk) {
				return out, false
			}
			out.SetFloat(f)
			return out, true
		}
		switch {
		case isFloat(tk):
			if out.OverflowFloat(f) {
				return out, false
			}
			out.SetFloat(f)
		case f != math.Trunc(f):
			return out, false
		case isSigned(tk):
			if f >= 0x1p63 || f < -0x1p63 || out.OverflowInt(int64(f)) {
				return out, false
			}
			out.SetInt(int64(f))
		default:
			if f < 0 || f >= 0x1p64 || out.OverflowUint(uint64(f)) {
				return out, false
			}
			out.SetUint(uint64(f))
		}
	}
	return out, true
}

// floatOf rounds f to the precision of kind k.
func floatOf(f float64, k reflect.Kind) float64 {
	if k == reflect.Float32 {
		return float64(float32(f))
	}
	return f
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// compatible reports whether a value of type from may be passed as to
// without loss: assignable, a widening numeric conversion, or []byte to
// string. A nil from (a NULL with no static type) is compatible with any to.
func compatible(from, to reflect.Type) bool {
	if from == nil || from.AssignableTo(to) {
		return true
	}
	if to.Kind() == reflect.Pointer && from.AssignableTo(to.Elem()) {
		return true
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case isSigned(fk) && isSigned(tk), isUnsigned(fk) && isUnsigned(tk):
		return from.Size() <= to.Size()
	case isUnsigned(fk) && isSigned(tk):
		return from.Size() < to.Size()
	case (isSigned(fk) || isUnsigned(fk)) && isFloat(tk):
		return from.Size() < to.Size() || tk == reflect.Float64 && from.Size() <= 4
	case isFloat(fk) && isFloat(tk):
		return from.Size() <= to.Size()
	case fk == reflect.Slice && from.Elem().Kind() == reflect.Uint8 && tk == reflect.String:
		return true
	}
	return false
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

// Registry holds constructors per target type.
type Registry struct {
	mu    sync.RWMutex
	ctors map[reflect.Type][]*Constructor
	gen   uint64 // bumped by Add

	resolved sync.Map // resolveKey -> *Constructor
}

type resolveKey struct {
	target    reflect.Type
	qualifier string
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[reflect.Type][]*Constructor)}
}

// DefaultRegistry is used by the package-level Register and by projections
// and mappers built without an explicit registry.
var DefaultRegistry = NewRegistry()

// Register adds a constructor to DefaultRegistry.
func Register(fn any, opts ...ConstructorOption) (*Constructor, error) {
	return DefaultRegistry.Register(fn, opts...)
}

// MustRegister is like Register but panics on error.
func MustRegister(fn any, opts ...ConstructorOption) *Constructor {
	c, err := Register(fn, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register wraps fn and adds it to r.
func (r *Registry) Register(fn any, opts ...ConstructorOption) (*Constructor, error) {
	c, err := NewConstructor(fn, opts...)
	if err != nil {
		return nil, err
	}
	r.Add(c)
	return c, nil
}

// Add adds c to r and drops cached resolutions.
func (r *Registry) Add(c *Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[c.target] = append(r.ctors[c.target], c)
	r.gen++
	r.resolved.Clear()
}

// Constructors returns the constructors of target in registration order.
func (r *Registry) Constructors(target reflect.Type) []*Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Constructor(nil), r.ctors[target]...)
}

// Resolve picks exactly one constructor of target:
//
//  1. only constructors with at least one parameter are candidates;
//  2. with a non-empty qualifier, only constructors carrying it remain
//     (ErrNoQualifiedConstructor when none do);
//  3. if several remain and some are preferred, only those remain;
//  4. one candidate is returned; none is ErrNoConstructor and several is
//     ErrAmbiguousConstructor.
//
// Successful resolutions are cached until the next registration.
func (r *Registry) Resolve(target reflect.Type, qualifier string) (*Constructor, error) {
	key := resolveKey{target: target, qualifier: qualifier}
	if v, ok := r.resolved.Load(key); ok {
		return v.(*Constructor), nil
	}
	c, gen, err := r.resolve(target, qualifier)
	if err != nil {
		return nil, err
	}
	r.remember(key, c, gen)
	return c, nil
}

// remember caches a resolution made at generation gen unless a constructor
// was added since.
func (r *Registry) remember(key resolveKey, c *Constructor, gen uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.gen == gen {
		r.resolved.Store(key, c)
	}
}

// resolve applies the resolution rules to the constructors registered at the
// returned generation.
func (r *Registry) resolve(target reflect.Type, qualifier string) (*Constructor, uint64, error) {
	r.mu.RLock()
	all := append([]*Constructor(nil), r.ctors[target]...)
	gen := r.gen
	r.mu.RUnlock()

	var cands []*Constructor
	for _, c := range all {
		if c.Arity() > 0 {
			cands = append(cands, c)
		}
	}

	if qualifier != "" {
		var q []*Constructor
		for _, c := range cands {
			if c.qualifier == qualifier {
				q = append(q, c)
			}
		}
		if len(q) == 0 {
			return nil, gen, fmt.Errorf("%w: %s has no constructor qualified %q", ErrNoQualifiedConstructor, target, qualifier)
		}
		cands = q
	}

	if len(cands) > 1 {
		var pref []*Constructor
		for _, c := range cands {
			if c.preferred {
				pref = append(pref, c)
			}
		}
		if len(pref) > 0 {
			cands = pref
		}
	}

	switch len(cands) {
	case 0:
		return nil, gen, fmt.Errorf("%w: %s", ErrNoConstructor, target)
	case 1:
		return cands[0], gen, nil
	default:
		return nil, gen, fmt.Errorf("%w: %s has %d candidates", ErrAmbiguousConstructor, target, len(cands))
	}
}

// Match finds the constructor of target whose parameters accept types in
// order. Exact type matches win over compatible ones.
func (r *Registry) Match(target reflect.Type, types []reflect.Type) (*Constructor, error) {
	cs := r.Constructors(target)
	if c := pickOne(cs, types, exactTypes); c != nil {
		return c, nil
	}
	var found []*Constructor
	for _, c := range cs {
		if acceptsTypes(c, types, compatible) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s%s", ErrNoMatchingConstructor, target, typeList(types))
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s%s matches %d constructors", ErrAmbiguousConstructor, target, typeList(types), len(found))
	}
}

// MatchExact finds the constructor of target whose parameter types equal
// types.
func (r *Registry) MatchExact(target reflect.Type, types []reflect.Type) (*Constructor, error) {
	if c := pickOne(r.Constructors(target), types, exactTypes); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s%s", ErrNoMatchingConstructor, target, typeList(types))
}

func exactTypes(from, to reflect.Type) bool { return from == to }

func pickOne(cs []*Constructor, types []reflect.Type, ok func(from, to reflect.Type) bool) *Constructor {
	for _, c := range cs {
		if acceptsTypes(c, types, ok) {
			return c
		}
	}
	return nil
}

func acceptsTypes(c *Constructor, types []reflect.Type, ok func(from, to reflect.Type) bool) bool {
	if len(c.types) != len(types) || len(types) == 0 {
		return false
	}
	for i, t := range types {
		if !ok(t, c.types[i]) {
			return false
		}
	}
	return true
}

func typeList(types []reflect.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		if t == nil {
			parts[i] = "nil"
		} else {
			parts[i] = t.String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
