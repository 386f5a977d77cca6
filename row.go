package xrepo

import (
	"fmt"
	"reflect"
	"strings"
)

// Row is one positional result record of a projected query. Element i
// corresponds to selection i of the projection that produced the query.
type Row interface {
	Len() int
	Get(i int) any
	// Type reports the static type of element i when the selection declared
	// one, otherwise the runtime type of the value. A NULL in an untyped
	// column reports nil.
	Type(i int) reflect.Type
	Alias(i int) string
}

type tuple struct {
	aliases []string
	types   []reflect.Type
	values  []any
}

// NewRow builds a Row from aliases and values. Element types are taken from
// the values. It panics if the slices differ in length.
func NewRow(aliases []string, values ...any) Row {
	if len(aliases) != len(values) {
		panic(fmt.Sprintf("xrepo: NewRow: %d aliases for %d values", len(aliases), len(values)))
	}
	types := make([]reflect.Type, len(values))
	for i, v := range values {
		types[i] = reflect.TypeOf(v)
	}
	return &tuple{aliases: aliases, types: types, values: values}
}

func (t *tuple) Len() int                { return len(t.values) }
func (t *tuple) Get(i int) any           { return t.values[i] }
func (t *tuple) Type(i int) reflect.Type { return t.types[i] }
func (t *tuple) Alias(i int) string      { return t.aliases[i] }

func (t *tuple) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range t.values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", t.aliases[i], v)
	}
	b.WriteByte(')')
	return b.String()
}

// Values copies the elements of r in order.
func Values(r Row) []any {
	out := make([]any, r.Len())
	for i := range out {
		out[i] = r.Get(i)
	}
	return out
}

// Lookup returns the first element whose alias matches name, ignoring ASCII case.
func Lookup(r Row, name string) (any, bool) {
	name = toLowerAscii(name)
	for i := 0; i < r.Len(); i++ {
		if toLowerAscii(r.Alias(i)) == name {
			return r.Get(i), true
		}
	}
	return nil, false
}

func rowTypes(r Row) []reflect.Type {
	out := make([]reflect.Type, r.Len())
	for i := range out {
		out[i] = r.Type(i)
	}
	return out
}

var rowType = reflect.TypeFor[Row]()
