package xrepo

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder selects the positional parameter style a dialect expects.
// Generated SQL always uses "?" internally and is rewritten once per query.
//
//   - PlaceholderQuestion   → "?"           (MySQL, SQLite)
//   - PlaceholderDollar     → "$1, $2, …"  (PostgreSQL)
//   - PlaceholderAtP        → "@p1, @p2…"  (SQL Server)
//   - PlaceholderColonNum   → ":1, :2, …"  (Oracle)
type Placeholder int

const (
	PlaceholderQuestion Placeholder = iota
	PlaceholderDollar
	PlaceholderAtP
	PlaceholderColonNum
)

func (p Placeholder) marker(n int) string {
	switch p {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(n)
	case PlaceholderColonNum:
		return ":" + strconv.Itoa(n)
	}
	return "?"
}

// ErrNilParams is returned when a Where clause is bound from a nil struct
// pointer or nil value.
var ErrNilParams = errors.New("xrepo: where: nil params")

// ErrUnsupportedArg is returned when named parameters are bound from
// something other than a struct or a map with string keys.
var ErrUnsupportedArg = errors.New("xrepo: where: params must be struct or map[string]any")

type tokenKind uint8

const (
	tokText       tokenKind = iota // copied as is
	tokIdent                       // bare identifier, maybe an attribute
	tokNamed                       // :name
	tokPositional                  // ?
)

// token is one lexeme of a SQL fragment; text is its source text.
type token struct {
	kind tokenKind
	text string
}

// lexClause splits a SQL fragment into tokens. String literals, quoted
// identifiers, comments, dollar-quoted bodies, casts, numbers and qualified
// or called names are text. An unterminated literal or comment turns the rest
// of the fragment into text and is reported.
func lexClause(s string) ([]token, error) {
	var toks []token
	pending := 0
	flush := func(end int) {
		if end > pending {
			toks = append(toks, token{kind: tokText, text: s[pending:end]})
		}
		pending = end
	}
	emit := func(start, end int, k tokenKind) {
		flush(start)
		toks = append(toks, token{kind: k, text: s[start:end]})
		pending = end
	}
	fail := func(what string) ([]token, error) {
		flush(len(s))
		return toks, fmt.Errorf("xrepo: unterminated %s in %q", what, s)
	}

	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '\'' || r == '"' || r == '`':
			j, ok := closeQuote(s, i+1, byte(r))
			if !ok {
				return fail("quoted text")
			}
			i = j
		case strings.HasPrefix(s[i:], "--"):
			if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
				i += j + 1
			} else {
				i = len(s)
			}
		case strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return fail("block comment")
			}
			i += j + 4
		case r == '$':
			j, ok := dollarQuoteEnd(s, i)
			if ok && j < 0 {
				return fail("dollar-quoted string")
			}
			if ok {
				i = j
			} else {
				i++
			}
		case strings.HasPrefix(s[i:], "::"):
			_, i = parseIdent(s, i+2)
		case r == ':':
			if name, j := parseIdent(s, i+1); name != "" {
				emit(i, j, tokNamed)
				i = j
			} else {
				i++
			}
		case r == '?':
			emit(i, i+1, tokPositional)
			i++
		case unicode.IsDigit(r):
			_, i = parseIdent(s, i)
		case r == '_' || unicode.IsLetter(r):
			_, j := parseIdent(s, i)
			if !qualifiedOrCalled(s, i, j) {
				emit(i, j, tokIdent)
			}
			i = j
		default:
			i += w
		}
	}
	flush(len(s))
	return toks, nil
}

// closeQuote returns the index after the quote closing a literal opened
// before i. A doubled quote is an escaped quote.
func closeQuote(s string, i int, q byte) (int, bool) {
	for i < len(s) {
		j := strings.IndexByte(s[i:], q)
		if j < 0 {
			return 0, false
		}
		i += j + 1
		if i < len(s) && s[i] == q {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}

// dollarQuoteEnd reports whether $tag$ opens a PostgreSQL dollar-quoted
// body at i, and where the body ends (-1 when unterminated).
func dollarQuoteEnd(s string, i int) (int, bool) {
	j := i + 1
	for j < len(s) && s[j] != '$' {
		r, w := utf8.DecodeRuneInString(s[j:])
		if r != '_' && !unicode.IsLetter(r) && (j == i+1 || !unicode.IsDigit(r)) {
			return 0, false
		}
		j += w
	}
	if j >= len(s) {
		return 0, false
	}
	tag := s[i : j+1]
	k := strings.Index(s[j+1:], tag)
	if k < 0 {
		return -1, true
	}
	return j + 1 + k + len(tag), true
}

// qualifiedOrCalled reports whether the identifier s[i:j] is part of a
// dotted name or a function call, which are never attribute references.
func qualifiedOrCalled(s string, i, j int) bool {
	if i > 0 && s[i-1] == '.' || j < len(s) && s[j] == '.' {
		return true
	}
	rest := strings.TrimLeft(s[j:], " \t\r\n")
	return rest != "" && rest[0] == '('
}

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i += w
	}
	return s[start:i], i
}

// bindClause prepares a hand-written condition. Bare identifiers that column
// resolves are replaced by its result. With exactly one struct or
// map[string]any argument, :name parameters are bound from it (a slice
// expands to a list, an empty slice to NULL). Otherwise params are positional
// and must match the "?" count. The result uses "?" placeholders only.
func bindClause(clause string, column func(name string) (string, bool), params ...any) (string, []any, error) {
	toks, err := lexClause(clause)
	if err != nil {
		return "", nil, err
	}
	var named paramLookup
	if len(params) == 1 && looksBindable(params[0]) {
		if named, err = buildParamLookup(params[0]); err != nil {
			return "", nil, err
		}
	}

	var b strings.Builder
	b.Grow(len(clause) + 16)
	var args []any
	positional := 0
	for _, t := range toks {
		switch t.kind {
		case tokIdent:
			if column == nil {
				break
			}
			if col, ok := column(t.text); ok {
				b.WriteString(col)
				continue
			}
		case tokPositional:
			if named != nil {
				return "", nil, fmt.Errorf("xrepo: where: %q mixes ? with :name parameters", clause)
			}
			positional++
		case tokNamed:
			if named == nil {
				break
			}
			v, ok := named.lookup(t.text[1:])
			if !ok {
				return "", nil, fmt.Errorf("xrepo: where: missing value for %s", t.text)
			}
			args = bindValue(&b, args, v)
			continue
		}
		b.WriteString(t.text)
	}
	if named == nil {
		if positional != len(params) {
			return "", nil, fmt.Errorf("xrepo: where: %q has %d placeholders, %d arguments given", clause, positional, len(params))
		}
		args = params
	}
	return b.String(), args, nil
}

// bindValue writes the placeholders of one named value.
func bindValue(b *strings.Builder, args []any, v any) []any {
	rv := reflect.ValueOf(v)
	if !expandsToList(rv) {
		b.WriteByte('?')
		return append(args, v)
	}
	if rv.Len() == 0 {
		b.WriteString("NULL")
		return args
	}
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
		args = append(args, rv.Index(i).Interface())
	}
	return args
}

// expandsToList reports whether v binds as a value list; []byte is a scalar.
func expandsToList(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice:
		return v.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

// rewritePlaceholders renumbers the "?" placeholders of generated SQL for
// ph. Placeholders inside literals and comments are left alone.
func rewritePlaceholders(query string, ph Placeholder) string {
	if ph == PlaceholderQuestion {
		return query
	}
	toks, _ := lexClause(query)
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, t := range toks {
		if t.kind == tokPositional {
			n++
			b.WriteString(ph.marker(n))
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}

func looksBindable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		return rv.Type().Key().Kind() == reflect.String
	}
	return rv.Kind() == reflect.Struct
}

// paramLookup maps lower-cased parameter names to values.
type paramLookup map[string]any

func (l paramLookup) lookup(name string) (any, bool) {
	v, ok := l[toLowerAscii(name)]
	return v, ok
}

// buildParamLookup collects the named values of a map or struct. Struct
// fields are named by the scanning rules (db tags, inline and embedded
// structs flattened, "-" skipped); fields behind nil embedded pointers are
// absent.
func buildParamLookup(params any) (paramLookup, error) {
	if params == nil {
		return nil, ErrNilParams
	}
	rv := reflect.ValueOf(params)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, ErrNilParams
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrUnsupportedArg
		}
		l := make(paramLookup, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			l[toLowerAscii(it.Key().String())] = it.Value().Interface()
		}
		return l, nil
	case reflect.Struct:
		fi := getMapper().structIndex(rv.Type())
		l := make(paramLookup, len(fi.fields))
		for _, f := range fi.fields {
			if v, ok := fieldByPath(rv, f.path); ok && v.CanInterface() {
				l[toLowerAscii(f.name)] = v.Interface()
			}
		}
		return l, nil
	}
	return nil, ErrUnsupportedArg
}

// fieldByPath walks fpath without allocating; false when a nil pointer is
// in the way.
func fieldByPath(v reflect.Value, fpath []int) (reflect.Value, bool) {
	for _, i := range fpath {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	return v, true
}
