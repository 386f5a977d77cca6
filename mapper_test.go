package xrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"testing"
	"time"
)

// firstRow queries db through the test driver and positions on the first row.
func firstRow(t *testing.T, cols []string, vals ...[]driver.Value) *sql.Rows {
	t.Helper()
	db := newTestDB(t, "sqlite", func(q string, _ []driver.NamedValue) ([]string, [][]driver.Value, error) {
		return cols, vals, nil
	})
	rows, err := db.QueryContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	t.Cleanup(func() { _ = rows.Close() })
	if !rows.Next() {
		t.Fatalf("no row: %v", rows.Err())
	}
	return rows
}

func scanAs[T any](t *testing.T, m *Mapper, rows *sql.Rows) T {
	t.Helper()
	v, err := m.scanValue(rows, reflect.TypeFor[T]())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return v.Interface().(T)
}

func colHash(cols []string) uint64 {
	h := fnv.New64a()
	for _, c := range cols {
		_, _ = h.Write([]byte(c))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func TestNormalizeAndLower(t *testing.T) {
	cases := map[string]string{
		`"Name"`:        "name",
		"`Camel`":       "camel",
		"[UPPER]":       "upper",
		"already_ok":    "already_ok",
		"MiXeD_123":     "mixed_123",
		`"unterminated`: `"unterminated`,
	}
	for in, want := range cases {
		if got := normalizeColAscii(in); got != want {
			t.Fatalf("normalize %q got %q want %q", in, got, want)
		}
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag    string
		name   string
		inline bool
		omit   bool
	}{
		{"", "", false, false},
		{"-", "", false, true},
		{"col", "col", false, false},
		{",inline", "", true, false},
		{"col,inline", "col", true, false},
		{"inline,col", "col", true, false},
	}
	for _, tc := range tests {
		name, inline, omit := parseTag(tc.tag)
		if name != tc.name || inline != tc.inline || omit != tc.omit {
			t.Fatalf("parseTag %q = (%q,%v,%v), want (%q,%v,%v)",
				tc.tag, name, inline, omit, tc.name, tc.inline, tc.omit)
		}
	}
}

func TestBuildStructIndex_DeclarationOrder(t *testing.T) {
	type Audit struct {
		Created time.Time `db:"created"`
	}
	type Embedded struct {
		Inner string `db:"inner"`
	}
	type Outer struct {
		ID       int `db:"id"`
		Embedded     // anonymous: flattened
		Name     string
		Audit    Audit  `db:",inline"`
		Skip     string `db:"-"`
		unexp    int
	}
	_ = Outer{unexp: 1}

	fi := buildStructIndex(reflect.TypeOf(Outer{}))
	var names []string
	for _, f := range fi.fields {
		names = append(names, f.name)
	}
	want := []string{"id", "inner", "Name", "created"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	if f := fi.byName["name"]; f == nil || f.typ != reflect.TypeOf("") {
		t.Fatalf("name lookup must ignore case: %+v", f)
	}
	if _, ok := fi.byName["skip"]; ok {
		t.Fatal("skip should be omitted")
	}
}

func TestStructIndexCacheAndPlanCacheReuse(t *testing.T) {
	type S struct {
		A int `db:"a"`
	}
	m := NewMapper()
	rt := reflect.TypeOf(S{})
	if m.structIndex(rt) != m.structIndex(rt) {
		t.Fatal("structIndexCache not reused")
	}

	cols := []string{"a"}
	p1, err := m.getPlan(rt, cols, colHash(cols))
	if err != nil {
		t.Fatal(err)
	}
	p2, err := m.getPlan(rt, cols, colHash(cols))
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("planCache not reused")
	}
}

func TestPlan_Strict_UnmappedColumn(t *testing.T) {
	type S struct {
		A int `db:"a"`
	}
	cols := []string{"a", "b"}
	lenient := NewMapper()
	if _, err := lenient.getPlan(reflect.TypeOf(S{}), cols, colHash(cols)); err != nil {
		t.Fatalf("lenient plan: %v", err)
	}
	strict := &Mapper{Strict: true}
	_, err := strict.getPlan(reflect.TypeOf(S{}), cols, colHash(cols))
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("want ErrShapeMismatch, got %v", err)
	}
}

type scanString string

func (s *scanString) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		*s = scanString(string(v))
		return nil
	case string:
		*s = scanString(v)
		return nil
	default:
		return fmt.Errorf("bad %T", src)
	}
}

func TestTypeHelpers(t *testing.T) {
	type S struct{ A int }
	if !isStruct(reflect.TypeOf(&S{})) {
		t.Fatal("isStruct false")
	}
	if derefPtr(reflect.TypeOf(&S{})) != reflect.TypeOf(S{}) {
		t.Fatal("derefPtr wrong")
	}
	if !implementsScanner(reflect.TypeOf(scanString(""))) {
		t.Fatal("implementsScanner false")
	}
	if !isDirectlyScannable(reflect.TypeOf(time.Now())) || !isDirectlyScannable(reflect.TypeOf(sql.RawBytes{})) {
		t.Fatal("time.Time and sql.RawBytes should be scannable")
	}
}

func TestPickIndirect(t *testing.T) {
	type MyInt int16
	type PStr *string

	cases := []struct {
		dst    reflect.Type
		convTo reflect.Type
		ok     bool
	}{
		{reflect.TypeOf(""), reflect.TypeOf([]byte(nil)), true},
		{reflect.TypeOf(int8(0)), reflect.TypeOf(int64(0)), true},
		{reflect.TypeOf(uint16(0)), reflect.TypeOf(uint64(0)), true},
		{reflect.TypeOf(float32(0)), reflect.TypeOf(float64(0)), true},
		{reflect.TypeOf(MyInt(0)), reflect.TypeOf(int64(0)), true},
		{reflect.TypeOf(PStr(nil)), reflect.TypeOf(""), true},
		{reflect.TypeOf(struct{}{}), nil, false},
	}
	for _, tc := range cases {
		conv, post, ok := pickIndirect(tc.dst)
		if ok != tc.ok || conv != tc.convTo || (ok && post == nil) {
			t.Fatalf("pickIndirect(%s) = (%v, %v), want (%v, %v)", tc.dst, conv, ok, tc.convTo, tc.ok)
		}
	}

	_, post, _ := pickIndirect(reflect.TypeOf(MyInt(0)))
	dst := reflect.New(reflect.TypeOf(MyInt(0))).Elem()
	if err := post(dst, reflect.ValueOf(int64(-3))); err != nil || dst.Interface().(MyInt) != -3 {
		t.Fatalf("MyInt post: %v %v", dst, err)
	}

	_, post, _ = pickIndirect(reflect.TypeOf(PStr(nil)))
	pdst := reflect.New(reflect.TypeOf(PStr(nil))).Elem()
	if err := post(pdst, reflect.ValueOf("hi")); err != nil || *pdst.Interface().(PStr) != "hi" {
		t.Fatalf("PStr post: %v %v", pdst, err)
	}
}

func TestScanValue_Struct_DirectIndirectAndDrop(t *testing.T) {
	type Row struct {
		Name  string       `db:"name"`
		Age   int32        `db:"age"`
		Ok    bool         `db:"ok"`
		TS    time.Time    `db:"ts"`
		Raw   sql.RawBytes `db:"raw"`
		Email scanString   `db:"email"`
	}
	now := time.Unix(1700000000, 0).UTC()
	rows := firstRow(t,
		[]string{`"Name"`, "`Age`", "[OK]", "TS", "RAW", "EMAIL", "UNMAPPED"},
		[]driver.Value{[]byte("bob"), int64(33), true, now, []byte("xyz"), []byte("bob@x"), "ignored"})

	got := scanAs[Row](t, NewMapper(), rows)
	if got.Name != "bob" || got.Age != 33 || !got.Ok || !got.TS.Equal(now) || string(got.Raw) != "xyz" || string(got.Email) != "bob@x" {
		t.Fatalf("bad struct scan: %+v", got)
	}
}

func TestScanValue_Struct_PointerInline_Alloc(t *testing.T) {
	type Org struct {
		OrgID   int64  `db:"org_id"`
		OrgName string `db:"org_name"`
	}
	type Member struct {
		ID  int64 `db:"id"`
		Org *Org  `db:",inline"`
	}
	rows := firstRow(t, []string{"id", "org_id", "org_name"}, []driver.Value{int64(1), int64(9), "acme"})

	got := scanAs[Member](t, NewMapper(), rows)
	if got.Org == nil || got.Org.OrgID != 9 || got.Org.OrgName != "acme" {
		t.Fatalf("unexpected member: %+v", got)
	}
}

func TestScanValue_TimeIsSingleColumn(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	rows := firstRow(t, []string{"created"}, []driver.Value{now})

	if got := scanAs[time.Time](t, NewMapper(), rows); !got.Equal(now) {
		t.Fatalf("got %v", got)
	}
}

func TestScanValue_ScannerWholeType(t *testing.T) {
	rows := firstRow(t, []string{"s"}, []driver.Value{[]byte("hi")})
	if got := scanAs[scanString](t, NewMapper(), rows); got != "hi" {
		t.Fatalf("got %q", got)
	}

	rows = firstRow(t, []string{"s"}, []driver.Value{nil})
	if got := scanAs[sql.NullString](t, NewMapper(), rows); got.Valid {
		t.Fatalf("NULL should scan invalid: %+v", got)
	}
}

func TestScanValue_Errors(t *testing.T) {
	rows := firstRow(t, []string{"a", "b"}, []driver.Value{"x", "y"})
	if _, err := NewMapper().scanValue(rows, reflect.TypeFor[scanString]()); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("scanner with 2 columns: %v", err)
	}
	if _, err := NewMapper().scanValue(rows, reflect.TypeFor[int64]()); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("primitive with 2 columns: %v", err)
	}

	rows = firstRow(t, []string{}, []driver.Value{})
	if _, err := NewMapper().scanValue(rows, reflect.TypeFor[struct{}]()); err == nil || err.Error() != "xrepo: query returned zero columns" {
		t.Fatalf("unexpected err: %v", err)
	}
}

type items []string

func (it *items) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("items: %T", src)
	}
	return json.Unmarshal(b, it)
}

func TestScanValue_JSONScannerField(t *testing.T) {
	type Row struct {
		Items items `db:"items"`
	}
	js, _ := json.Marshal([]string{"a", "b"})
	rows := firstRow(t, []string{"items"}, []driver.Value{js})

	got := scanAs[Row](t, NewMapper(), rows)
	if len(got.Items) != 2 || got.Items[0] != "a" || got.Items[1] != "b" {
		t.Fatalf("bad items: %+v", got.Items)
	}
}

func TestScanTuple_TypedColumns(t *testing.T) {
	sels := []Selection{
		&Path{expr: "a", alias: "name", typ: reflect.TypeFor[string]()},
		&Path{expr: "b", alias: "age", typ: reflect.TypeFor[int]()},
		&Path{expr: "c", alias: "extra"},
	}
	rows := firstRow(t, []string{"name", "age", "extra"}, []driver.Value{[]byte("Ada"), int64(36), 1.5})

	r, err := NewMapper().scanTuple(rows, sels)
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 || r.Get(0) != "Ada" || r.Get(1) != 36 || r.Get(2) != 1.5 {
		t.Fatalf("unexpected row: %v", r)
	}
	if r.Type(0) != reflect.TypeFor[string]() || r.Type(1) != reflect.TypeFor[int]() || r.Type(2) != reflect.TypeFor[float64]() {
		t.Fatalf("types: %v %v %v", r.Type(0), r.Type(1), r.Type(2))
	}
	if r.Alias(1) != "age" {
		t.Fatalf("alias: %q", r.Alias(1))
	}
}

func TestScanTuple_NullablePointerColumn(t *testing.T) {
	sels := []Selection{&Path{expr: "tag", alias: "tag", typ: reflect.TypeFor[*string]()}}
	rows := firstRow(t, []string{"tag"}, []driver.Value{nil})

	r, err := NewMapper().scanTuple(rows, sels)
	if err != nil {
		t.Fatal(err)
	}
	if p := r.Get(0).(*string); p != nil {
		t.Fatalf("want nil *string, got %q", *p)
	}
}

func TestScanTuple_ColumnCountMismatch(t *testing.T) {
	sels := []Selection{&Path{expr: "a", alias: "a", typ: reflect.TypeFor[int]()}}
	rows := firstRow(t, []string{"a", "b"}, []driver.Value{int64(1), int64(2)})

	if _, err := NewMapper().scanTuple(rows, sels); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("want ErrShapeMismatch, got %v", err)
	}
}

func TestGetMapper_Lazy(t *testing.T) {
	if m := getMapper(); m == nil || m != getMapper() {
		t.Fatal("getMapper not lazy/singleton")
	}
}
