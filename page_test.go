package xrepo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequest(t *testing.T) {
	p := PageRequest(2, 10, Asc("id"))
	assert.True(t, p.IsPaged())
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, Sort{Asc("id")}, p.Sort())
	assert.Equal(t, 3, p.Next().PageNumber())

	clamped := PageRequest(-1, 0)
	assert.Equal(t, 0, clamped.PageNumber())
	assert.Equal(t, 1, clamped.PageSize())

	u := Unpaged()
	assert.False(t, u.IsPaged())
	assert.Equal(t, u, u.Next())
	assert.False(t, Pageable{}.IsPaged())
}

func TestPage_Totals(t *testing.T) {
	cases := []struct {
		name    string
		page    Pageable
		total   int64
		pages   int
		hasNext bool
	}{
		{"first of three", PageRequest(0, 10), 25, 3, true},
		{"last", PageRequest(2, 10), 25, 3, false},
		{"exact", PageRequest(0, 5), 10, 2, true},
		{"empty", PageRequest(0, 5), 0, 0, false},
		{"unpaged", Unpaged(), 7, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Page[int]{Pageable: tc.page, Total: tc.total}
			assert.Equal(t, tc.pages, p.TotalPages())
			assert.Equal(t, tc.hasNext, p.HasNext())
		})
	}
}

func TestMapPage(t *testing.T) {
	src := &Page[int]{Content: []int{1, 2}, Pageable: PageRequest(1, 2), Total: 9}
	out, err := mapPage(src, func(v int) (int64, error) { return int64(v) * 2, nil })
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, out.Content)
	assert.Equal(t, src.Pageable, out.Pageable)
	assert.Equal(t, int64(9), out.Total)
	assert.Equal(t, 2, out.NumberOfElements())

	boom := errors.New("boom")
	_, err = mapPage(src, func(int) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSort(t *testing.T) {
	s := By(Asc("name")).And(By(Desc("age")))
	assert.True(t, s.IsSorted())
	assert.False(t, Sort(nil).IsSorted())
	assert.Equal(t, "DESC", s[1].Direction.String())

	root, q := newTestRoot(SQLite)
	require.NoError(t, applySort(root, s))
	assert.Equal(t, []queryOrder{
		{expr: `"people"."name"`},
		{expr: `"people"."age"`, desc: true},
	}, q.orders)

	err := applySort(root, By(Asc("salary")))
	assert.ErrorIs(t, err, ErrUnknownAttribute)
	assert.Contains(t, err.Error(), "xrepo: sort:")
}

func TestStreamingHints(t *testing.T) {
	h := StreamingHints(500)
	assert.Equal(t, 500, h[HintFetchSize])
	assert.True(t, hintBool(h, HintReadOnly))
	assert.False(t, hintBool(h, HintCacheable))
	assert.False(t, hintBool(nil, HintReadOnly))
}
