package xrepo

// Pageable requests one page of a result: zero-based page number, page size
// and sort. The zero value is unpaged and unsorted.
type Pageable struct {
	page  int
	size  int
	sort  Sort
	paged bool
}

// PageRequest requests page number page (zero-based) of size elements.
// A negative page is treated as 0 and a size below 1 as 1.
//
//	p := xrepo.PageRequest(2, 10, xrepo.Asc("id")) // offset 20, limit 10
func PageRequest(page, size int, sort ...Order) Pageable {
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = 1
	}
	return Pageable{page: page, size: size, sort: Sort(sort), paged: true}
}

// Unpaged requests the whole result in one page.
func Unpaged(sort ...Order) Pageable {
	return Pageable{sort: Sort(sort)}
}

func (p Pageable) IsPaged() bool   { return p.paged }
func (p Pageable) PageNumber() int { return p.page }
func (p Pageable) PageSize() int   { return p.size }
func (p Pageable) Sort() Sort      { return p.sort }

// Offset is the index of the first element of the page.
func (p Pageable) Offset() int { return p.page * p.size }

// Next returns the request for the following page.
func (p Pageable) Next() Pageable {
	if !p.paged {
		return p
	}
	n := p
	n.page++
	return n
}

// Page is one page of results plus the total number of matching elements.
type Page[T any] struct {
	Content  []T
	Pageable Pageable
	Total    int64
}

// NumberOfElements is the number of elements on this page.
func (p *Page[T]) NumberOfElements() int { return len(p.Content) }

// TotalPages is the number of pages needed for Total elements.
func (p *Page[T]) TotalPages() int {
	if !p.Pageable.IsPaged() {
		return 1
	}
	size := int64(p.Pageable.PageSize())
	return int((p.Total + size - 1) / size)
}

// HasNext reports whether a page follows this one.
func (p *Page[T]) HasNext() bool {
	return p.Pageable.IsPaged() && p.Pageable.PageNumber()+1 < p.TotalPages()
}

func mapPage[P, R any](p *Page[P], f func(P) (R, error)) (*Page[R], error) {
	out := &Page[R]{Content: make([]R, 0, len(p.Content)), Pageable: p.Pageable, Total: p.Total}
	for _, v := range p.Content {
		r, err := f(v)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, r)
	}
	return out, nil
}
