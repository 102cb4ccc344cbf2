// Package paginate splits ordered listings into numbered pages of a fixed size.
package paginate

import "strconv"

// Paginator hands out pages of at most PerPage items.
type Paginator struct {
	perPage int
}

func New(perPage int) *Paginator {
	if perPage < 1 {
		perPage = 1
	}
	return &Paginator{perPage: perPage}
}

func (p *Paginator) PerPage() int {
	return p.perPage
}

// Page is one window of a listing plus the metadata templates need to link
// to its neighbours.
type Page[T any] struct {
	Items    []T
	Number   int
	NumPages int
	Count    int64
}

func (p Page[T]) Len() int { return len(p.Items) }
func (p Page[T]) HasNext() bool { return p.Number < p.NumPages }
func (p Page[T]) HasPrevious() bool { return p.Number > 1 }
func (p Page[T]) HasOtherPages() bool { return p.HasNext() || p.HasPrevious() }
func (p Page[T]) NextNumber() int { return p.Number + 1 }
func (p Page[T]) PreviousNumber() int { return p.Number - 1 }

// Window resolves a raw page parameter against count items. Anything that is
// not an integer means page 1; out of range numbers clamp to the nearest page.
// An empty listing still has one (empty) page.
func (p *Paginator) Window(count int64, raw string) (number, numPages, offset int) {
	numPages = int((count + int64(p.perPage) - 1) / int64(p.perPage))
	if numPages < 1 {
		numPages = 1
	}
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 {
		number = 1
	}
	if number > numPages {
		number = numPages
	}
	return number, numPages, (number - 1) * p.perPage
}

// Get loads the requested page of a listing with count items. load receives the
// offset and limit of the window.
func Get[T any](p *Paginator, count int64, raw string, load func(offset, limit int) ([]T, error)) (Page[T], error) {
	number, numPages, offset := p.Window(count, raw)
	page := Page[T]{Number: number, NumPages: numPages, Count: count}
	if count == 0 {
		return page, nil
	}
	items, err := load(offset, p.perPage)
	if err != nil {
		return page, err
	}
	page.Items = items
	return page, nil
}
