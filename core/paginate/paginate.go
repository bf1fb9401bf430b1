// Package paginate provides in-memory paged access, search filtering and column sorting over a list.
//
// A Paginator is not safe for concurrent use.
package paginate

import (
	"sort"
)

// DefaultPageSize is used when a Paginator is created with a page size < 1.
const DefaultPageSize = 500

type (
	// Matcher reports whether item matches the search key.
	Matcher[T any] func(item T, key string) bool

	// Accessor returns the value of a sortable field of item.
	// Numbers are compared numerically, time.Time chronologically, strings lexicographically.
	Accessor[T any] func(item T) any
)

// Meta summarises the state of a Paginator.
type Meta struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
	Search     string `json:"search"`
	Sort       string `json:"sort"`
	SortDesc   bool   `json:"sort_desc"`
}

type Paginator[T any] struct {
	items      []T
	filtered   []T
	pageSize   int
	page       int
	totalPages int

	key     string
	matcher Matcher[T]

	fields    map[string]Accessor[T]
	sortField string
	sortDesc  bool
}

// New returns a Paginator over items, on its first page.
func New[T any](items []T, pageSize int) *Paginator[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	p := &Paginator[T]{
		items:    items,
		pageSize: pageSize,
		page:     1,
		fields:   make(map[string]Accessor[T]),
	}
	p.apply()
	return p
}

// SetSearchMatcher registers the predicate used by Search.
func (p *Paginator[T]) SetSearchMatcher(matcher Matcher[T]) {
	p.matcher = matcher
}

// Search filters the items with the search matcher and goes back to the first page.
// An empty key resets to the full, unfiltered and unsorted list.
func (p *Paginator[T]) Search(key string) {
	p.key = key
	if key == "" {
		p.sortField = ""
		p.sortDesc = false
	}
	p.apply()
	p.page = 1
}

// Key returns the current search key.
func (p *Paginator[T]) Key() string {
	return p.key
}

// Items returns the underlying (unfiltered) list.
func (p *Paginator[T]) Items() []T {
	return p.items
}

// SetItems swaps the underlying list. Call Reload to refresh the filtered pages.
func (p *Paginator[T]) SetItems(items []T) {
	p.items = items
}

// Reload re-applies the current search and sort after the underlying list changed.
// The search key is preserved and the current page is kept when it still exists.
func (p *Paginator[T]) Reload() {
	p.apply()
	p.clampPage()
}

// Filtered returns a copy of the searched and sorted list.
func (p *Paginator[T]) Filtered() []T {
	out := make([]T, len(p.filtered))
	copy(out, p.filtered)
	return out
}

// Len returns the number of items matching the current search.
func (p *Paginator[T]) Len() int {
	return len(p.filtered)
}

// RegisterSortField makes field sortable through ToggleSort and SetSort.
func (p *Paginator[T]) RegisterSortField(field string, get Accessor[T]) {
	p.fields[field] = get
}

// ToggleSort sorts by field: ascending the first time, then flipping the direction on each call
// for the same field. Returns false for an unregistered field.
func (p *Paginator[T]) ToggleSort(field string) bool {
	if _, ok := p.fields[field]; !ok {
		return false
	}
	if p.sortField == field {
		p.sortDesc = !p.sortDesc
	} else {
		p.sortField = field
		p.sortDesc = false
	}
	p.apply()
	p.clampPage()
	return true
}

// SetSort sorts by field in the given direction. Returns false for an unregistered field.
func (p *Paginator[T]) SetSort(field string, desc bool) bool {
	if _, ok := p.fields[field]; !ok {
		return false
	}
	p.sortField = field
	p.sortDesc = desc
	p.apply()
	p.clampPage()
	return true
}

// ClearSort restores the order of the filtered list.
func (p *Paginator[T]) ClearSort() {
	p.sortField = ""
	p.sortDesc = false
	p.apply()
}

// SortField returns the active sort column ("" when unsorted).
func (p *Paginator[T]) SortField() string {
	return p.sortField
}

// SortDesc reports whether the active sort is descending.
func (p *Paginator[T]) SortDesc() bool {
	return p.sortDesc
}

// Page returns the current page number, starting at 1.
func (p *Paginator[T]) Page() int {
	return p.page
}

func (p *Paginator[T]) PageSize() int {
	return p.pageSize
}

// TotalPages returns ceil(len(filtered) / pageSize).
func (p *Paginator[T]) TotalPages() int {
	return p.totalPages
}

// PageItems returns the items of the current page.
func (p *Paginator[T]) PageItems() []T {
	return p.pageAt(p.page)
}

// Pages returns every page in order.
func (p *Paginator[T]) Pages() [][]T {
	pages := make([][]T, 0, p.totalPages)
	for i := 1; i <= p.totalPages; i++ {
		pages = append(pages, p.pageAt(i))
	}
	return pages
}

// Next moves to the next page; it is a no-op on the last page.
func (p *Paginator[T]) Next() bool {
	if p.page >= p.totalPages {
		return false
	}
	p.page++
	return true
}

// Prev moves to the previous page; it is a no-op on the first page.
func (p *Paginator[T]) Prev() bool {
	if p.page <= 1 {
		return false
	}
	p.page--
	return true
}

// GoTo moves to page n if it exists.
func (p *Paginator[T]) GoTo(n int) bool {
	if n < 1 || n > p.totalPages {
		return false
	}
	p.page = n
	return true
}

func (p *Paginator[T]) HasNext() bool { return p.page < p.totalPages }
func (p *Paginator[T]) HasPrev() bool { return p.page > 1 }

func (p *Paginator[T]) Meta() Meta {
	return Meta{
		Page:       p.page,
		PageSize:   p.pageSize,
		Total:      len(p.filtered),
		TotalPages: p.totalPages,
		HasNext:    p.HasNext(),
		HasPrev:    p.HasPrev(),
		Search:     p.key,
		Sort:       p.sortField,
		SortDesc:   p.sortDesc,
	}
}

func (p *Paginator[T]) pageAt(n int) []T {
	if n < 1 || n > p.totalPages {
		return []T{}
	}
	start := (n - 1) * p.pageSize
	end := len(p.filtered)
	if end-start > p.pageSize {
		end = start + p.pageSize
	}
	return p.filtered[start:end]
}

// apply rebuilds the filtered list from the items: search first, then sort.
func (p *Paginator[T]) apply() {
	filtered := make([]T, 0, len(p.items))
	if p.key == "" || p.matcher == nil {
		filtered = append(filtered, p.items...)
	} else {
		for _, item := range p.items {
			if p.matcher(item, p.key) {
				filtered = append(filtered, item)
			}
		}
	}

	if get, ok := p.fields[p.sortField]; ok && p.sortField != "" {
		desc := p.sortDesc
		sort.SliceStable(filtered, func(i, j int) bool {
			c := compare(get(filtered[i]), get(filtered[j]))
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	p.filtered = filtered
	p.totalPages = len(filtered) / p.pageSize
	if len(filtered)%p.pageSize != 0 {
		p.totalPages++
	}
}

func (p *Paginator[T]) clampPage() {
	if p.page > p.totalPages {
		p.page = p.totalPages
	}
	if p.page < 1 {
		p.page = 1
	}
}
