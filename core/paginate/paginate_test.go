package paginate

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID    int
	Name  string
	Marks *float64
	At    time.Time
}

func fPtr(f float64) *float64 { return &f }

func makeRows(n int) []row {
	rows := make([]row, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, row{ID: i, Name: fmt.Sprintf("student %02d", i)})
	}
	return rows
}

func ids(rows []row) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func nameMatcher(r row, key string) bool {
	return strings.Contains(strings.ToLower(r.Name), strings.ToLower(key))
}

func newRowPaginator(rows []row, size int) *Paginator[row] {
	p := New(rows, size)
	p.SetSearchMatcher(nameMatcher)
	p.RegisterSortField("id", func(r row) any { return r.ID })
	p.RegisterSortField("name", func(r row) any { return r.Name })
	p.RegisterSortField("marks", func(r row) any { return r.Marks })
	p.RegisterSortField("at", func(r row) any { return r.At })
	return p
}

func TestNew_pageCount(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		size      int
		wantPages int
		wantSize  int
	}{
		{name: "empty", count: 0, size: 10, wantPages: 0, wantSize: 10},
		{name: "exact", count: 20, size: 10, wantPages: 2, wantSize: 10},
		{name: "remainder", count: 21, size: 10, wantPages: 3, wantSize: 10},
		{name: "single", count: 1, size: 10, wantPages: 1, wantSize: 10},
		{name: "page size 1", count: 7, size: 1, wantPages: 7, wantSize: 1},
		{name: "default page size", count: 501, size: 0, wantPages: 2, wantSize: DefaultPageSize},
		{name: "huge page size", count: 5, size: math.MaxInt, wantPages: 1, wantSize: math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(makeRows(tt.count), tt.size)
			assert.Equal(t, tt.wantPages, p.TotalPages())
			assert.Equal(t, tt.wantSize, p.PageSize())
			assert.Equal(t, 1, p.Page())
			assert.Len(t, p.PageItems(), min(tt.count, p.PageSize()))
		})
	}
}

func TestPages_concatenationReproducesFilteredSet(t *testing.T) {
	for _, count := range []int{0, 1, 9, 10, 11, 35} {
		for _, size := range []int{1, 3, 10, 50} {
			t.Run(fmt.Sprintf("%d items by %d", count, size), func(t *testing.T) {
				p := newRowPaginator(makeRows(count), size)
				p.Search("1")

				var concat []row
				pages := p.Pages()
				assert.Len(t, pages, p.TotalPages())
				for _, page := range pages {
					assert.LessOrEqual(t, len(page), size)
					concat = append(concat, page...)
				}
				assert.Equal(t, ids(p.Filtered()), ids(concat))
				assert.Equal(t, (p.Len()+size-1)/size, p.TotalPages())
			})
		}
	}
}

func TestSearch(t *testing.T) {
	p := newRowPaginator(makeRows(25), 10)
	require.True(t, p.GoTo(3))

	p.Search("student 1")
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, ids(p.Filtered()))
	assert.Equal(t, 1, p.Page(), "search goes back to the first page")
	assert.Equal(t, 1, p.TotalPages())
	assert.Equal(t, "student 1", p.Key())

	p.Search("nobody")
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, p.TotalPages())
	assert.Empty(t, p.PageItems())
}

func TestSearch_emptyKeyRestoresOriginalList(t *testing.T) {
	rows := makeRows(12)
	p := newRowPaginator(rows, 5)

	p.Search("student 0")
	require.True(t, p.ToggleSort("name"))
	require.True(t, p.ToggleSort("name"))
	require.Equal(t, 9, p.Len())

	p.Search("")
	assert.Equal(t, ids(rows), ids(p.Filtered()))
	assert.Equal(t, "", p.SortField())
	assert.False(t, p.SortDesc())
	assert.Equal(t, 3, p.TotalPages())
	assert.Equal(t, 1, p.Page())
}

func TestSearch_withoutMatcherKeepsEverything(t *testing.T) {
	p := New(makeRows(4), 2)
	p.Search("whatever")
	assert.Equal(t, 4, p.Len())
}

func TestReload(t *testing.T) {
	rows := makeRows(5)
	p := newRowPaginator(rows, 2)
	p.Search("student 0")
	require.Equal(t, 5, p.Len())

	rows = append(rows, row{ID: 6, Name: "student 06"}, row{ID: 7, Name: "other"})
	p.SetItems(rows)
	assert.Equal(t, 5, p.Len(), "pages are only recomputed on Reload")

	p.Reload()
	assert.Equal(t, "student 0", p.Key())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids(p.Filtered()))
	assert.Equal(t, 3, p.TotalPages())
}

func TestReload_keepsSortAndClampsPage(t *testing.T) {
	rows := makeRows(6)
	p := newRowPaginator(rows, 2)
	require.True(t, p.SetSort("id", true))
	require.True(t, p.GoTo(3))

	p.SetItems(rows[:3])
	p.Reload()
	assert.Equal(t, []int{3, 2, 1}, ids(p.Filtered()))
	assert.Equal(t, 2, p.Page())
	assert.Equal(t, "id", p.SortField())
	assert.True(t, p.SortDesc())
}

func TestToggleSort(t *testing.T) {
	rows := []row{
		{ID: 1, Name: "carol", Marks: fPtr(10)},
		{ID: 2, Name: "alice", Marks: fPtr(2)},
		{ID: 3, Name: "bob", Marks: nil},
		{ID: 4, Name: "alice", Marks: fPtr(10)},
		{ID: 5, Name: "dave", Marks: fPtr(9.5)},
	}

	t.Run("lexicographic", func(t *testing.T) {
		p := newRowPaginator(rows, 10)
		require.True(t, p.ToggleSort("name"))
		assert.Equal(t, []int{2, 4, 3, 1, 5}, ids(p.Filtered()))
		assert.Equal(t, "name", p.SortField())
		assert.False(t, p.SortDesc())

		require.True(t, p.ToggleSort("name"))
		assert.Equal(t, []int{5, 1, 3, 2, 4}, ids(p.Filtered()), "ties keep their order when descending")
		assert.True(t, p.SortDesc())
	})

	t.Run("numeric with nil", func(t *testing.T) {
		p := newRowPaginator(rows, 10)
		require.True(t, p.ToggleSort("marks"))
		assert.Equal(t, []int{3, 2, 5, 1, 4}, ids(p.Filtered()))
	})

	t.Run("another field starts ascending", func(t *testing.T) {
		p := newRowPaginator(rows, 10)
		require.True(t, p.ToggleSort("name"))
		require.True(t, p.ToggleSort("name"))
		require.True(t, p.ToggleSort("id"))
		assert.Equal(t, "id", p.SortField())
		assert.False(t, p.SortDesc())
		assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(p.Filtered()))
	})

	t.Run("unknown field", func(t *testing.T) {
		p := newRowPaginator(rows, 10)
		assert.False(t, p.ToggleSort("lol"))
		assert.Equal(t, "", p.SortField())
	})

	t.Run("numbers are not compared as strings", func(t *testing.T) {
		p := New([]row{{ID: 10}, {ID: 9}, {ID: 100}}, 10)
		p.RegisterSortField("id", func(r row) any { return r.ID })
		require.True(t, p.ToggleSort("id"))
		assert.Equal(t, []int{9, 10, 100}, ids(p.Filtered()))
	})

	t.Run("times", func(t *testing.T) {
		now := time.Now()
		p := newRowPaginator([]row{{ID: 1, At: now}, {ID: 2, At: now.Add(-time.Hour)}, {ID: 3, At: now.Add(time.Hour)}}, 10)
		require.True(t, p.ToggleSort("at"))
		assert.Equal(t, []int{2, 1, 3}, ids(p.Filtered()))
	})
}

func TestToggleSort_twiceMoreRestoresOrder(t *testing.T) {
	rows := []row{
		{ID: 1, Name: "b"}, {ID: 2, Name: "a"}, {ID: 3, Name: "b"}, {ID: 4, Name: "c"}, {ID: 5, Name: "a"},
	}
	p := newRowPaginator(rows, 2)

	require.True(t, p.ToggleSort("name"))
	first := ids(p.Filtered())

	require.True(t, p.ToggleSort("name"))
	require.True(t, p.ToggleSort("name"))
	assert.Equal(t, first, ids(p.Filtered()))
	assert.Equal(t, []int{2, 5, 1, 3, 4}, first)

	p.ClearSort()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(p.Filtered()))
}

func TestNavigation_boundaries(t *testing.T) {
	p := newRowPaginator(makeRows(5), 2)
	require.Equal(t, 3, p.TotalPages())

	assert.False(t, p.Prev(), "prev on first page")
	assert.Equal(t, 1, p.Page())
	assert.Equal(t, []int{1, 2}, ids(p.PageItems()))

	assert.True(t, p.Next())
	assert.True(t, p.Next())
	assert.Equal(t, []int{5}, ids(p.PageItems()))
	assert.False(t, p.Next(), "next on last page")
	assert.Equal(t, 3, p.Page())

	assert.True(t, p.Prev())
	assert.Equal(t, 2, p.Page())

	assert.False(t, p.GoTo(0))
	assert.False(t, p.GoTo(4))
	assert.Equal(t, 2, p.Page())

	empty := New([]row{}, 2)
	assert.False(t, empty.Next())
	assert.False(t, empty.Prev())
	assert.Equal(t, 1, empty.Page())
}

func TestMeta(t *testing.T) {
	p := newRowPaginator(makeRows(5), 2)
	p.Search("student")
	require.True(t, p.SetSort("id", true))
	require.True(t, p.Next())

	assert.Equal(t, Meta{
		Page:       2,
		PageSize:   2,
		Total:      5,
		TotalPages: 3,
		HasNext:    true,
		HasPrev:    true,
		Search:     "student",
		Sort:       "id",
		SortDesc:   true,
	}, p.Meta())
}
