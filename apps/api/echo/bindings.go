package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/paginate"
)

var (
	orderingParam  = "ordering"
	errInvalidPage = echo.NewHTTPError(http.StatusNotFound, "invalid page")
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// PageQuery selects a page of a searched and sorted list.
type PageQuery struct {
	Search   string `query:"search"`
	Sort     string `query:"sort"` // field, or -field for descending
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// Page is a page of items with the state of its paginator.
type Page[T any] struct {
	Items []T           `json:"items"`
	Meta  paginate.Meta `json:"meta"`
}

// paginateBooks applies pq on books. Unknown sort fields are ignored.
func paginateBooks(books []marking.BookSummary, excluded map[int64]bool, pq PageQuery) (Page[marking.BookSummary], error) {
	p := marking.NewBookPaginator(books, excluded, pq.PageSize)
	if key := core.CleanString(pq.Search); key != "" {
		p.Search(key)
	}
	if sort := strings.TrimSpace(pq.Sort); sort != "" {
		p.SetSort(strings.TrimPrefix(sort, "-"), strings.HasPrefix(sort, "-"))
	}
	if pq.Page > 1 && !p.GoTo(pq.Page) {
		return Page[marking.BookSummary]{}, errInvalidPage
	}
	return Page[marking.BookSummary]{Items: p.PageItems(), Meta: p.Meta()}, nil
}
