package marking

import (
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/paginate"
	"github.com/trezcool/markit/core/task"
)

// ExcludedQuestions returns the ids of the questions of t not counted in totals.
func ExcludedQuestions(t task.Task) map[int64]bool {
	excluded := make(map[int64]bool)
	for _, q := range t.Questions {
		if q.ExcludedFromTotal {
			excluded[q.ID] = true
		}
	}
	return excluded
}

// NewBookPaginator returns a paginator over books, searchable by student and sortable by
// id, student_id, student_name, submitted_at, created_at, markings and total.
func NewBookPaginator(books []BookSummary, excluded map[int64]bool, pageSize int) *paginate.Paginator[BookSummary] {
	p := paginate.New(books, pageSize)
	p.SetSearchMatcher(func(bs BookSummary, key string) bool {
		return answer.MatchBook(bs.Book, key)
	})
	p.RegisterSortField("id", func(bs BookSummary) any { return bs.ID })
	p.RegisterSortField("student_id", func(bs BookSummary) any { return bs.StudentID })
	p.RegisterSortField("student_name", func(bs BookSummary) any {
		if bs.Student == nil {
			return nil
		}
		return bs.Student.Name
	})
	p.RegisterSortField("submitted_at", func(bs BookSummary) any { return bs.SubmittedAt })
	p.RegisterSortField("created_at", func(bs BookSummary) any { return bs.CreatedAt })
	p.RegisterSortField("markings", func(bs BookSummary) any { return len(bs.Markings) })
	p.RegisterSortField("total", func(bs BookSummary) any {
		if total, ok := bs.Total(excluded); ok {
			return total
		}
		return nil
	})
	return p
}
