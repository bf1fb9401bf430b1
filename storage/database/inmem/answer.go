package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
)

type answerRepository struct {
	db *DB
}

var _ answer.Repository = (*answerRepository)(nil)

func NewAnswerRepository(db *DB) answer.Repository {
	return &answerRepository{db: db}
}

func (repo *answerRepository) CreateBook(_ context.Context, b answer.Book, _ ...core.DBExecutor) (answer.Book, error) {
	books := repo.db.book
	books.mutex.Lock()
	defer books.mutex.Unlock()

	if b.StudentID != nil {
		for _, row := range books.rows {
			if row.TaskID == b.TaskID && row.StudentID != nil && *row.StudentID == *b.StudentID {
				return answer.Book{}, answer.ErrDuplicateBook
			}
		}
	}
	b.ID = books.nextPK()
	b.Student, b.Creator, b.Modifier, b.Pages = nil, nil, nil, nil
	books.rows[b.ID] = &b
	return b, nil
}

func (repo *answerRepository) GetBook(_ context.Context, id int64, _ ...core.DBExecutor) (answer.Book, error) {
	books := repo.db.book
	books.mutex.RLock()
	defer books.mutex.RUnlock()

	if b, ok := books.rows[id]; ok {
		return *b, nil
	}
	return answer.Book{}, answer.ErrBookNotFound
}

func (repo *answerRepository) StudentBookExists(
	_ context.Context,
	taskID, studentID, excludedBookID int64,
	_ ...core.DBExecutor,
) (bool, error) {
	books := repo.db.book
	books.mutex.RLock()
	defer books.mutex.RUnlock()

	for _, row := range books.rows {
		if row.ID != excludedBookID && row.TaskID == taskID && row.StudentID != nil && *row.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *answerRepository) QueryBooks(_ context.Context, taskID int64, _ ...core.DBExecutor) ([]answer.Book, error) {
	books := repo.db.book
	books.mutex.RLock()
	defer books.mutex.RUnlock()

	return books.sorted(func(b answer.Book) bool { return b.TaskID == taskID }), nil
}

func (repo *answerRepository) NeighbourBook(_ context.Context, from answer.Book, next bool, _ ...core.DBExecutor) (answer.Book, error) {
	books := repo.db.book
	books.mutex.RLock()
	defer books.mutex.RUnlock()

	list := books.sorted(func(b answer.Book) bool {
		if b.TaskID != from.TaskID {
			return false
		}
		if next {
			return b.ID > from.ID
		}
		return b.ID < from.ID
	})
	if len(list) == 0 {
		return answer.Book{}, answer.ErrBookNotFound
	}
	if next {
		return list[0], nil
	}
	return list[len(list)-1], nil
}

func (repo *answerRepository) UpdateBook(_ context.Context, b answer.Book, _ ...core.DBExecutor) (answer.Book, error) {
	books := repo.db.book
	books.mutex.Lock()
	defer books.mutex.Unlock()

	if _, ok := books.rows[b.ID]; !ok {
		return answer.Book{}, answer.ErrBookNotFound
	}
	if b.StudentID != nil {
		for _, row := range books.rows {
			if row.ID != b.ID && row.TaskID == b.TaskID && row.StudentID != nil && *row.StudentID == *b.StudentID {
				return answer.Book{}, answer.ErrDuplicateBook
			}
		}
	}
	b.Student, b.Creator, b.Modifier, b.Pages = nil, nil, nil, nil
	books.rows[b.ID] = &b
	return b, nil
}

func (repo *answerRepository) DeleteBook(_ context.Context, id int64, _ ...core.DBExecutor) error {
	db := repo.db
	db.book.mutex.Lock()
	defer db.book.mutex.Unlock()
	db.page.mutex.Lock()
	defer db.page.mutex.Unlock()
	db.marking.mutex.Lock()
	defer db.marking.mutex.Unlock()
	db.annotation.mutex.Lock()
	defer db.annotation.mutex.Unlock()
	db.comment.mutex.Lock()
	defer db.comment.mutex.Unlock()

	if _, ok := db.book.rows[id]; !ok {
		return answer.ErrBookNotFound
	}
	for pk, row := range db.page.rows {
		if row.BookID == id {
			deleteAnnotations(db, pk)
			delete(db.page.rows, pk)
		}
	}
	for pk, row := range db.marking.rows {
		if row.BookID == id {
			delete(db.marking.rows, pk)
		}
	}
	for pk, row := range db.comment.rows {
		if row.BookID == id {
			delete(db.comment.rows, pk)
		}
	}
	delete(db.book.rows, id)
	return nil
}

// deleteAnnotations must be called with the annotation write lock held.
func deleteAnnotations(db *DB, pageID int64) {
	for pk, row := range db.annotation.rows {
		if row.PageID == pageID {
			delete(db.annotation.rows, pk)
		}
	}
}

func (repo *answerRepository) CreatePage(_ context.Context, p answer.Page, _ ...core.DBExecutor) (answer.Page, error) {
	pages := repo.db.page
	pages.mutex.Lock()
	defer pages.mutex.Unlock()

	for _, row := range pages.rows {
		if row.BookID == p.BookID && row.Index == p.Index {
			return answer.Page{}, answer.ErrDuplicateIndex
		}
	}
	p.ID = pages.nextPK()
	pages.rows[p.ID] = &p
	return p, nil
}

func (repo *answerRepository) GetPage(_ context.Context, id int64, _ ...core.DBExecutor) (answer.Page, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	if p, ok := pages.rows[id]; ok {
		return *p, nil
	}
	return answer.Page{}, answer.ErrPageNotFound
}

func (repo *answerRepository) QueryPages(_ context.Context, bookID int64, _ ...core.DBExecutor) ([]answer.Page, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	list := pages.sorted(func(p answer.Page) bool { return p.BookID == bookID })
	sort.SliceStable(list, func(i, j int) bool { return list[i].Index < list[j].Index })
	return list, nil
}

func (repo *answerRepository) MaxPageIndex(_ context.Context, bookID int64, _ ...core.DBExecutor) (int, bool, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	max, ok := 0, false
	for _, row := range pages.rows {
		if row.BookID == bookID && (!ok || row.Index > max) {
			max, ok = row.Index, true
		}
	}
	return max, ok, nil
}

func (repo *answerRepository) PageIndexExists(
	_ context.Context,
	bookID int64,
	index int,
	excludedPageID int64,
	_ ...core.DBExecutor,
) (bool, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	for _, row := range pages.rows {
		if row.ID != excludedPageID && row.BookID == bookID && row.Index == index {
			return true, nil
		}
	}
	return false, nil
}

func (repo *answerRepository) FilePathShared(_ context.Context, p answer.Page, _ ...core.DBExecutor) (bool, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	for _, row := range pages.rows {
		if row.ID != p.ID && row.BookID == p.BookID && row.FilePath == p.FilePath {
			return true, nil
		}
	}
	return false, nil
}

func (repo *answerRepository) UpdatePage(_ context.Context, p answer.Page, _ ...core.DBExecutor) (answer.Page, error) {
	pages := repo.db.page
	pages.mutex.Lock()
	defer pages.mutex.Unlock()

	if _, ok := pages.rows[p.ID]; !ok {
		return answer.Page{}, answer.ErrPageNotFound
	}
	pages.rows[p.ID] = &p
	return p, nil
}

func (repo *answerRepository) DeletePage(_ context.Context, id int64, _ ...core.DBExecutor) error {
	db := repo.db
	db.page.mutex.Lock()
	defer db.page.mutex.Unlock()
	db.annotation.mutex.Lock()
	defer db.annotation.mutex.Unlock()

	if _, ok := db.page.rows[id]; !ok {
		return answer.ErrPageNotFound
	}
	deleteAnnotations(db, id)
	delete(db.page.rows, id)
	return nil
}

func (repo *answerRepository) QueryUnmirroredPages(_ context.Context, limit int, _ ...core.DBExecutor) ([]answer.Page, error) {
	pages := repo.db.page
	pages.mutex.RLock()
	defer pages.mutex.RUnlock()

	list := pages.sorted(func(p answer.Page) bool { return p.MirroredAt == nil })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (repo *answerRepository) SetMirrored(
	_ context.Context,
	bookID int64,
	filePath string,
	at time.Time,
	_ ...core.DBExecutor,
) error {
	pages := repo.db.page
	pages.mutex.Lock()
	defer pages.mutex.Unlock()

	for _, row := range pages.rows {
		if row.BookID == bookID && row.FilePath == filePath {
			at := at
			row.MirroredAt = &at
		}
	}
	return nil
}
