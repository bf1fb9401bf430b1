package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/storage/database"
)

const (
	bookColumns = "id, task_id, student_id, creator_id, modifier_id, submitted_at, created_at, modified_at"
	pageColumns = `id, book_id, index, file_path, file_index, COALESCE(transform, '') AS transform,
		creator_id, modifier_id, mirrored_at, created_at, modified_at`
)

type answerRepository struct {
	baseRepository
}

var _ answer.Repository = (*answerRepository)(nil)

func NewAnswerRepository(exec core.DBExecutor) *answerRepository {
	return &answerRepository{baseRepository{exec: exec}}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func (repo answerRepository) CreateBook(ctx context.Context, b answer.Book, exec ...core.DBExecutor) (answer.Book, error) {
	q := `INSERT INTO answer_books (task_id, student_id, creator_id, modifier_id, submitted_at, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q,
		b.TaskID, b.StudentID, b.CreatorID, b.ModifierID, utcPtr(b.SubmittedAt), b.CreatedAt.UTC(), b.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "answer_books_task_id_student_id_key") {
			return answer.Book{}, answer.ErrDuplicateBook
		}
		return answer.Book{}, errors.Wrap(err, "inserting book")
	}
	b.ID = id
	return b, nil
}

func (repo answerRepository) GetBook(ctx context.Context, id int64, exec ...core.DBExecutor) (answer.Book, error) {
	b, err := getOne[answer.Book](ctx, repo.getExec(exec), "SELECT "+bookColumns+" FROM answer_books WHERE id = ?", id)
	if err != nil {
		return answer.Book{}, trapNoRowsErr(err, answer.ErrBookNotFound, "finding book")
	}
	return b, nil
}

func (repo answerRepository) StudentBookExists(
	ctx context.Context,
	taskID, studentID, excludedBookID int64,
	exec ...core.DBExecutor,
) (bool, error) {
	q := "SELECT 1 FROM answer_books WHERE task_id = ? AND student_id = ? AND id <> ?"
	found, err := exists(ctx, repo.getExec(exec), q, taskID, studentID, excludedBookID)
	if err != nil {
		return false, errors.Wrap(err, "checking student book")
	}
	return found, nil
}

func (repo answerRepository) QueryBooks(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]answer.Book, error) {
	books := make([]answer.Book, 0)
	q := "SELECT " + bookColumns + " FROM answer_books WHERE task_id = ? ORDER BY id"
	if err := selectAll(ctx, repo.getExec(exec), &books, q, taskID); err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	return books, nil
}

func (repo answerRepository) NeighbourBook(ctx context.Context, from answer.Book, next bool, exec ...core.DBExecutor) (answer.Book, error) {
	q := "SELECT " + bookColumns + " FROM answer_books WHERE task_id = ? AND id > ? ORDER BY id ASC LIMIT 1"
	if !next {
		q = "SELECT " + bookColumns + " FROM answer_books WHERE task_id = ? AND id < ? ORDER BY id DESC LIMIT 1"
	}
	b, err := getOne[answer.Book](ctx, repo.getExec(exec), q, from.TaskID, from.ID)
	if err != nil {
		return answer.Book{}, trapNoRowsErr(err, answer.ErrBookNotFound, "finding neighbour book")
	}
	return b, nil
}

func (repo answerRepository) UpdateBook(ctx context.Context, b answer.Book, exec ...core.DBExecutor) (answer.Book, error) {
	q := "UPDATE answer_books SET student_id = ?, modifier_id = ?, submitted_at = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, b.StudentID, b.ModifierID, utcPtr(b.SubmittedAt), b.ModifiedAt.UTC(), b.ID)
	if err != nil {
		if database.IsUniqueViolation(err, "answer_books_task_id_student_id_key") {
			return answer.Book{}, answer.ErrDuplicateBook
		}
		return answer.Book{}, errors.Wrap(err, "updating book")
	}
	if n == 0 {
		return answer.Book{}, answer.ErrBookNotFound
	}
	return b, nil
}

// DeleteBook relies on the ON DELETE CASCADE of pages, annotations, markings and comments.
func (repo answerRepository) DeleteBook(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM answer_books WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting book")
	}
	if n == 0 {
		return answer.ErrBookNotFound
	}
	return nil
}

func (repo answerRepository) CreatePage(ctx context.Context, p answer.Page, exec ...core.DBExecutor) (answer.Page, error) {
	q := `INSERT INTO answer_pages (book_id, index, file_path, file_index, transform, creator_id, modifier_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q,
		p.BookID, p.Index, p.FilePath, p.FileIndex, nullString(p.Transform), p.CreatorID, p.ModifierID,
		p.CreatedAt.UTC(), p.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "answer_pages_book_id_index_key") {
			return answer.Page{}, answer.ErrDuplicateIndex
		}
		return answer.Page{}, errors.Wrap(err, "inserting page")
	}
	p.ID = id
	return p, nil
}

func (repo answerRepository) GetPage(ctx context.Context, id int64, exec ...core.DBExecutor) (answer.Page, error) {
	p, err := getOne[answer.Page](ctx, repo.getExec(exec), "SELECT "+pageColumns+" FROM answer_pages WHERE id = ?", id)
	if err != nil {
		return answer.Page{}, trapNoRowsErr(err, answer.ErrPageNotFound, "finding page")
	}
	return p, nil
}

func (repo answerRepository) QueryPages(ctx context.Context, bookID int64, exec ...core.DBExecutor) ([]answer.Page, error) {
	pages := make([]answer.Page, 0)
	q := "SELECT " + pageColumns + " FROM answer_pages WHERE book_id = ? ORDER BY index, id"
	if err := selectAll(ctx, repo.getExec(exec), &pages, q, bookID); err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	return pages, nil
}

func (repo answerRepository) MaxPageIndex(ctx context.Context, bookID int64, exec ...core.DBExecutor) (int, bool, error) {
	var max sql.NullInt64
	q := "SELECT MAX(index) FROM answer_pages WHERE book_id = $1"
	if err := repo.getExec(exec).QueryRowContext(ctx, q, bookID).Scan(&max); err != nil {
		return 0, false, errors.Wrap(err, "getting max page index")
	}
	return int(max.Int64), max.Valid, nil
}

func (repo answerRepository) PageIndexExists(
	ctx context.Context,
	bookID int64,
	index int,
	excludedPageID int64,
	exec ...core.DBExecutor,
) (bool, error) {
	q := "SELECT 1 FROM answer_pages WHERE book_id = ? AND index = ? AND id <> ?"
	found, err := exists(ctx, repo.getExec(exec), q, bookID, index, excludedPageID)
	if err != nil {
		return false, errors.Wrap(err, "checking page index")
	}
	return found, nil
}

func (repo answerRepository) FilePathShared(ctx context.Context, p answer.Page, exec ...core.DBExecutor) (bool, error) {
	q := "SELECT 1 FROM answer_pages WHERE book_id = ? AND file_path = ? AND id <> ?"
	found, err := exists(ctx, repo.getExec(exec), q, p.BookID, p.FilePath, p.ID)
	if err != nil {
		return false, errors.Wrap(err, "checking file path")
	}
	return found, nil
}

func (repo answerRepository) UpdatePage(ctx context.Context, p answer.Page, exec ...core.DBExecutor) (answer.Page, error) {
	q := "UPDATE answer_pages SET index = ?, transform = ?, modifier_id = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, p.Index, nullString(p.Transform), p.ModifierID, p.ModifiedAt.UTC(), p.ID)
	if err != nil {
		if database.IsUniqueViolation(err, "answer_pages_book_id_index_key") {
			return answer.Page{}, answer.ErrDuplicateIndex
		}
		return answer.Page{}, errors.Wrap(err, "updating page")
	}
	if n == 0 {
		return answer.Page{}, answer.ErrPageNotFound
	}
	return p, nil
}

func (repo answerRepository) DeletePage(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM answer_pages WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting page")
	}
	if n == 0 {
		return answer.ErrPageNotFound
	}
	return nil
}

func (repo answerRepository) QueryUnmirroredPages(ctx context.Context, limit int, exec ...core.DBExecutor) ([]answer.Page, error) {
	pages := make([]answer.Page, 0)
	q := "SELECT " + pageColumns + " FROM answer_pages WHERE mirrored_at IS NULL ORDER BY id LIMIT ?"
	if err := selectAll(ctx, repo.getExec(exec), &pages, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying unmirrored pages")
	}
	return pages, nil
}

func (repo answerRepository) SetMirrored(
	ctx context.Context,
	bookID int64,
	filePath string,
	at time.Time,
	exec ...core.DBExecutor,
) error {
	q := "UPDATE answer_pages SET mirrored_at = ? WHERE book_id = ? AND file_path = ?"
	if _, err := execAffected(ctx, repo.getExec(exec), q, at.UTC(), bookID, filePath); err != nil {
		return errors.Wrap(err, "setting mirrored")
	}
	return nil
}
