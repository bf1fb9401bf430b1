package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/storage/database"
)

const (
	markingColumns    = "id, book_id, question_id, marks, COALESCE(remarks, '') AS remarks, creator_id, modifier_id, created_at, modified_at"
	annotationColumns = "id, page_id, data, creator_id, modifier_id, created_at, modified_at"
	commentColumns    = "id, book_id, content, creator_id, modifier_id, created_at, modified_at"
)

type markingRepository struct {
	baseRepository
}

var _ marking.Repository = (*markingRepository)(nil)

func NewMarkingRepository(exec core.DBExecutor) *markingRepository {
	return &markingRepository{baseRepository{exec: exec}}
}

func (repo markingRepository) CreateMarking(ctx context.Context, m marking.Marking, exec ...core.DBExecutor) (marking.Marking, error) {
	q := `INSERT INTO markings (book_id, question_id, marks, remarks, creator_id, modifier_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q,
		m.BookID, m.QuestionID, m.Marks, m.Remarks, m.CreatorID, m.ModifierID, m.CreatedAt.UTC(), m.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "markings_book_id_question_id_key") {
			return marking.Marking{}, marking.ErrDuplicateMarking
		}
		return marking.Marking{}, errors.Wrap(err, "inserting marking")
	}
	m.ID = id
	return m, nil
}

func (repo markingRepository) GetMarking(ctx context.Context, id int64, exec ...core.DBExecutor) (marking.Marking, error) {
	m, err := getOne[marking.Marking](ctx, repo.getExec(exec), "SELECT "+markingColumns+" FROM markings WHERE id = ?", id)
	if err != nil {
		return marking.Marking{}, trapNoRowsErr(err, marking.ErrNotFound, "finding marking")
	}
	return m, nil
}

func (repo markingRepository) MarkingExists(ctx context.Context, bookID, questionID int64, exec ...core.DBExecutor) (bool, error) {
	q := "SELECT 1 FROM markings WHERE book_id = ? AND question_id = ?"
	found, err := exists(ctx, repo.getExec(exec), q, bookID, questionID)
	if err != nil {
		return false, errors.Wrap(err, "checking marking")
	}
	return found, nil
}

func (repo markingRepository) UpdateMarking(ctx context.Context, m marking.Marking, exec ...core.DBExecutor) (marking.Marking, error) {
	q := "UPDATE markings SET marks = ?, remarks = ?, modifier_id = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, m.Marks, m.Remarks, m.ModifierID, m.ModifiedAt.UTC(), m.ID)
	if err != nil {
		return marking.Marking{}, errors.Wrap(err, "updating marking")
	}
	if n == 0 {
		return marking.Marking{}, marking.ErrNotFound
	}
	return m, nil
}

func (repo markingRepository) QueryMarkings(ctx context.Context, bookIDs []int64, exec ...core.DBExecutor) ([]marking.Marking, error) {
	markings := make([]marking.Marking, 0)
	if len(bookIDs) == 0 {
		return markings, nil
	}
	q := "SELECT " + markingColumns + " FROM markings WHERE book_id IN (?) ORDER BY id"
	if err := selectIn(ctx, repo.getExec(exec), &markings, q, bookIDs); err != nil {
		return nil, errors.Wrap(err, "querying markings")
	}
	return markings, nil
}

func (repo markingRepository) CreateAnnotation(ctx context.Context, a marking.Annotation, exec ...core.DBExecutor) (marking.Annotation, error) {
	q := `INSERT INTO annotations (page_id, data, creator_id, modifier_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q, a.PageID, a.Data, a.CreatorID, a.ModifierID, a.CreatedAt.UTC(), a.ModifiedAt.UTC())
	if err != nil {
		return marking.Annotation{}, errors.Wrap(err, "inserting annotation")
	}
	a.ID = id
	return a, nil
}

func (repo markingRepository) GetAnnotation(ctx context.Context, id int64, exec ...core.DBExecutor) (marking.Annotation, error) {
	q := "SELECT " + annotationColumns + " FROM annotations WHERE id = ?"
	a, err := getOne[marking.Annotation](ctx, repo.getExec(exec), q, id)
	if err != nil {
		return marking.Annotation{}, trapNoRowsErr(err, marking.ErrAnnotationNotFound, "finding annotation")
	}
	return a, nil
}

func (repo markingRepository) UpdateAnnotation(ctx context.Context, a marking.Annotation, exec ...core.DBExecutor) (marking.Annotation, error) {
	q := "UPDATE annotations SET data = ?, modifier_id = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, a.Data, a.ModifierID, a.ModifiedAt.UTC(), a.ID)
	if err != nil {
		return marking.Annotation{}, errors.Wrap(err, "updating annotation")
	}
	if n == 0 {
		return marking.Annotation{}, marking.ErrAnnotationNotFound
	}
	return a, nil
}

func (repo markingRepository) DeleteAnnotation(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting annotation")
	}
	if n == 0 {
		return marking.ErrAnnotationNotFound
	}
	return nil
}

func (repo markingRepository) QueryAnnotations(ctx context.Context, pageIDs []int64, exec ...core.DBExecutor) ([]marking.Annotation, error) {
	annotations := make([]marking.Annotation, 0)
	if len(pageIDs) == 0 {
		return annotations, nil
	}
	q := "SELECT " + annotationColumns + " FROM annotations WHERE page_id IN (?) ORDER BY id"
	if err := selectIn(ctx, repo.getExec(exec), &annotations, q, pageIDs); err != nil {
		return nil, errors.Wrap(err, "querying annotations")
	}
	return annotations, nil
}

func (repo markingRepository) CreateComment(ctx context.Context, c marking.Comment, exec ...core.DBExecutor) (marking.Comment, error) {
	q := `INSERT INTO comments (book_id, content, creator_id, modifier_id, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q, c.BookID, c.Content, c.CreatorID, c.ModifierID, c.CreatedAt.UTC(), c.ModifiedAt.UTC())
	if err != nil {
		return marking.Comment{}, errors.Wrap(err, "inserting comment")
	}
	c.ID = id
	return c, nil
}

func (repo markingRepository) GetComment(ctx context.Context, id int64, exec ...core.DBExecutor) (marking.Comment, error) {
	c, err := getOne[marking.Comment](ctx, repo.getExec(exec), "SELECT "+commentColumns+" FROM comments WHERE id = ?", id)
	if err != nil {
		return marking.Comment{}, trapNoRowsErr(err, marking.ErrCommentNotFound, "finding comment")
	}
	return c, nil
}

func (repo markingRepository) UpdateComment(ctx context.Context, c marking.Comment, exec ...core.DBExecutor) (marking.Comment, error) {
	q := "UPDATE comments SET content = ?, modifier_id = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, c.Content, c.ModifierID, c.ModifiedAt.UTC(), c.ID)
	if err != nil {
		return marking.Comment{}, errors.Wrap(err, "updating comment")
	}
	if n == 0 {
		return marking.Comment{}, marking.ErrCommentNotFound
	}
	return c, nil
}

func (repo markingRepository) DeleteComment(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	if n == 0 {
		return marking.ErrCommentNotFound
	}
	return nil
}

func (repo markingRepository) QueryComments(ctx context.Context, bookIDs []int64, exec ...core.DBExecutor) ([]marking.Comment, error) {
	comments := make([]marking.Comment, 0)
	if len(bookIDs) == 0 {
		return comments, nil
	}
	q := "SELECT " + commentColumns + " FROM comments WHERE book_id IN (?) ORDER BY id"
	if err := selectIn(ctx, repo.getExec(exec), &comments, q, bookIDs); err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	return comments, nil
}
