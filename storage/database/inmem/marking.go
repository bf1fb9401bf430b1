package inmemdb

import (
	"context"
	"math"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/marking"
)

type markingRepository struct {
	db *DB
}

var (
	_ marking.Repository      = (*markingRepository)(nil)
	_ marking.StatsRepository = (*markingRepository)(nil)
)

func NewMarkingRepository(db *DB) *markingRepository {
	return &markingRepository{db: db}
}

func (repo *markingRepository) CreateMarking(_ context.Context, m marking.Marking, _ ...core.DBExecutor) (marking.Marking, error) {
	markings := repo.db.marking
	markings.mutex.Lock()
	defer markings.mutex.Unlock()

	for _, row := range markings.rows {
		if row.BookID == m.BookID && row.QuestionID == m.QuestionID {
			return marking.Marking{}, marking.ErrDuplicateMarking
		}
	}
	m.ID = markings.nextPK()
	m.Creator, m.Modifier = nil, nil
	markings.rows[m.ID] = &m
	return m, nil
}

func (repo *markingRepository) GetMarking(_ context.Context, id int64, _ ...core.DBExecutor) (marking.Marking, error) {
	markings := repo.db.marking
	markings.mutex.RLock()
	defer markings.mutex.RUnlock()

	if m, ok := markings.rows[id]; ok {
		return *m, nil
	}
	return marking.Marking{}, marking.ErrNotFound
}

func (repo *markingRepository) MarkingExists(_ context.Context, bookID, questionID int64, _ ...core.DBExecutor) (bool, error) {
	markings := repo.db.marking
	markings.mutex.RLock()
	defer markings.mutex.RUnlock()

	for _, row := range markings.rows {
		if row.BookID == bookID && row.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *markingRepository) UpdateMarking(_ context.Context, m marking.Marking, _ ...core.DBExecutor) (marking.Marking, error) {
	markings := repo.db.marking
	markings.mutex.Lock()
	defer markings.mutex.Unlock()

	if _, ok := markings.rows[m.ID]; !ok {
		return marking.Marking{}, marking.ErrNotFound
	}
	m.Creator, m.Modifier = nil, nil
	markings.rows[m.ID] = &m
	return m, nil
}

func (repo *markingRepository) QueryMarkings(_ context.Context, bookIDs []int64, _ ...core.DBExecutor) ([]marking.Marking, error) {
	markings := repo.db.marking
	markings.mutex.RLock()
	defer markings.mutex.RUnlock()

	set := int64Set(bookIDs)
	return markings.sorted(func(m marking.Marking) bool { return set[m.BookID] }), nil
}

func (repo *markingRepository) CreateAnnotation(_ context.Context, a marking.Annotation, _ ...core.DBExecutor) (marking.Annotation, error) {
	anns := repo.db.annotation
	anns.mutex.Lock()
	defer anns.mutex.Unlock()

	a.ID = anns.nextPK()
	anns.rows[a.ID] = &a
	return a, nil
}

func (repo *markingRepository) GetAnnotation(_ context.Context, id int64, _ ...core.DBExecutor) (marking.Annotation, error) {
	anns := repo.db.annotation
	anns.mutex.RLock()
	defer anns.mutex.RUnlock()

	if a, ok := anns.rows[id]; ok {
		return *a, nil
	}
	return marking.Annotation{}, marking.ErrAnnotationNotFound
}

func (repo *markingRepository) UpdateAnnotation(_ context.Context, a marking.Annotation, _ ...core.DBExecutor) (marking.Annotation, error) {
	anns := repo.db.annotation
	anns.mutex.Lock()
	defer anns.mutex.Unlock()

	if _, ok := anns.rows[a.ID]; !ok {
		return marking.Annotation{}, marking.ErrAnnotationNotFound
	}
	anns.rows[a.ID] = &a
	return a, nil
}

func (repo *markingRepository) DeleteAnnotation(_ context.Context, id int64, _ ...core.DBExecutor) error {
	anns := repo.db.annotation
	anns.mutex.Lock()
	defer anns.mutex.Unlock()

	if _, ok := anns.rows[id]; !ok {
		return marking.ErrAnnotationNotFound
	}
	delete(anns.rows, id)
	return nil
}

func (repo *markingRepository) QueryAnnotations(_ context.Context, pageIDs []int64, _ ...core.DBExecutor) ([]marking.Annotation, error) {
	anns := repo.db.annotation
	anns.mutex.RLock()
	defer anns.mutex.RUnlock()

	set := int64Set(pageIDs)
	return anns.sorted(func(a marking.Annotation) bool { return set[a.PageID] }), nil
}

func (repo *markingRepository) CreateComment(_ context.Context, c marking.Comment, _ ...core.DBExecutor) (marking.Comment, error) {
	comments := repo.db.comment
	comments.mutex.Lock()
	defer comments.mutex.Unlock()

	c.ID = comments.nextPK()
	c.Creator = nil
	comments.rows[c.ID] = &c
	return c, nil
}

func (repo *markingRepository) GetComment(_ context.Context, id int64, _ ...core.DBExecutor) (marking.Comment, error) {
	comments := repo.db.comment
	comments.mutex.RLock()
	defer comments.mutex.RUnlock()

	if c, ok := comments.rows[id]; ok {
		return *c, nil
	}
	return marking.Comment{}, marking.ErrCommentNotFound
}

func (repo *markingRepository) UpdateComment(_ context.Context, c marking.Comment, _ ...core.DBExecutor) (marking.Comment, error) {
	comments := repo.db.comment
	comments.mutex.Lock()
	defer comments.mutex.Unlock()

	if _, ok := comments.rows[c.ID]; !ok {
		return marking.Comment{}, marking.ErrCommentNotFound
	}
	c.Creator = nil
	comments.rows[c.ID] = &c
	return c, nil
}

func (repo *markingRepository) DeleteComment(_ context.Context, id int64, _ ...core.DBExecutor) error {
	comments := repo.db.comment
	comments.mutex.Lock()
	defer comments.mutex.Unlock()

	if _, ok := comments.rows[id]; !ok {
		return marking.ErrCommentNotFound
	}
	delete(comments.rows, id)
	return nil
}

func (repo *markingRepository) QueryComments(_ context.Context, bookIDs []int64, _ ...core.DBExecutor) ([]marking.Comment, error) {
	comments := repo.db.comment
	comments.mutex.RLock()
	defer comments.mutex.RUnlock()

	set := int64Set(bookIDs)
	return comments.sorted(func(c marking.Comment) bool { return set[c.BookID] }), nil
}

func (repo *markingRepository) QueryQuestionStats(_ context.Context, taskID int64, _ ...core.DBExecutor) ([]marking.QuestionStats, error) {
	db := repo.db
	db.book.mutex.RLock()
	defer db.book.mutex.RUnlock()
	db.question.mutex.RLock()
	defer db.question.mutex.RUnlock()
	db.marking.mutex.RLock()
	defer db.marking.mutex.RUnlock()

	byQuestion := make(map[int64]*marking.QuestionStats)
	for _, q := range db.question.sorted(nil) {
		if q.TaskID == taskID {
			byQuestion[q.ID] = &marking.QuestionStats{QuestionID: q.ID, Min: math.Inf(1), Max: math.Inf(-1)}
		}
	}
	for _, m := range db.marking.sorted(nil) {
		st, ok := byQuestion[m.QuestionID]
		if !ok {
			continue
		}
		if b, ok := db.book.rows[m.BookID]; !ok || b.TaskID != taskID {
			continue
		}
		st.Count++
		st.Mean += m.Marks
		st.Min = math.Min(st.Min, m.Marks)
		st.Max = math.Max(st.Max, m.Marks)
	}

	stats := make([]marking.QuestionStats, 0, len(byQuestion))
	for _, q := range db.question.sorted(nil) {
		st, ok := byQuestion[q.ID]
		if !ok || st.Count == 0 {
			continue
		}
		st.Mean /= float64(st.Count)
		stats = append(stats, *st)
	}
	return stats, nil
}
