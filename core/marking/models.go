package marking

import (
	"time"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/user"
)

type Marking struct {
	ID         int64     `json:"id" db:"id"`
	BookID     int64     `json:"book_id" db:"book_id"`
	QuestionID int64     `json:"question_id" db:"question_id"`
	Marks      float64   `json:"marks" db:"marks"`
	Remarks    string    `json:"remarks" db:"remarks"`
	CreatorID  *int64    `json:"creator_id" db:"creator_id"`
	ModifierID *int64    `json:"modifier_id" db:"modifier_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	Creator  *user.Mini `json:"creator,omitempty" db:"-"`
	Modifier *user.Mini `json:"modifier,omitempty" db:"-"`
}

type Annotation struct {
	ID         int64     `json:"id" db:"id"`
	PageID     int64     `json:"page_id" db:"page_id"`
	Data       string    `json:"data" db:"data"` // drawing data, opaque to the server
	CreatorID  *int64    `json:"creator_id" db:"creator_id"`
	ModifierID *int64    `json:"modifier_id" db:"modifier_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
}

type Comment struct {
	ID         int64     `json:"id" db:"id"`
	BookID     int64     `json:"book_id" db:"book_id"`
	Content    string    `json:"content" db:"content"`
	CreatorID  *int64    `json:"creator_id" db:"creator_id"`
	ModifierID *int64    `json:"modifier_id" db:"modifier_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`

	Creator  *user.Mini `json:"creator,omitempty" db:"-"`
	Modifier *user.Mini `json:"modifier,omitempty" db:"-"`
}

type NewMarking struct {
	QuestionID int64    `json:"question_id"`
	Marks      *float64 `json:"marks"`
	Remarks    string   `json:"remarks"`
}

func (nm *NewMarking) Validate() error {
	if nm.QuestionID == 0 {
		return core.NewBasicError("question is required")
	}
	if nm.Marks == nil {
		return ErrMarksRequired
	}
	nm.Remarks = core.CleanString(nm.Remarks)
	return nil
}

type UpdateMarking struct {
	Marks   *float64 `json:"marks"`
	Remarks string   `json:"remarks"`
}

func (um *UpdateMarking) Validate() error {
	if um.Marks == nil {
		return ErrMarksRequired
	}
	um.Remarks = core.CleanString(um.Remarks)
	return nil
}

type AnnotationData struct {
	Data string `json:"data"`
}

func (ad AnnotationData) Validate() error {
	if ad.Data == "" {
		return ErrDataRequired
	}
	return nil
}

type CommentContent struct {
	Content string `json:"content"`
}

func (cc *CommentContent) Validate() error {
	cc.Content = core.CleanString(cc.Content)
	if cc.Content == "" {
		return ErrContentRequired
	}
	return nil
}

// PageDetail is a page with its annotations.
type PageDetail struct {
	answer.Page
	Annotations []Annotation `json:"annotations"`
}

// BookDetail is an answer book with everything needed to mark it.
type BookDetail struct {
	answer.Book
	Pages    []PageDetail `json:"pages"`
	Markings []Marking    `json:"markings"`
	Comments []Comment    `json:"comments"`
}

// BookSummary is an answer book with its markings and comments, as listed for a task.
type BookSummary struct {
	answer.Book
	Markings []Marking `json:"markings"`
	Comments []Comment `json:"comments"`
}

// MarksOf returns the marks given to the question, if any.
func (bs BookSummary) MarksOf(questionID int64) (float64, bool) {
	for _, m := range bs.Markings {
		if m.QuestionID == questionID {
			return m.Marks, true
		}
	}
	return 0, false
}

// Total returns the sum of the marks of the questions counted in totals.
// ok is false when the book has no markings.
func (bs BookSummary) Total(excluded map[int64]bool) (total float64, ok bool) {
	for _, m := range bs.Markings {
		if !excluded[m.QuestionID] {
			total += m.Marks
		}
	}
	return total, len(bs.Markings) > 0
}

// QuestionStats are aggregated marks of a question.
type QuestionStats struct {
	QuestionID int64   `json:"question_id" db:"question_id" boil:"question_id"`
	Count      int     `json:"count" db:"count" boil:"count"`
	Mean       float64 `json:"mean" db:"mean" boil:"mean"`
	Min        float64 `json:"min" db:"min" boil:"min"`
	Max        float64 `json:"max" db:"max" boil:"max"`
}
