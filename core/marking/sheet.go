package marking

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core/task"
)

const (
	noValue          = "None"
	commentSeparator = " || "
)

// Sheet is the marking sheet of a task: one row per answer book, one column per question.
type Sheet struct {
	Columns []string
	Rows    [][]string
}

// NewSheet builds the sheet of t (with its questions) from the summaries of its books.
func NewSheet(t task.Task, books []BookSummary) Sheet {
	cols := make([]string, 0, len(t.Questions)+5)
	cols = append(cols, "BookID", "UserID", "UserName")
	excluded := ExcludedQuestions(t)
	for _, q := range t.Questions {
		cols = append(cols, "Q"+strconv.Itoa(q.Index))
	}
	cols = append(cols, "Comments", "Total")

	sheet := Sheet{Columns: cols, Rows: make([][]string, 0, len(books))}
	for _, b := range books {
		row := make([]string, 0, len(cols))
		row = append(row, strconv.FormatInt(b.ID, 10))
		if b.StudentID != nil {
			row = append(row, strconv.FormatInt(*b.StudentID, 10))
		} else {
			row = append(row, noValue)
		}
		if b.Student != nil {
			row = append(row, b.Student.Name)
		} else {
			row = append(row, noValue)
		}

		for _, q := range t.Questions {
			if marks, ok := b.MarksOf(q.ID); ok {
				row = append(row, FormatMarks(marks))
			} else {
				row = append(row, noValue)
			}
		}

		comments := make([]string, 0, len(b.Comments))
		for _, c := range b.Comments {
			comments = append(comments, flattenComment(c.Content))
		}
		row = append(row, strings.Join(comments, commentSeparator))

		if total, ok := b.Total(excluded); ok {
			row = append(row, FormatMarks(total))
		} else {
			row = append(row, noValue)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// WriteTSV writes the sheet as tab separated values, without a trailing newline.
func (s Sheet) WriteTSV(w io.Writer) error {
	lines := make([]string, 0, len(s.Rows)+1)
	lines = append(lines, strings.Join(s.Columns, "\t"))
	for _, row := range s.Rows {
		lines = append(lines, strings.Join(row, "\t"))
	}
	if _, err := io.WriteString(w, strings.Join(lines, "\n")); err != nil {
		return errors.Wrap(err, "writing sheet")
	}
	return nil
}

// FormatMarks prints integral marks without decimals.
func FormatMarks(marks float64) string {
	if marks == math.Trunc(marks) && !math.IsInf(marks, 0) {
		return strconv.FormatInt(int64(marks), 10)
	}
	return strconv.FormatFloat(marks, 'f', -1, 64)
}

func flattenComment(content string) string {
	return strings.NewReplacer("\n", " ", "\t", " ").Replace(content)
}
