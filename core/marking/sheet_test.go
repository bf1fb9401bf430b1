package marking

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

func i64Ptr(i int64) *int64 { return &i }

func sheetTask() task.Task {
	return task.Task{
		ID:   1,
		Name: "midterm",
		Questions: []task.Question{
			{ID: 10, Index: 1, Marks: 5},
			{ID: 20, Index: 2, Marks: 5, ExcludedFromTotal: true},
			{ID: 30, Index: 3, Marks: 10},
		},
	}
}

func sheetBooks() []BookSummary {
	return []BookSummary{
		{
			Book: answer.Book{ID: 1, TaskID: 1, StudentID: i64Ptr(7), Student: &user.Mini{ID: 7, Name: "alice"}},
			Markings: []Marking{
				{BookID: 1, QuestionID: 10, Marks: 3},
				{BookID: 1, QuestionID: 20, Marks: 2.5},
			},
			Comments: []Comment{
				{BookID: 1, Content: "good\nwork"},
				{BookID: 1, Content: "see\tpage 2"},
			},
		},
		{
			Book: answer.Book{ID: 2, TaskID: 1},
		},
		{
			Book: answer.Book{ID: 3, TaskID: 1, StudentID: i64Ptr(8), Student: &user.Mini{ID: 8, Name: "bob"}},
			Markings: []Marking{
				{BookID: 3, QuestionID: 30, Marks: 1.5},
				{BookID: 3, QuestionID: 10, Marks: 2.5},
			},
		},
	}
}

func TestNewSheet(t *testing.T) {
	sheet := NewSheet(sheetTask(), sheetBooks())

	assert.Equal(t, []string{"BookID", "UserID", "UserName", "Q1", "Q2", "Q3", "Comments", "Total"}, sheet.Columns)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, []string{"1", "7", "alice", "3", "2.5", "None", "good work || see page 2", "3"}, sheet.Rows[0])
	assert.Equal(t, []string{"2", "None", "None", "None", "None", "None", "", "None"}, sheet.Rows[1])
	assert.Equal(t, []string{"3", "8", "bob", "2.5", "None", "1.5", "", "4"}, sheet.Rows[2])
}

func TestSheet_WriteTSV(t *testing.T) {
	sheet := NewSheet(sheetTask(), sheetBooks()[1:2])

	var buf bytes.Buffer
	require.NoError(t, sheet.WriteTSV(&buf))
	want := "BookID\tUserID\tUserName\tQ1\tQ2\tQ3\tComments\tTotal\n" +
		"2\tNone\tNone\tNone\tNone\tNone\t\tNone"
	assert.Equal(t, want, buf.String())
}

func TestFormatMarks(t *testing.T) {
	tests := []struct {
		marks float64
		want  string
	}{
		{marks: 0, want: "0"},
		{marks: 3, want: "3"},
		{marks: 2.5, want: "2.5"},
		{marks: 0.25, want: "0.25"},
		{marks: -1, want: "-1"},
		{marks: 100, want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMarks(tt.marks))
		})
	}
}
