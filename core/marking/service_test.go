package marking_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	inmemdb "github.com/trezcool/markit/storage/database/inmem"
)

type nopMail struct{}

func (nopMail) SendMessages(...*core.EmailMessage) {}

type nopFiles struct{}

func (nopFiles) Exists(int64, string) (bool, error) { return false, nil }
func (nopFiles) Save(int64, string, []byte) error   { return nil }
func (nopFiles) Remove(int64, ...string) error      { return nil }
func (nopFiles) LocalPath(int64, string) string     { return "" }

type nopProcessor struct{}

func (nopProcessor) CountPDFPages([]byte) (int, error) { return 1, nil }
func (nopProcessor) ProcessImage(content []byte, _ string, _ answer.ImageOptions) ([][]byte, error) {
	return [][]byte{content}, nil
}

type nopQueue struct{}

func (nopQueue) Enqueue(...answer.MirrorJob) {}

type fixture struct {
	svc       marking.Service
	taskSvc   task.Service
	answerSvc answer.Service

	tsk     task.Task
	q1, q2  task.Question
	book    answer.Book
	page    answer.Page
	marker  user.User
	another user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nopMail{}, core.NewTestConfig())
	taskSvc := task.NewService(db.Conn(), inmemdb.NewTaskRepository(db), usrSvc, nopMail{})
	answerSvc := answer.NewService(db.Conn(), inmemdb.NewAnswerRepository(db), taskSvc, usrSvc, nopFiles{}, nopProcessor{}, nopQueue{})
	markingRepo := inmemdb.NewMarkingRepository(db)

	f := fixture{
		svc:       marking.NewService(markingRepo, markingRepo, taskSvc, answerSvc, usrSvc),
		taskSvc:   taskSvc,
		answerSvc: answerSvc,
	}

	newUser := func(name string) user.User {
		usr, err := usrRepo.CreateUser(ctx, user.User{Name: name, Email: name + "@test.cd", IsActive: true})
		require.NoError(t, err)
		return usr
	}
	f.marker = newUser("marker")
	f.another = newUser("another")
	student := newUser("student")

	var err error
	f.tsk, err = taskSvc.Add(ctx, task.NewTask{Name: "exam"})
	require.NoError(t, err)
	one, two, five, ten := 1, 2, 5.0, 10.0
	f.q1, err = taskSvc.AddQuestion(ctx, f.tsk, task.NewQuestion{Index: &one, Marks: &five})
	require.NoError(t, err)
	f.q2, err = taskSvc.AddQuestion(ctx, f.tsk, task.NewQuestion{Index: &two, Marks: &ten})
	require.NoError(t, err)
	_, err = taskSvc.AddAssignment(ctx, f.tsk, f.q1, f.marker, f.another)
	require.NoError(t, err)

	f.book, err = answerSvc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: student.Name}, f.marker)
	require.NoError(t, err)
	pages, err := answerSvc.AddPages(ctx, f.book, []answer.Upload{{Filename: "p.png", Content: []byte("x")}}, nil, nil, f.marker)
	require.NoError(t, err)
	f.page = pages[0]
	return f
}

func (f fixture) lockTask(t *testing.T) {
	t.Helper()
	_, err := f.taskSvc.Lock(context.Background(), f.tsk)
	require.NoError(t, err)
}

func fPtr(v float64) *float64 { return &v }

func TestService_AddMarking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		nm      marking.NewMarking
		creator user.User
		wantErr error
	}{
		{name: "marks required", nm: marking.NewMarking{QuestionID: f.q1.ID}, creator: f.marker, wantErr: marking.ErrMarksRequired},
		{name: "unknown question", nm: marking.NewMarking{QuestionID: 999, Marks: fPtr(1)}, creator: f.marker, wantErr: task.ErrQuestionNotFound},
		{name: "not assigned", nm: marking.NewMarking{QuestionID: f.q2.ID, Marks: fPtr(1)}, creator: f.marker, wantErr: marking.ErrNoAssignment},
		{name: "other marker", nm: marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(1)}, creator: f.another, wantErr: marking.ErrNoAssignment},
		{name: "valid", nm: marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(4.5), Remarks: " neat "}, creator: f.marker},
		{name: "duplicate", nm: marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(3)}, creator: f.marker, wantErr: marking.ErrDuplicateMarking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := f.svc.AddMarking(ctx, f.book, tt.nm, tt.creator)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4.5, m.Marks)
			assert.Equal(t, "neat", m.Remarks)
			require.NotNil(t, m.Creator)
			assert.Equal(t, f.marker.ID, m.Creator.ID)
		})
	}

	f.lockTask(t)
	_, err := f.svc.AddMarking(ctx, f.book, marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(1)}, f.marker)
	assert.Equal(t, task.ErrLocked, err)
}

func TestService_UpdateMarking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m, err := f.svc.AddMarking(ctx, f.book, marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(2)}, f.marker)
	require.NoError(t, err)

	_, err = f.svc.UpdateMarking(ctx, m, marking.UpdateMarking{}, f.marker)
	assert.Equal(t, marking.ErrMarksRequired, err)

	_, err = f.svc.UpdateMarking(ctx, m, marking.UpdateMarking{Marks: fPtr(3)}, f.another)
	assert.Equal(t, marking.ErrNoAssignment, err)

	m, err = f.svc.UpdateMarking(ctx, m, marking.UpdateMarking{Marks: fPtr(3), Remarks: "better"}, f.marker)
	require.NoError(t, err)
	assert.Equal(t, 3.0, m.Marks)
	require.NotNil(t, m.Modifier)
	assert.Equal(t, f.marker.ID, m.Modifier.ID)

	f.lockTask(t)
	_, err = f.svc.UpdateMarking(ctx, m, marking.UpdateMarking{Marks: fPtr(1)}, f.marker)
	assert.Equal(t, task.ErrLocked, err)
}

func TestService_Annotations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddAnnotation(ctx, f.page, marking.AnnotationData{}, f.marker)
	assert.Equal(t, marking.ErrDataRequired, err)

	a, err := f.svc.AddAnnotation(ctx, f.page, marking.AnnotationData{Data: `{"lines":[]}`}, f.marker)
	require.NoError(t, err)
	assert.Equal(t, f.page.ID, a.PageID)

	_, err = f.svc.UpdateAnnotation(ctx, a, marking.AnnotationData{Data: "x"}, f.another)
	assert.Equal(t, marking.ErrNoPermission, err)

	a, err = f.svc.UpdateAnnotation(ctx, a, marking.AnnotationData{Data: "x"}, f.marker)
	require.NoError(t, err)
	assert.Equal(t, "x", a.Data)

	assert.Equal(t, marking.ErrNoPermission, f.svc.DeleteAnnotation(ctx, a, f.another))
	require.NoError(t, f.svc.DeleteAnnotation(ctx, a, f.marker))

	_, err = f.svc.GetAnnotation(ctx, a.ID)
	assert.Equal(t, marking.ErrAnnotationNotFound, err)
}

func TestService_Comments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddComment(ctx, f.book, marking.CommentContent{Content: "  "}, f.marker)
	assert.Equal(t, marking.ErrContentRequired, err)

	c, err := f.svc.AddComment(ctx, f.book, marking.CommentContent{Content: "check Q2"}, f.marker)
	require.NoError(t, err)
	require.NotNil(t, c.Creator)

	_, err = f.svc.UpdateComment(ctx, c, marking.CommentContent{Content: "hijack"}, f.another)
	assert.Equal(t, marking.ErrNoPermission, err)

	c, err = f.svc.UpdateComment(ctx, c, marking.CommentContent{Content: "checked"}, f.marker)
	require.NoError(t, err)
	assert.Equal(t, "checked", c.Content)
	require.NotNil(t, c.Creator)
	require.NotNil(t, c.Modifier)
	assert.Equal(t, f.marker.ID, c.Creator.ID)
	assert.Equal(t, f.marker.ID, c.Modifier.ID)

	f.lockTask(t)
	assert.Equal(t, task.ErrLocked, f.svc.DeleteComment(ctx, c, f.marker))
}

func TestService_GetBookDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddMarking(ctx, f.book, marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(5)}, f.marker)
	require.NoError(t, err)
	_, err = f.svc.AddAnnotation(ctx, f.page, marking.AnnotationData{Data: "d"}, f.marker)
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.book, marking.CommentContent{Content: "ok"}, f.marker)
	require.NoError(t, err)

	detail, err := f.svc.GetBookDetail(ctx, f.book.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Student)
	assert.Equal(t, "student", detail.Student.Name)
	require.Len(t, detail.Pages, 1)
	assert.Len(t, detail.Pages[0].Annotations, 1)
	require.Len(t, detail.Markings, 1)
	require.NotNil(t, detail.Markings[0].Creator)
	assert.Equal(t, "marker", detail.Markings[0].Creator.Name)
	require.Len(t, detail.Comments, 1)
}

func TestService_SheetAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddMarking(ctx, f.book, marking.NewMarking{QuestionID: f.q1.ID, Marks: fPtr(4)}, f.marker)
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.book, marking.CommentContent{Content: "line1\nline2"}, f.marker)
	require.NoError(t, err)

	sheet, err := f.svc.Sheet(ctx, f.tsk.ID)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, sheet.WriteTSV(&buf))
	assert.Contains(t, buf.String(), "\tstudent\t4\tNone\tline1 line2\t4")

	summary, err := f.svc.Summary(ctx, f.tsk.ID)
	require.NoError(t, err)
	require.Len(t, summary.Questions, 1)
	require.NotNil(t, summary.Questions[0].Stats)
	assert.Equal(t, 1, summary.Questions[0].Stats.Count)
	assert.Equal(t, 4.0, summary.Questions[0].Stats.Mean)
	assert.Nil(t, summary.Total)
}
