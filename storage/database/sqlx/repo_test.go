package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	boiledrepos "github.com/trezcool/markit/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/markit/storage/database/sqlx"
	testutil "github.com/trezcool/markit/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewUserRepository(db)

	john := testutil.CreateUser(t, repo, "john", "john@test.cd", "pwd", []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, repo, "jane", "jane@test.cd", "", nil, false)

	_, err := repo.CreateUser(ctx, user.User{Name: "john", Email: "other@test.cd"})
	assert.Equal(t, user.ErrNameExists, err)
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "x", "john@test.cd", "", nil))
	assert.NoError(t, repo.CheckUniqueness(ctx, "john", "john@test.cd", "", []int64{john.ID}))

	got, err := repo.GetUser(ctx, user.GetFilter{NameOrEmail: "john@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, john.ID, got.ID)
	assert.Equal(t, []string{user.RoleAdmin}, got.Roles)

	active := true
	users, err := repo.QueryUsers(ctx, &user.QueryFilter{IsActive: &active}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "john", users[0].Name)

	got.LastLogin = time.Now().UTC()
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)

	n, err := repo.DeleteUsersByID(ctx, []int64{john.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.GetUser(ctx, user.GetFilter{ID: john.ID})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestMarkingRepositories(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	taskRepo := sqlxrepos.NewTaskRepository(db)
	answerRepo := sqlxrepos.NewAnswerRepository(db)
	markingRepo := sqlxrepos.NewMarkingRepository(db)
	statsRepo := boiledrepos.NewStatsRepository(db)
	now := time.Now().UTC()

	marker := testutil.CreateUser(t, usrRepo, "marker", "marker@test.cd", "", []string{user.RoleMarker}, true)
	student := testutil.CreateUser(t, usrRepo, "student", "student@test.cd", "", nil, true)

	tsk, err := taskRepo.CreateTask(ctx, task.Task{Name: "exam", CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)
	_, err = taskRepo.CreateTask(ctx, task.Task{Name: "exam", CreatedAt: now, ModifiedAt: now})
	assert.Equal(t, task.ErrDuplicateName, err)

	q1, err := taskRepo.CreateQuestion(ctx, task.Question{TaskID: tsk.ID, Index: 1, Marks: 10, CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)
	_, err = taskRepo.CreateQuestion(ctx, task.Question{TaskID: tsk.ID, Index: 1, Marks: 5, CreatedAt: now, ModifiedAt: now})
	assert.Equal(t, task.ErrDuplicateIndex, err)

	ass := task.Assignment{MarkerID: marker.ID, QuestionID: q1.ID, CreatedAt: now, ModifiedAt: now}
	_, err = taskRepo.CreateAssignment(ctx, ass)
	require.NoError(t, err)
	_, err = taskRepo.CreateAssignment(ctx, ass)
	assert.Equal(t, task.ErrAlreadyAssigned, err)

	book, err := answerRepo.CreateBook(ctx, answer.Book{TaskID: tsk.ID, StudentID: &student.ID, CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)
	_, err = answerRepo.CreateBook(ctx, answer.Book{TaskID: tsk.ID, StudentID: &student.ID, CreatedAt: now, ModifiedAt: now})
	assert.Equal(t, answer.ErrDuplicateBook, err)

	_, found, err := answerRepo.MaxPageIndex(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, found)
	page, err := answerRepo.CreatePage(ctx, answer.Page{BookID: book.ID, Index: 3, FilePath: "a.png", CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)
	max, found, err := answerRepo.MaxPageIndex(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, max)

	unmirrored, err := answerRepo.QueryUnmirroredPages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unmirrored, 1)
	require.NoError(t, answerRepo.SetMirrored(ctx, book.ID, "a.png", now))
	unmirrored, err = answerRepo.QueryUnmirroredPages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unmirrored)

	_, err = markingRepo.CreateMarking(ctx, marking.Marking{BookID: book.ID, QuestionID: q1.ID, Marks: 7.5, CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)
	_, err = markingRepo.CreateMarking(ctx, marking.Marking{BookID: book.ID, QuestionID: q1.ID, Marks: 1, CreatedAt: now, ModifiedAt: now})
	assert.Equal(t, marking.ErrDuplicateMarking, err)
	_, err = markingRepo.CreateAnnotation(ctx, marking.Annotation{PageID: page.ID, Data: "{}", CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)

	stats, err := statsRepo.QueryQuestionStats(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, []marking.QuestionStats{{QuestionID: q1.ID, Count: 1, Mean: 7.5, Min: 7.5, Max: 7.5}}, stats)

	require.NoError(t, answerRepo.DeleteBook(ctx, book.ID))
	markings, err := markingRepo.QueryMarkings(ctx, []int64{book.ID})
	require.NoError(t, err)
	assert.Empty(t, markings)
	anns, err := markingRepo.QueryAnnotations(ctx, []int64{page.ID})
	require.NoError(t, err)
	assert.Empty(t, anns)
}
