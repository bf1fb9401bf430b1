package task_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	inmemdb "github.com/trezcool/markit/storage/database/inmem"
)

type mailRecorder struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (r *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, messages...)
}

type fixture struct {
	svc     task.Service
	usrRepo user.Repository
	mail    *mailRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := inmemdb.Open()
	mail := new(mailRecorder)
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mail, core.NewTestConfig())
	return fixture{
		svc:     task.NewService(db.Conn(), inmemdb.NewTaskRepository(db), usrSvc, mail),
		usrRepo: usrRepo,
		mail:    mail,
	}
}

func (f fixture) createUser(t *testing.T, name string) user.User {
	t.Helper()
	usr, err := f.usrRepo.CreateUser(context.Background(), user.User{
		Name:     name,
		Email:    name + "@test.cd",
		IsActive: true,
		Roles:    []string{user.RoleMarker},
	})
	require.NoError(t, err)
	return usr
}

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestService_Add(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tsk, err := f.svc.Add(ctx, task.NewTask{Name: "  Midterm  "})
	require.NoError(t, err)
	assert.Equal(t, "Midterm", tsk.Name)
	assert.False(t, tsk.IsLocked)

	_, err = f.svc.Add(ctx, task.NewTask{Name: "Midterm"})
	assert.Equal(t, task.ErrDuplicateName, err)

	_, err = f.svc.Add(ctx, task.NewTask{Name: "   "})
	assert.Equal(t, task.ErrNameRequired, err)
}

func TestService_LockUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tsk, err := f.svc.Add(ctx, task.NewTask{Name: "final"})
	require.NoError(t, err)

	_, err = f.svc.Unlock(ctx, tsk)
	assert.Equal(t, task.ErrNotLocked, err)

	tsk, err = f.svc.Lock(ctx, tsk)
	require.NoError(t, err)
	assert.True(t, tsk.IsLocked)

	_, err = f.svc.Lock(ctx, tsk)
	assert.Equal(t, task.ErrAlreadyLocked, err)

	_, err = f.svc.AddQuestion(ctx, tsk, task.NewQuestion{Index: intPtr(1), Marks: floatPtr(5)})
	assert.Equal(t, task.ErrLocked, err)

	tsk, err = f.svc.Unlock(ctx, tsk)
	require.NoError(t, err)
	assert.False(t, tsk.IsLocked)
}

func TestService_AddQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tsk, err := f.svc.Add(ctx, task.NewTask{Name: "quiz"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		nq      task.NewQuestion
		wantErr error
	}{
		{name: "index required", nq: task.NewQuestion{Marks: floatPtr(5)}, wantErr: task.ErrIndexRequired},
		{name: "marks required", nq: task.NewQuestion{Index: intPtr(1)}, wantErr: task.ErrMarksRequired},
		{name: "valid", nq: task.NewQuestion{Index: intPtr(2), Marks: floatPtr(5), Description: " intro "}},
		{name: "duplicate index", nq: task.NewQuestion{Index: intPtr(2), Marks: floatPtr(3)}, wantErr: task.ErrDuplicateIndex},
		{name: "other index", nq: task.NewQuestion{Index: intPtr(1), Marks: floatPtr(2.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := f.svc.AddQuestion(ctx, tsk, tt.nq)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tsk.ID, q.TaskID)
			assert.Equal(t, *tt.nq.Index, q.Index)
		})
	}

	detail, err := f.svc.GetDetail(ctx, tsk.ID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 2)
	assert.Equal(t, 1, detail.Questions[0].Index)
	assert.Equal(t, 2, detail.Questions[1].Index)
	assert.Equal(t, "intro", detail.Questions[1].Description)
}

func TestService_Assignments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.createUser(t, "admin")
	marker := f.createUser(t, "marker")

	tsk, err := f.svc.Add(ctx, task.NewTask{Name: "exam"})
	require.NoError(t, err)
	q, err := f.svc.AddQuestion(ctx, tsk, task.NewQuestion{Index: intPtr(1), Marks: floatPtr(10)})
	require.NoError(t, err)

	ass, err := f.svc.AddAssignment(ctx, tsk, q, marker, admin)
	require.NoError(t, err)
	assert.Equal(t, marker.ID, ass.MarkerID)
	require.NotNil(t, ass.Marker)
	assert.Equal(t, "marker", ass.Marker.Name)

	require.Len(t, f.mail.messages, 1)
	assert.Equal(t, "assignment", f.mail.messages[0].TemplateName)
	assert.Equal(t, "marker@test.cd", f.mail.messages[0].To[0].Address)

	_, err = f.svc.AddAssignment(ctx, tsk, q, marker, admin)
	assert.Equal(t, task.ErrAlreadyAssigned, err)

	detail, err := f.svc.GetDetail(ctx, tsk.ID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 1)
	assert.True(t, detail.Questions[0].IsAssigned(marker.ID))
	assert.False(t, detail.Questions[0].IsAssigned(admin.ID))

	require.NoError(t, f.svc.DeleteAssignment(ctx, tsk, q, marker))
	assert.Equal(t, task.ErrAssignmentNotFound, f.svc.DeleteAssignment(ctx, tsk, q, marker))

	locked, err := f.svc.Lock(ctx, tsk)
	require.NoError(t, err)
	_, err = f.svc.AddAssignment(ctx, locked, q, marker, admin)
	assert.Equal(t, task.ErrLocked, err)
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	f.createUser(t, "bob")

	t.Run("unknown marker", func(t *testing.T) {
		_, err := f.svc.Import(ctx, task.Manifest{
			Name: "imported",
			Questions: []task.ManifestQuestion{
				{NewQuestion: task.NewQuestion{Index: intPtr(1), Marks: floatPtr(5)}, Markers: []string{"carol"}},
			},
		})
		require.Error(t, err)
		basicErr, ok := err.(*core.BasicError)
		require.True(t, ok)
		assert.Equal(t, "carol", basicErr.Detail)
	})

	t.Run("valid", func(t *testing.T) {
		tsk, err := f.svc.Import(ctx, task.Manifest{
			Name: "imported",
			Questions: []task.ManifestQuestion{
				{NewQuestion: task.NewQuestion{Index: intPtr(1), Marks: floatPtr(5)}, Markers: []string{"alice", "bob"}},
				{NewQuestion: task.NewQuestion{Index: intPtr(2), Marks: floatPtr(5), ExcludedFromTotal: true}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "imported", tsk.Name)
		require.Len(t, tsk.Questions, 2)
		assert.Len(t, tsk.Questions[0].MarkerAssignments, 2)
		assert.True(t, tsk.Questions[0].IsAssigned(alice.ID))
		assert.Empty(t, tsk.Questions[1].MarkerAssignments)
		assert.True(t, tsk.Questions[1].ExcludedFromTotal)
	})
}
