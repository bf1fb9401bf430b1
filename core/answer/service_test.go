package answer_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
	inmemdb "github.com/trezcool/markit/storage/database/inmem"
)

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (fs *memFiles) key(bookID int64, name string) string { return answer.RemotePath(bookID, name) }

func (fs *memFiles) Exists(bookID int64, name string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[fs.key(bookID, name)]
	return ok, nil
}

func (fs *memFiles) Save(bookID int64, name string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[fs.key(bookID, name)] = content
	return nil
}

func (fs *memFiles) Remove(bookID int64, names ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, name := range names {
		delete(fs.files, fs.key(bookID, name))
	}
	return nil
}

func (fs *memFiles) LocalPath(bookID int64, name string) string {
	return "/data/" + fs.key(bookID, name)
}

// fakeProcessor counts "pages" of a PDF as the number of lines of its content,
// and splits images in halves when cutting the middle.
type fakeProcessor struct{}

func (fakeProcessor) CountPDFPages(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, errors.New("empty pdf")
	}
	return len(strings.Split(string(content), "\n")), nil
}

func (fakeProcessor) ProcessImage(content []byte, _ string, opts answer.ImageOptions) ([][]byte, error) {
	if string(content) == "broken" {
		return nil, errors.New("unknown format")
	}
	if !opts.CutMiddle {
		return [][]byte{content}, nil
	}
	half := len(content) / 2
	if opts.DiscardFirst {
		return [][]byte{content[half:]}, nil
	}
	return [][]byte{content[:half], content[half:]}, nil
}

type jobRecorder struct {
	mu   sync.Mutex
	jobs []answer.MirrorJob
}

func (r *jobRecorder) Enqueue(jobs ...answer.MirrorJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobs...)
}

type nopMail struct{}

func (nopMail) SendMessages(...*core.EmailMessage) {}

type fixture struct {
	svc     answer.Service
	taskSvc task.Service
	usrRepo user.Repository
	files   *memFiles
	mirror  *jobRecorder
	tsk     task.Task
	creator user.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nopMail{}, core.NewTestConfig())
	taskSvc := task.NewService(db.Conn(), inmemdb.NewTaskRepository(db), usrSvc, nopMail{})

	f := fixture{
		taskSvc: taskSvc,
		usrRepo: usrRepo,
		files:   &memFiles{files: make(map[string][]byte)},
		mirror:  new(jobRecorder),
	}
	f.svc = answer.NewService(db.Conn(), inmemdb.NewAnswerRepository(db), taskSvc, usrSvc, f.files, fakeProcessor{}, f.mirror)

	var err error
	f.tsk, err = taskSvc.Add(ctx, task.NewTask{Name: "midterm"})
	require.NoError(t, err)
	f.creator = f.createUser(t, "admin")
	return f
}

func (f fixture) createUser(t *testing.T, name string) user.User {
	t.Helper()
	usr, err := f.usrRepo.CreateUser(context.Background(), user.User{
		Name:     name,
		Nickname: strings.ToUpper(name),
		Email:    name + "@test.cd",
		IsActive: true,
	})
	require.NoError(t, err)
	return usr
}

func intPtr(i int) *int { return &i }

func TestService_AddBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "alice")

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: " Alice "}, f.creator)
	require.NoError(t, err)
	require.NotNil(t, b.Student)
	assert.Equal(t, "alice", b.Student.Name)
	assert.Equal(t, f.creator.ID, *b.CreatorID)

	_, err = f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: "alice"}, f.creator)
	assert.Equal(t, answer.ErrDuplicateBook, err)

	_, err = f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: "nobody"}, f.creator)
	assert.Equal(t, answer.ErrStudentNotFound, err)

	anonymous, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	assert.Nil(t, anonymous.StudentID)

	locked, err := f.taskSvc.Lock(ctx, f.tsk)
	require.NoError(t, err)
	_, err = f.svc.AddBook(ctx, locked, answer.NewBook{}, f.creator)
	assert.Equal(t, task.ErrLocked, err)
}

func TestService_UpdateBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	f.createUser(t, "bob")

	b1, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: "alice"}, f.creator)
	require.NoError(t, err)
	b2, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: "bob"}, f.creator)
	require.NoError(t, err)

	_, err = f.svc.UpdateBook(ctx, b2, answer.UpdateBook{StudentName: "alice"}, f.creator)
	assert.Equal(t, answer.ErrDuplicateBook, err)

	// same student on the same book
	b1, err = f.svc.UpdateBook(ctx, b1, answer.UpdateBook{StudentName: "alice"}, f.creator)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, *b1.StudentID)
	require.NotNil(t, b1.Modifier)
	assert.Equal(t, "admin", b1.Modifier.Name)

	b1, err = f.svc.UpdateBook(ctx, b1, answer.UpdateBook{}, f.creator)
	require.NoError(t, err)
	assert.Nil(t, b1.StudentID)
	assert.Nil(t, b1.Student)
}

func TestService_GoToBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other, err := f.taskSvc.Add(ctx, task.NewTask{Name: "other"})
	require.NoError(t, err)

	b1, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	_, err = f.svc.AddBook(ctx, other, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	b3, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)

	next, ok, err := f.svc.GoToBook(ctx, b1, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b3.ID, next.ID)

	prev, ok, err := f.svc.GoToBook(ctx, b3, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b1.ID, prev.ID)

	_, ok, err = f.svc.GoToBook(ctx, b3, true)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.svc.GoToBook(ctx, b1, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_AddPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)

	t.Run("no file", func(t *testing.T) {
		_, err := f.svc.AddPages(ctx, b, nil, nil, nil, f.creator)
		assert.Equal(t, answer.ErrFileRequired, err)
	})

	t.Run("image with index", func(t *testing.T) {
		pages, err := f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "scan.JPG", Content: []byte("img")}}, nil, intPtr(5), f.creator)
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, 5, pages[0].Index)
		assert.True(t, strings.HasSuffix(pages[0].FilePath, ".jpg"))
		assert.Nil(t, pages[0].FileIndex)
	})

	t.Run("pdf pages follow the last page", func(t *testing.T) {
		pages, err := f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "book.pdf", Content: []byte("p1\np2\np3")}}, nil, nil, f.creator)
		require.NoError(t, err)
		require.Len(t, pages, 3)
		for i, p := range pages {
			assert.Equal(t, 6+i, p.Index)
			require.NotNil(t, p.FileIndex)
			assert.Equal(t, i+1, *p.FileIndex)
			assert.Equal(t, pages[0].FilePath, p.FilePath)
		}
	})

	t.Run("split image", func(t *testing.T) {
		opts := &answer.ImageOptions{CutMiddle: true}
		pages, err := f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "double.png", Content: []byte("leftright")}}, opts, nil, f.creator)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, 9, pages[0].Index)
		assert.Equal(t, 10, pages[1].Index)

		fileID := strings.TrimSuffix(pages[0].FilePath, ".png")
		assert.Equal(t, fileID+"_1.png", pages[1].FilePath)
	})

	t.Run("unprocessable image", func(t *testing.T) {
		opts := &answer.ImageOptions{FitMaxWidth: 100}
		_, err := f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "x.png", Content: []byte("broken")}}, opts, nil, f.creator)
		require.Error(t, err)
		basicErr, ok := err.(*core.BasicError)
		require.True(t, ok)
		assert.Equal(t, "Failed to process image", basicErr.Msg)
	})

	pages, err := f.svc.GetPages(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 6)
	assert.Len(t, f.files.files, 4)
	assert.Len(t, f.mirror.jobs, 4)
}

func TestService_AddPages_pathRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)

	restore := answer.SetFileIDGenerator(func() string { return "taken" })
	defer restore()
	require.NoError(t, f.files.Save(b.ID, "taken.png", []byte("x")))

	_, err = f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "a.png", Content: []byte("img")}}, nil, nil, f.creator)
	assert.Equal(t, answer.ErrPathGeneration, err)
}

func TestService_UpdatePage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	uploads := []answer.Upload{{Filename: "a.png", Content: []byte("a")}, {Filename: "b.png", Content: []byte("b")}}
	pages, err := f.svc.AddPages(ctx, b, uploads, nil, nil, f.creator)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Index)
	assert.Equal(t, 2, pages[1].Index)

	_, err = f.svc.UpdatePage(ctx, pages[0], answer.UpdatePage{}, f.creator)
	assert.Equal(t, answer.ErrIndexRequired, err)

	_, err = f.svc.UpdatePage(ctx, pages[0], answer.UpdatePage{Index: intPtr(2)}, f.creator)
	assert.Equal(t, answer.ErrDuplicateIndex, err)

	rotate := "rotate(90deg)"
	p, err := f.svc.UpdatePage(ctx, pages[0], answer.UpdatePage{Index: intPtr(3), Transform: &rotate}, f.creator)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Index)
	assert.Equal(t, rotate, p.Transform)

	// keeping its own index is fine
	_, err = f.svc.UpdatePage(ctx, p, answer.UpdatePage{Index: intPtr(3)}, f.creator)
	require.NoError(t, err)
}

func TestService_DeletePage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	pages, err := f.svc.AddPages(ctx, b, []answer.Upload{{Filename: "book.pdf", Content: []byte("p1\np2")}}, nil, nil, f.creator)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	path, err := f.svc.DeletePage(ctx, pages[0])
	require.NoError(t, err)
	assert.Empty(t, path, "the file is still used by the second page")

	path, err = f.svc.DeletePage(ctx, pages[1])
	require.NoError(t, err)
	assert.Equal(t, pages[1].FilePath, path)

	exists, err := f.files.Exists(b.ID, path)
	require.NoError(t, err)
	assert.False(t, exists)

	last := f.mirror.jobs[len(f.mirror.jobs)-1]
	assert.True(t, last.Delete)
	assert.Equal(t, path, last.FilePath)
}

func TestService_DeleteBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	b, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)
	uploads := []answer.Upload{
		{Filename: "book.pdf", Content: []byte("p1\np2")},
		{Filename: "extra.png", Content: []byte("img")},
	}
	pages, err := f.svc.AddPages(ctx, b, uploads, nil, nil, f.creator)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	paths, err := f.svc.DeleteBook(ctx, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pages[0].FilePath, pages[2].FilePath}, paths)
	assert.Empty(t, f.files.files)

	_, err = f.svc.GetBook(ctx, b.ID)
	assert.Equal(t, answer.ErrBookNotFound, err)
	left, err := f.svc.GetPages(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestService_ListBooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "alice")

	_, err := f.svc.AddBook(ctx, f.tsk, answer.NewBook{StudentName: "alice"}, f.creator)
	require.NoError(t, err)
	_, err = f.svc.AddBook(ctx, f.tsk, answer.NewBook{}, f.creator)
	require.NoError(t, err)

	books, err := f.svc.ListBooks(ctx, f.tsk.ID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.NotNil(t, books[0].Student)
	assert.True(t, answer.MatchBook(books[0], "ALI"))
	assert.True(t, answer.MatchBook(books[0], "alic"))
	assert.False(t, answer.MatchBook(books[1], "ali"))
}
