package answer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

const maxPathTries = 10

var (
	// errors
	ErrBookNotFound    = core.NewNotFoundError("book")
	ErrPageNotFound    = core.NewNotFoundError("page")
	ErrStudentNotFound = core.NewNotFoundError("student")

	ErrDuplicateBook  = core.NewBasicError("duplicate book")
	ErrDuplicateIndex = core.NewBasicError("duplicate index")
	ErrIndexRequired  = core.NewBasicError("index is required")
	ErrFileRequired   = core.NewBasicError("file is required")
	ErrPathGeneration = errors.New("failed to generate a new path")

	newFileID = func() string { return uuid.New().String() } // mockable
)

type (
	Repository interface {
		// CreateBook returns ErrDuplicateBook when the student already has a book in the task.
		CreateBook(ctx context.Context, b Book, exec ...core.DBExecutor) (Book, error)
		GetBook(ctx context.Context, id int64, exec ...core.DBExecutor) (Book, error)
		// StudentBookExists reports whether the student has a book in the task other than excludedBookID.
		StudentBookExists(ctx context.Context, taskID, studentID, excludedBookID int64, exec ...core.DBExecutor) (bool, error)
		// QueryBooks returns the books of a task ordered by id.
		QueryBooks(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]Book, error)
		// NeighbourBook returns the closest book of the same task after (next) or before b.
		NeighbourBook(ctx context.Context, b Book, next bool, exec ...core.DBExecutor) (Book, error)
		UpdateBook(ctx context.Context, b Book, exec ...core.DBExecutor) (Book, error)
		// DeleteBook deletes the book with its markings, comments, pages and their annotations.
		DeleteBook(ctx context.Context, id int64, exec ...core.DBExecutor) error

		CreatePage(ctx context.Context, p Page, exec ...core.DBExecutor) (Page, error)
		GetPage(ctx context.Context, id int64, exec ...core.DBExecutor) (Page, error)
		// QueryPages returns the pages of a book ordered by index, then id.
		QueryPages(ctx context.Context, bookID int64, exec ...core.DBExecutor) ([]Page, error)
		MaxPageIndex(ctx context.Context, bookID int64, exec ...core.DBExecutor) (int, bool, error)
		PageIndexExists(ctx context.Context, bookID int64, index int, excludedPageID int64, exec ...core.DBExecutor) (bool, error)
		// FilePathShared reports whether another page of the book uses the same file.
		FilePathShared(ctx context.Context, p Page, exec ...core.DBExecutor) (bool, error)
		UpdatePage(ctx context.Context, p Page, exec ...core.DBExecutor) (Page, error)
		// DeletePage deletes the page with its annotations.
		DeletePage(ctx context.Context, id int64, exec ...core.DBExecutor) error

		// QueryUnmirroredPages returns up to limit pages not yet copied to the mirror.
		QueryUnmirroredPages(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Page, error)
		SetMirrored(ctx context.Context, bookID int64, filePath string, at time.Time, exec ...core.DBExecutor) error
	}

	// FileStore keeps the files of the answer books.
	FileStore interface {
		Exists(bookID int64, name string) (bool, error)
		Save(bookID int64, name string, content []byte) error
		Remove(bookID int64, names ...string) error
		// LocalPath returns the path of a file on the local disk.
		LocalPath(bookID int64, name string) string
	}

	// PageProcessor turns uploaded files into pages.
	PageProcessor interface {
		CountPDFPages(content []byte) (int, error)
		// ProcessImage returns the encoded images to store, in page order.
		ProcessImage(content []byte, ext string, opts ImageOptions) ([][]byte, error)
	}

	// MirrorQueue receives the files to copy to (or remove from) the mirror.
	MirrorQueue interface {
		Enqueue(jobs ...MirrorJob)
	}

	Service interface {
		GetBook(ctx context.Context, id int64) (Book, error)
		// GetBookDetail returns the book with its student, creator, modifier and pages.
		GetBookDetail(ctx context.Context, id int64) (Book, error)
		// ListBooks returns the books of a task ordered by id, with their students.
		ListBooks(ctx context.Context, taskID int64) ([]Book, error)
		AddBook(ctx context.Context, t task.Task, nb NewBook, creator user.User) (Book, error)
		UpdateBook(ctx context.Context, b Book, ub UpdateBook, modifier user.User) (Book, error)
		// GoToBook returns the next (or previous) book of the same task by id; false when there is none.
		GoToBook(ctx context.Context, from Book, next bool) (Book, bool, error)
		// DeleteBook returns the paths of the files no longer used by any page.
		DeleteBook(ctx context.Context, b Book) ([]string, error)

		GetPage(ctx context.Context, id int64) (Page, error)
		GetPages(ctx context.Context, bookID int64) ([]Page, error)
		AddPages(ctx context.Context, b Book, uploads []Upload, opts *ImageOptions, index *int, creator user.User) ([]Page, error)
		UpdatePage(ctx context.Context, p Page, up UpdatePage, modifier user.User) (Page, error)
		// DeletePage returns the file path of the page when no other page of the book uses it, "" otherwise.
		DeletePage(ctx context.Context, p Page) (string, error)

		// LocalFile returns the local path of a file of b.
		LocalFile(b Book, name string) (string, error)
		QueryUnmirroredPages(ctx context.Context, limit int) ([]Page, error)
		SetMirrored(ctx context.Context, bookID int64, filePath string) error
	}

	service struct {
		db        core.DB
		repo      Repository
		taskSvc   task.Service
		usrSvc    user.Service
		files     FileStore
		processor PageProcessor
		mirror    MirrorQueue
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	taskSvc task.Service,
	usrSvc user.Service,
	files FileStore,
	processor PageProcessor,
	mirror MirrorQueue,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		taskSvc:   taskSvc,
		usrSvc:    usrSvc,
		files:     files,
		processor: processor,
		mirror:    mirror,
	}
}

// checkUnlocked returns task.ErrLocked when the task of the book is locked.
func (svc *service) checkUnlocked(ctx context.Context, taskID int64) error {
	t, err := svc.taskSvc.GetByID(ctx, taskID)
	if err != nil {
		return errors.Wrap(err, "getting task")
	}
	if t.IsLocked {
		return task.ErrLocked
	}
	return nil
}

func (svc *service) GetBook(ctx context.Context, id int64) (Book, error) {
	return svc.repo.GetBook(ctx, id)
}

func (svc *service) GetBookDetail(ctx context.Context, id int64) (Book, error) {
	b, err := svc.repo.GetBook(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if b.Pages, err = svc.repo.QueryPages(ctx, b.ID); err != nil {
		return Book{}, errors.Wrap(err, "querying pages")
	}
	if err = svc.withUsers(ctx, []*Book{&b}, true); err != nil {
		return Book{}, err
	}
	return b, nil
}

func (svc *service) ListBooks(ctx context.Context, taskID int64) ([]Book, error) {
	books, err := svc.repo.QueryBooks(ctx, taskID)
	if err != nil {
		return nil, errors.Wrap(err, "querying books")
	}
	ptrs := make([]*Book, 0, len(books))
	for i := range books {
		ptrs = append(ptrs, &books[i])
	}
	if err = svc.withUsers(ctx, ptrs, false); err != nil {
		return nil, err
	}
	return books, nil
}

// withUsers sets the student (and the creator and modifier when all is true) of books.
func (svc *service) withUsers(ctx context.Context, books []*Book, all bool) error {
	ids := make([]int64, 0, len(books))
	for _, b := range books {
		if all {
			ids = append(ids, b.UserIDs()...)
		} else if b.StudentID != nil {
			ids = append(ids, *b.StudentID)
		}
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "getting users")
	}

	mini := func(id *int64) *user.Mini {
		if id == nil {
			return nil
		}
		if usr, ok := users[*id]; ok {
			m := usr.Mini()
			return &m
		}
		return nil
	}
	for _, b := range books {
		b.Student = mini(b.StudentID)
		if all {
			b.Creator = mini(b.CreatorID)
			b.Modifier = mini(b.ModifierID)
		}
	}
	return nil
}

// getStudent resolves a student by name; a blank name means no student.
func (svc *service) getStudent(ctx context.Context, name string) (*user.User, error) {
	if name == "" {
		return nil, nil
	}
	student, err := svc.usrSvc.GetByName(ctx, name)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, ErrStudentNotFound
		}
		return nil, errors.Wrap(err, "getting student")
	}
	return &student, nil
}

func (svc *service) AddBook(ctx context.Context, t task.Task, nb NewBook, creator user.User) (Book, error) {
	nb.Clean()
	if t.IsLocked {
		return Book{}, task.ErrLocked
	}
	student, err := svc.getStudent(ctx, nb.StudentName)
	if err != nil {
		return Book{}, err
	}

	now := time.Now().UTC()
	b := Book{
		TaskID:      t.ID,
		CreatorID:   &creator.ID,
		SubmittedAt: nb.SubmittedAt,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if student != nil {
		exists, err := svc.repo.StudentBookExists(ctx, t.ID, student.ID, 0)
		if err != nil {
			return Book{}, errors.Wrap(err, "checking student book")
		}
		if exists {
			return Book{}, ErrDuplicateBook
		}
		b.StudentID = &student.ID
	}

	if b, err = svc.repo.CreateBook(ctx, b); err != nil {
		return Book{}, err
	}
	if student != nil {
		mini := student.Mini()
		b.Student = &mini
	}
	return b, nil
}

func (svc *service) UpdateBook(ctx context.Context, b Book, ub UpdateBook, modifier user.User) (Book, error) {
	ub.Clean()
	if err := svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return Book{}, err
	}
	student, err := svc.getStudent(ctx, ub.StudentName)
	if err != nil {
		return Book{}, err
	}

	b.StudentID = nil
	if student != nil {
		exists, err := svc.repo.StudentBookExists(ctx, b.TaskID, student.ID, b.ID)
		if err != nil {
			return Book{}, errors.Wrap(err, "checking student book")
		}
		if exists {
			return Book{}, ErrDuplicateBook
		}
		b.StudentID = &student.ID
	}
	b.ModifierID = &modifier.ID
	b.ModifiedAt = time.Now().UTC()

	if _, err = svc.repo.UpdateBook(ctx, b); err != nil {
		return Book{}, err
	}
	return svc.GetBookDetail(ctx, b.ID)
}

func (svc *service) GoToBook(ctx context.Context, from Book, next bool) (Book, bool, error) {
	b, err := svc.repo.NeighbourBook(ctx, from, next)
	if err != nil {
		if errors.Cause(err) == ErrBookNotFound {
			return Book{}, false, nil
		}
		return Book{}, false, err
	}
	return b, true, nil
}

func (svc *service) DeleteBook(ctx context.Context, b Book) ([]string, error) {
	if err := svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return nil, err
	}

	pages, err := svc.repo.QueryPages(ctx, b.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying pages")
	}
	paths := make([]string, 0, len(pages))
	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		if !seen[p.FilePath] {
			seen[p.FilePath] = true
			paths = append(paths, p.FilePath)
		}
	}

	if err = svc.repo.DeleteBook(ctx, b.ID); err != nil {
		return nil, errors.Wrap(err, "deleting book")
	}
	svc.removeFiles(b.ID, paths...)
	return paths, nil
}

func (svc *service) removeFiles(bookID int64, paths ...string) {
	if len(paths) == 0 {
		return
	}
	// best effort: orphan files do not break anything
	_ = svc.files.Remove(bookID, paths...)
	jobs := make([]MirrorJob, 0, len(paths))
	for _, p := range paths {
		jobs = append(jobs, MirrorJob{BookID: bookID, FilePath: p, Delete: true})
	}
	svc.mirror.Enqueue(jobs...)
}

func (svc *service) GetPage(ctx context.Context, id int64) (Page, error) {
	return svc.repo.GetPage(ctx, id)
}

func (svc *service) GetPages(ctx context.Context, bookID int64) ([]Page, error) {
	return svc.repo.QueryPages(ctx, bookID)
}

func (svc *service) UpdatePage(ctx context.Context, p Page, up UpdatePage, modifier user.User) (Page, error) {
	if err := up.Validate(); err != nil {
		return Page{}, err
	}
	b, err := svc.repo.GetBook(ctx, p.BookID)
	if err != nil {
		return Page{}, errors.Wrap(err, "getting book")
	}
	if err = svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return Page{}, err
	}

	exists, err := svc.repo.PageIndexExists(ctx, p.BookID, *up.Index, p.ID)
	if err != nil {
		return Page{}, errors.Wrap(err, "checking page index")
	}
	if exists {
		return Page{}, ErrDuplicateIndex
	}

	p.Index = *up.Index
	p.Transform = ""
	if up.Transform != nil {
		p.Transform = *up.Transform
	}
	p.ModifierID = &modifier.ID
	p.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdatePage(ctx, p)
}

func (svc *service) DeletePage(ctx context.Context, p Page) (string, error) {
	b, err := svc.repo.GetBook(ctx, p.BookID)
	if err != nil {
		return "", errors.Wrap(err, "getting book")
	}
	if err = svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return "", err
	}

	shared, err := svc.repo.FilePathShared(ctx, p)
	if err != nil {
		return "", errors.Wrap(err, "checking file path")
	}
	if err = svc.repo.DeletePage(ctx, p.ID); err != nil {
		return "", errors.Wrap(err, "deleting page")
	}
	if shared {
		return "", nil
	}
	svc.removeFiles(p.BookID, p.FilePath)
	return p.FilePath, nil
}

// storedFile is a file to write once its pages are saved.
type storedFile struct {
	name    string
	content []byte
}

// AddPages stores the uploads of a book:
// a PDF becomes one page per PDF page, an image becomes one page, or several when opts splits it.
// Pages without an explicit index are appended after the last page of the book.
func (svc *service) AddPages(ctx context.Context, b Book, uploads []Upload, opts *ImageOptions, index *int, creator user.User) ([]Page, error) {
	if len(uploads) == 0 {
		return nil, ErrFileRequired
	}
	if err := svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return nil, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		pages   []Page
		toStore []storedFile
	)
	reserved := make(map[string]bool)
	now := time.Now().UTC()

	newPage := func(name string, idx *int, fileIndex *int) (Page, error) {
		p := Page{
			BookID:     b.ID,
			FilePath:   name,
			FileIndex:  fileIndex,
			CreatorID:  &creator.ID,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if idx != nil {
			p.Index = *idx
		} else {
			max, ok, err := svc.repo.MaxPageIndex(ctx, b.ID, tx)
			if err != nil {
				return Page{}, errors.Wrap(err, "getting max page index")
			}
			p.Index = 1
			if ok {
				p.Index = max + 1
			}
		}
		return svc.repo.CreatePage(ctx, p, tx)
	}

	for _, up := range uploads {
		ext := strings.ToLower(filepath.Ext(up.Filename))
		fileID, err := svc.newFileID(b.ID, ext, reserved)
		if err != nil {
			return nil, err
		}
		name := fileID + ext

		switch {
		case ext == ".pdf":
			numPages, err := svc.processor.CountPDFPages(up.Content)
			if err != nil {
				return nil, core.NewBasicError("failed to read pdf", err.Error())
			}
			start, ok, err := svc.repo.MaxPageIndex(ctx, b.ID, tx)
			if err != nil {
				return nil, errors.Wrap(err, "getting max page index")
			}
			if !ok {
				start = 0
			}
			for i := 1; i <= numPages; i++ {
				idx, fileIndex := start+i, i
				p, err := newPage(name, &idx, &fileIndex)
				if err != nil {
					return nil, err
				}
				pages = append(pages, p)
			}
			toStore = append(toStore, storedFile{name: name, content: up.Content})

		case opts != nil:
			images, err := svc.processor.ProcessImage(up.Content, ext, *opts)
			if err != nil {
				return nil, core.NewBasicError("Failed to process image", err.Error())
			}
			for i, img := range images {
				altName := name // the first output keeps the original path
				if i > 0 {
					altName = fmt.Sprintf("%s_%d%s", fileID, i, ext)
				}
				p, err := newPage(altName, nil, nil)
				if err != nil {
					return nil, err
				}
				pages = append(pages, p)
				toStore = append(toStore, storedFile{name: altName, content: img})
			}

		default:
			p, err := newPage(name, index, nil)
			if err != nil {
				return nil, err
			}
			pages = append(pages, p)
			toStore = append(toStore, storedFile{name: name, content: up.Content})
		}
	}

	stored := make([]string, 0, len(toStore))
	for _, f := range toStore {
		if err = svc.files.Save(b.ID, f.name, f.content); err != nil {
			_ = svc.files.Remove(b.ID, stored...)
			return nil, errors.Wrap(err, "saving file")
		}
		stored = append(stored, f.name)
	}

	if err = tx.Commit(); err != nil {
		_ = svc.files.Remove(b.ID, stored...)
		return nil, errors.Wrap(err, "committing transaction")
	}

	jobs := make([]MirrorJob, 0, len(stored))
	for _, name := range stored {
		jobs = append(jobs, MirrorJob{BookID: b.ID, FilePath: name})
	}
	svc.mirror.Enqueue(jobs...)
	return pages, nil
}

// newFileID returns a random file id whose file does not exist yet in the book folder.
func (svc *service) newFileID(bookID int64, ext string, reserved map[string]bool) (string, error) {
	for tries := 0; tries <= maxPathTries; tries++ {
		id := newFileID()
		if reserved[id] {
			continue
		}
		exists, err := svc.files.Exists(bookID, id+ext)
		if err != nil {
			return "", errors.Wrap(err, "checking file")
		}
		if !exists {
			reserved[id] = true
			return id, nil
		}
	}
	return "", ErrPathGeneration
}

func (svc *service) LocalFile(b Book, name string) (string, error) {
	name = filepath.Clean("/" + name)[1:]
	if name == "" || strings.Contains(name, "/") {
		return "", core.NewNotFoundError("file")
	}
	exists, err := svc.files.Exists(b.ID, name)
	if err != nil {
		return "", errors.Wrap(err, "checking file")
	}
	if !exists {
		return "", core.NewNotFoundError("file")
	}
	return svc.files.LocalPath(b.ID, name), nil
}

func (svc *service) QueryUnmirroredPages(ctx context.Context, limit int) ([]Page, error) {
	return svc.repo.QueryUnmirroredPages(ctx, limit)
}

func (svc *service) SetMirrored(ctx context.Context, bookID int64, filePath string) error {
	return svc.repo.SetMirrored(ctx, bookID, filePath, time.Now().UTC())
}
