package marking

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("marking")
	ErrAnnotationNotFound = core.NewNotFoundError("annotation")
	ErrCommentNotFound    = core.NewNotFoundError("comment")

	ErrMarksRequired    = core.NewBasicError("marks is required")
	ErrDataRequired     = core.NewBasicError("data is required")
	ErrContentRequired  = core.NewBasicError("content is required")
	ErrNoAssignment     = core.NewBasicError("no assignment")
	ErrDuplicateMarking = core.NewBasicError("duplicate marking")
	ErrNoPermission     = core.NewBasicError("no permission")
)

type (
	Repository interface {
		// CreateMarking returns ErrDuplicateMarking when the question is already marked in the book.
		CreateMarking(ctx context.Context, m Marking, exec ...core.DBExecutor) (Marking, error)
		GetMarking(ctx context.Context, id int64, exec ...core.DBExecutor) (Marking, error)
		MarkingExists(ctx context.Context, bookID, questionID int64, exec ...core.DBExecutor) (bool, error)
		UpdateMarking(ctx context.Context, m Marking, exec ...core.DBExecutor) (Marking, error)
		// QueryMarkings returns the markings of the given books ordered by id.
		QueryMarkings(ctx context.Context, bookIDs []int64, exec ...core.DBExecutor) ([]Marking, error)

		CreateAnnotation(ctx context.Context, a Annotation, exec ...core.DBExecutor) (Annotation, error)
		GetAnnotation(ctx context.Context, id int64, exec ...core.DBExecutor) (Annotation, error)
		UpdateAnnotation(ctx context.Context, a Annotation, exec ...core.DBExecutor) (Annotation, error)
		DeleteAnnotation(ctx context.Context, id int64, exec ...core.DBExecutor) error
		// QueryAnnotations returns the annotations of the given pages ordered by id.
		QueryAnnotations(ctx context.Context, pageIDs []int64, exec ...core.DBExecutor) ([]Annotation, error)

		CreateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		GetComment(ctx context.Context, id int64, exec ...core.DBExecutor) (Comment, error)
		UpdateComment(ctx context.Context, c Comment, exec ...core.DBExecutor) (Comment, error)
		DeleteComment(ctx context.Context, id int64, exec ...core.DBExecutor) error
		// QueryComments returns the comments of the given books ordered by id.
		QueryComments(ctx context.Context, bookIDs []int64, exec ...core.DBExecutor) ([]Comment, error)
	}

	// StatsRepository aggregates the markings of a task.
	StatsRepository interface {
		QueryQuestionStats(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]QuestionStats, error)
	}

	Service interface {
		GetMarking(ctx context.Context, id int64) (Marking, error)
		AddMarking(ctx context.Context, b answer.Book, nm NewMarking, creator user.User) (Marking, error)
		UpdateMarking(ctx context.Context, m Marking, um UpdateMarking, modifier user.User) (Marking, error)

		GetAnnotation(ctx context.Context, id int64) (Annotation, error)
		AddAnnotation(ctx context.Context, p answer.Page, ad AnnotationData, creator user.User) (Annotation, error)
		UpdateAnnotation(ctx context.Context, a Annotation, ad AnnotationData, modifier user.User) (Annotation, error)
		DeleteAnnotation(ctx context.Context, a Annotation, requester user.User) error

		GetComment(ctx context.Context, id int64) (Comment, error)
		AddComment(ctx context.Context, b answer.Book, cc CommentContent, creator user.User) (Comment, error)
		UpdateComment(ctx context.Context, c Comment, cc CommentContent, modifier user.User) (Comment, error)
		DeleteComment(ctx context.Context, c Comment, requester user.User) error

		// GetPageDetail returns a page with its annotations.
		GetPageDetail(ctx context.Context, pageID int64) (PageDetail, error)
		// GetBookDetail returns a book with its pages, annotations, markings and comments.
		GetBookDetail(ctx context.Context, bookID int64) (BookDetail, error)
		// ListBookSummaries returns the books of a task with their markings and comments.
		ListBookSummaries(ctx context.Context, taskID int64) ([]BookSummary, error)
		// Sheet returns the marking sheet of a task.
		Sheet(ctx context.Context, taskID int64) (Sheet, error)
		// Summary returns the charts summarising the marks of a task.
		Summary(ctx context.Context, taskID int64) (Summary, error)
	}

	service struct {
		repo      Repository
		statsRepo StatsRepository
		taskSvc   task.Service
		answerSvc answer.Service
		usrSvc    user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	statsRepo StatsRepository,
	taskSvc task.Service,
	answerSvc answer.Service,
	usrSvc user.Service,
) Service {
	return &service{
		repo:      repo,
		statsRepo: statsRepo,
		taskSvc:   taskSvc,
		answerSvc: answerSvc,
		usrSvc:    usrSvc,
	}
}

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

func (svc *service) GetMarking(ctx context.Context, id int64) (Marking, error) {
	return svc.repo.GetMarking(ctx, id)
}

// assignedQuestion returns the question of the task, making sure marker is assigned to it.
func (svc *service) assignedQuestion(ctx context.Context, taskID, questionID int64, marker user.User) (task.Question, error) {
	t, err := svc.taskSvc.GetDetail(ctx, taskID)
	if err != nil {
		return task.Question{}, errors.Wrap(err, "getting task")
	}
	if t.IsLocked {
		return task.Question{}, task.ErrLocked
	}
	q, ok := t.QuestionByID(questionID)
	if !ok {
		return task.Question{}, task.ErrQuestionNotFound
	}
	if !q.IsAssigned(marker.ID) {
		return task.Question{}, ErrNoAssignment
	}
	return q, nil
}

func (svc *service) AddMarking(ctx context.Context, b answer.Book, nm NewMarking, creator user.User) (Marking, error) {
	if err := nm.Validate(); err != nil {
		return Marking{}, err
	}
	q, err := svc.assignedQuestion(ctx, b.TaskID, nm.QuestionID, creator)
	if err != nil {
		return Marking{}, err
	}

	exists, err := svc.repo.MarkingExists(ctx, b.ID, q.ID)
	if err != nil {
		return Marking{}, errors.Wrap(err, "checking marking")
	}
	if exists {
		return Marking{}, ErrDuplicateMarking
	}

	now := time.Now().UTC()
	m := Marking{
		BookID:     b.ID,
		QuestionID: q.ID,
		Marks:      *nm.Marks,
		Remarks:    nm.Remarks,
		CreatorID:  &creator.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if m, err = svc.repo.CreateMarking(ctx, m); err != nil {
		return Marking{}, err
	}
	mini := creator.Mini()
	m.Creator = &mini
	return m, nil
}

func (svc *service) UpdateMarking(ctx context.Context, m Marking, um UpdateMarking, modifier user.User) (Marking, error) {
	if err := um.Validate(); err != nil {
		return Marking{}, err
	}
	b, err := svc.answerSvc.GetBook(ctx, m.BookID)
	if err != nil {
		return Marking{}, errors.Wrap(err, "getting book")
	}
	if _, err = svc.assignedQuestion(ctx, b.TaskID, m.QuestionID, modifier); err != nil {
		return Marking{}, err
	}

	m.Marks = *um.Marks
	m.Remarks = um.Remarks
	m.ModifierID = &modifier.ID
	m.ModifiedAt = time.Now().UTC()
	if m, err = svc.repo.UpdateMarking(ctx, m); err != nil {
		return Marking{}, err
	}
	if err = svc.withMarkingUsers(ctx, []Marking{m}); err != nil {
		return Marking{}, err
	}
	return m, nil
}

func (svc *service) GetAnnotation(ctx context.Context, id int64) (Annotation, error) {
	return svc.repo.GetAnnotation(ctx, id)
}

// checkPageUnlocked returns task.ErrLocked when the task of the page is locked.
func (svc *service) checkPageUnlocked(ctx context.Context, pageID int64) error {
	p, err := svc.answerSvc.GetPage(ctx, pageID)
	if err != nil {
		return errors.Wrap(err, "getting page")
	}
	b, err := svc.answerSvc.GetBook(ctx, p.BookID)
	if err != nil {
		return errors.Wrap(err, "getting book")
	}
	return svc.checkUnlocked(ctx, b.TaskID)
}

func (svc *service) AddAnnotation(ctx context.Context, p answer.Page, ad AnnotationData, creator user.User) (Annotation, error) {
	if err := ad.Validate(); err != nil {
		return Annotation{}, err
	}
	if err := svc.checkPageUnlocked(ctx, p.ID); err != nil {
		return Annotation{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateAnnotation(ctx, Annotation{
		PageID:     p.ID,
		Data:       ad.Data,
		CreatorID:  &creator.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	})
}

func (svc *service) UpdateAnnotation(ctx context.Context, a Annotation, ad AnnotationData, modifier user.User) (Annotation, error) {
	if err := ad.Validate(); err != nil {
		return Annotation{}, err
	}
	if err := svc.checkPageUnlocked(ctx, a.PageID); err != nil {
		return Annotation{}, err
	}
	if !isCreator(a.CreatorID, modifier) {
		return Annotation{}, ErrNoPermission
	}

	a.Data = ad.Data
	a.ModifierID = &modifier.ID
	a.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdateAnnotation(ctx, a)
}

func (svc *service) DeleteAnnotation(ctx context.Context, a Annotation, requester user.User) error {
	if err := svc.checkPageUnlocked(ctx, a.PageID); err != nil {
		return err
	}
	if !isCreator(a.CreatorID, requester) {
		return ErrNoPermission
	}
	return svc.repo.DeleteAnnotation(ctx, a.ID)
}

func (svc *service) GetComment(ctx context.Context, id int64) (Comment, error) {
	return svc.repo.GetComment(ctx, id)
}

func (svc *service) AddComment(ctx context.Context, b answer.Book, cc CommentContent, creator user.User) (Comment, error) {
	if err := cc.Validate(); err != nil {
		return Comment{}, err
	}
	if err := svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return Comment{}, err
	}

	now := time.Now().UTC()
	c, err := svc.repo.CreateComment(ctx, Comment{
		BookID:     b.ID,
		Content:    cc.Content,
		CreatorID:  &creator.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	})
	if err != nil {
		return Comment{}, err
	}
	mini := creator.Mini()
	c.Creator = &mini
	return c, nil
}

func (svc *service) UpdateComment(ctx context.Context, c Comment, cc CommentContent, modifier user.User) (Comment, error) {
	if err := cc.Validate(); err != nil {
		return Comment{}, err
	}
	b, err := svc.answerSvc.GetBook(ctx, c.BookID)
	if err != nil {
		return Comment{}, errors.Wrap(err, "getting book")
	}
	if err = svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return Comment{}, err
	}
	if !isCreator(c.CreatorID, modifier) {
		return Comment{}, ErrNoPermission
	}

	c.Content = cc.Content
	c.ModifierID = &modifier.ID
	c.ModifiedAt = time.Now().UTC()
	if c, err = svc.repo.UpdateComment(ctx, c); err != nil {
		return Comment{}, err
	}
	comments := []Comment{c}
	if err = svc.withCommentUsers(ctx, comments); err != nil {
		return Comment{}, err
	}
	return comments[0], nil
}

func (svc *service) DeleteComment(ctx context.Context, c Comment, requester user.User) error {
	b, err := svc.answerSvc.GetBook(ctx, c.BookID)
	if err != nil {
		return errors.Wrap(err, "getting book")
	}
	if err = svc.checkUnlocked(ctx, b.TaskID); err != nil {
		return err
	}
	if !isCreator(c.CreatorID, requester) {
		return ErrNoPermission
	}
	return svc.repo.DeleteComment(ctx, c.ID)
}

func (svc *service) GetPageDetail(ctx context.Context, pageID int64) (PageDetail, error) {
	p, err := svc.answerSvc.GetPage(ctx, pageID)
	if err != nil {
		return PageDetail{}, err
	}
	anns, err := svc.repo.QueryAnnotations(ctx, []int64{p.ID})
	if err != nil {
		return PageDetail{}, errors.Wrap(err, "querying annotations")
	}
	return PageDetail{Page: p, Annotations: anns}, nil
}

func (svc *service) GetBookDetail(ctx context.Context, bookID int64) (BookDetail, error) {
	b, err := svc.answerSvc.GetBookDetail(ctx, bookID)
	if err != nil {
		return BookDetail{}, err
	}

	pageIDs := make([]int64, 0, len(b.Pages))
	for _, p := range b.Pages {
		pageIDs = append(pageIDs, p.ID)
	}
	anns, err := svc.repo.QueryAnnotations(ctx, pageIDs)
	if err != nil {
		return BookDetail{}, errors.Wrap(err, "querying annotations")
	}
	annMap := make(map[int64][]Annotation, len(pageIDs))
	for _, a := range anns {
		annMap[a.PageID] = append(annMap[a.PageID], a)
	}

	detail := BookDetail{Book: b, Pages: make([]PageDetail, 0, len(b.Pages))}
	for _, p := range b.Pages {
		pageAnns := annMap[p.ID]
		if pageAnns == nil {
			pageAnns = []Annotation{}
		}
		detail.Pages = append(detail.Pages, PageDetail{Page: p, Annotations: pageAnns})
	}
	detail.Book.Pages = nil

	if detail.Markings, err = svc.repo.QueryMarkings(ctx, []int64{b.ID}); err != nil {
		return BookDetail{}, errors.Wrap(err, "querying markings")
	}
	if err = svc.withMarkingUsers(ctx, detail.Markings); err != nil {
		return BookDetail{}, err
	}
	if detail.Comments, err = svc.repo.QueryComments(ctx, []int64{b.ID}); err != nil {
		return BookDetail{}, errors.Wrap(err, "querying comments")
	}
	if err = svc.withCommentUsers(ctx, detail.Comments); err != nil {
		return BookDetail{}, err
	}
	return detail, nil
}

func (svc *service) ListBookSummaries(ctx context.Context, taskID int64) ([]BookSummary, error) {
	books, err := svc.answerSvc.ListBooks(ctx, taskID)
	if err != nil {
		return nil, errors.Wrap(err, "listing books")
	}
	bookIDs := make([]int64, 0, len(books))
	for _, b := range books {
		bookIDs = append(bookIDs, b.ID)
	}

	markings, err := svc.repo.QueryMarkings(ctx, bookIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying markings")
	}
	comments, err := svc.repo.QueryComments(ctx, bookIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	markingMap := make(map[int64][]Marking, len(books))
	for _, m := range markings {
		markingMap[m.BookID] = append(markingMap[m.BookID], m)
	}
	commentMap := make(map[int64][]Comment, len(books))
	for _, c := range comments {
		commentMap[c.BookID] = append(commentMap[c.BookID], c)
	}

	summaries := make([]BookSummary, 0, len(books))
	for _, b := range books {
		bs := BookSummary{Book: b, Markings: markingMap[b.ID], Comments: commentMap[b.ID]}
		if bs.Markings == nil {
			bs.Markings = []Marking{}
		}
		if bs.Comments == nil {
			bs.Comments = []Comment{}
		}
		summaries = append(summaries, bs)
	}
	return summaries, nil
}

func (svc *service) Sheet(ctx context.Context, taskID int64) (Sheet, error) {
	t, err := svc.taskSvc.GetDetail(ctx, taskID)
	if err != nil {
		return Sheet{}, err
	}
	books, err := svc.ListBookSummaries(ctx, taskID)
	if err != nil {
		return Sheet{}, err
	}
	return NewSheet(t, books), nil
}

func (svc *service) Summary(ctx context.Context, taskID int64) (Summary, error) {
	t, err := svc.taskSvc.GetDetail(ctx, taskID)
	if err != nil {
		return Summary{}, err
	}
	books, err := svc.ListBookSummaries(ctx, taskID)
	if err != nil {
		return Summary{}, err
	}
	stats, err := svc.statsRepo.QueryQuestionStats(ctx, taskID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying question stats")
	}
	return NewSummary(t, books, stats), nil
}

func (svc *service) withMarkingUsers(ctx context.Context, markings []Marking) error {
	ids := make([]int64, 0, 2*len(markings))
	for _, m := range markings {
		if m.CreatorID != nil {
			ids = append(ids, *m.CreatorID)
		}
		if m.ModifierID != nil {
			ids = append(ids, *m.ModifierID)
		}
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "getting users")
	}
	for i := range markings {
		markings[i].Creator = miniOf(users, markings[i].CreatorID)
		markings[i].Modifier = miniOf(users, markings[i].ModifierID)
	}
	return nil
}

func (svc *service) withCommentUsers(ctx context.Context, comments []Comment) error {
	ids := make([]int64, 0, 2*len(comments))
	for _, c := range comments {
		if c.CreatorID != nil {
			ids = append(ids, *c.CreatorID)
		}
		if c.ModifierID != nil {
			ids = append(ids, *c.ModifierID)
		}
	}
	users, err := svc.usrSvc.GetByIDs(ctx, ids...)
	if err != nil {
		return errors.Wrap(err, "getting users")
	}
	for i := range comments {
		comments[i].Creator = miniOf(users, comments[i].CreatorID)
		comments[i].Modifier = miniOf(users, comments[i].ModifierID)
	}
	return nil
}

func miniOf(users map[int64]user.User, id *int64) *user.Mini {
	if id == nil {
		return nil
	}
	if usr, ok := users[*id]; ok {
		mini := usr.Mini()
		return &mini
	}
	return nil
}

func isCreator(creatorID *int64, usr user.User) bool {
	return creatorID != nil && *creatorID == usr.ID
}
