package task

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("task")
	ErrQuestionNotFound   = core.NewNotFoundError("question")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment")
	ErrMarkerNotFound     = core.NewNotFoundError("marker")

	ErrNameRequired    = core.NewBasicError("name is required")
	ErrDuplicateName   = core.NewBasicError("duplicate name")
	ErrAlreadyLocked   = core.NewBasicError("already locked")
	ErrNotLocked       = core.NewBasicError("not locked")
	ErrLocked          = core.NewBasicError("task has been locked")
	ErrIndexRequired   = core.NewBasicError("index is required")
	ErrMarksRequired   = core.NewBasicError("marks is required")
	ErrDuplicateIndex  = core.NewBasicError("duplicate index")
	ErrAlreadyAssigned = core.NewBasicError("already assigned")
)

type (
	Repository interface {
		// CreateTask returns ErrDuplicateName when the name is taken.
		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		TaskNameExists(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error)
		GetTask(ctx context.Context, id int64, exec ...core.DBExecutor) (Task, error)
		QueryTasks(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)

		// CreateQuestion returns ErrDuplicateIndex when the index is taken in the task.
		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		QuestionIndexExists(ctx context.Context, taskID int64, index int, exec ...core.DBExecutor) (bool, error)
		GetQuestion(ctx context.Context, id int64, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions returns the questions of a task ordered by index.
		QueryQuestions(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]Question, error)

		// CreateAssignment returns ErrAlreadyAssigned when the marker is already assigned to the question.
		CreateAssignment(ctx context.Context, ass Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, questionID, markerID int64, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, questionIDs []int64, exec ...core.DBExecutor) ([]Assignment, error)
		DeleteAssignment(ctx context.Context, questionID, markerID int64, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		GetByID(ctx context.Context, id int64) (Task, error)
		GetAll(ctx context.Context, ordering []core.DBOrdering) ([]Task, error)
		// GetDetail returns the task with its questions (ordered by index) and their marker assignments.
		GetDetail(ctx context.Context, id int64) (Task, error)
		Add(ctx context.Context, nt NewTask) (Task, error)
		Lock(ctx context.Context, t Task) (Task, error)
		Unlock(ctx context.Context, t Task) (Task, error)

		GetQuestion(ctx context.Context, id int64) (Question, error)
		GetQuestions(ctx context.Context, taskID int64) ([]Question, error)
		AddQuestion(ctx context.Context, t Task, nq NewQuestion) (Question, error)

		GetAssignment(ctx context.Context, q Question, marker user.User) (Assignment, error)
		// AddAssignment assigns marker to q and lets the marker know by email.
		AddAssignment(ctx context.Context, t Task, q Question, marker, assigner user.User) (Assignment, error)
		DeleteAssignment(ctx context.Context, t Task, q Question, marker user.User) error

		// Import creates a task, its questions and their marker assignments in a single transaction.
		Import(ctx context.Context, m Manifest) (Task, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{
		db:      db,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
	}
}

func (svc *service) GetByID(ctx context.Context, id int64) (Task, error) {
	return svc.repo.GetTask(ctx, id)
}

func (svc *service) GetAll(ctx context.Context, ordering []core.DBOrdering) ([]Task, error) {
	return svc.repo.QueryTasks(ctx, ordering)
}

func (svc *service) GetDetail(ctx context.Context, id int64) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	questions, err := svc.repo.QueryQuestions(ctx, t.ID)
	if err != nil {
		return Task{}, errors.Wrap(err, "querying questions")
	}
	if len(questions) == 0 {
		t.Questions = []Question{}
		return t, nil
	}

	qIDs := make([]int64, 0, len(questions))
	for _, q := range questions {
		qIDs = append(qIDs, q.ID)
	}
	assignments, err := svc.repo.QueryAssignments(ctx, qIDs)
	if err != nil {
		return Task{}, errors.Wrap(err, "querying assignments")
	}

	markerIDs := make([]int64, 0, len(assignments))
	for _, ass := range assignments {
		markerIDs = append(markerIDs, ass.MarkerID)
	}
	markers, err := svc.usrSvc.GetByIDs(ctx, markerIDs...)
	if err != nil {
		return Task{}, errors.Wrap(err, "getting markers")
	}

	byQuestion := make(map[int64][]Assignment, len(questions))
	for _, ass := range assignments {
		if m, ok := markers[ass.MarkerID]; ok {
			mini := m.Mini()
			ass.Marker = &mini
		}
		byQuestion[ass.QuestionID] = append(byQuestion[ass.QuestionID], ass)
	}
	for i := range questions {
		questions[i].MarkerAssignments = byQuestion[questions[i].ID]
		if questions[i].MarkerAssignments == nil {
			questions[i].MarkerAssignments = []Assignment{}
		}
	}
	t.Questions = questions
	return t, nil
}

func (svc *service) Add(ctx context.Context, nt NewTask) (Task, error) {
	if err := nt.Validate(); err != nil {
		return Task{}, err
	}
	return svc.add(ctx, nt.Name, svc.db)
}

func (svc *service) add(ctx context.Context, name string, exec core.DBExecutor) (Task, error) {
	exists, err := svc.repo.TaskNameExists(ctx, name, exec)
	if err != nil {
		return Task{}, errors.Wrap(err, "checking task name")
	}
	if exists {
		return Task{}, ErrDuplicateName
	}

	now := time.Now().UTC()
	return svc.repo.CreateTask(ctx, Task{Name: name, CreatedAt: now, ModifiedAt: now}, exec)
}

func (svc *service) Lock(ctx context.Context, t Task) (Task, error) {
	if t.IsLocked {
		return Task{}, ErrAlreadyLocked
	}
	t.IsLocked = true
	t.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdateTask(ctx, t)
}

func (svc *service) Unlock(ctx context.Context, t Task) (Task, error) {
	if !t.IsLocked {
		return Task{}, ErrNotLocked
	}
	t.IsLocked = false
	t.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdateTask(ctx, t)
}

func (svc *service) GetQuestion(ctx context.Context, id int64) (Question, error) {
	return svc.repo.GetQuestion(ctx, id)
}

func (svc *service) GetQuestions(ctx context.Context, taskID int64) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, taskID)
}

func (svc *service) AddQuestion(ctx context.Context, t Task, nq NewQuestion) (Question, error) {
	return svc.addQuestion(ctx, t, nq, svc.db)
}

func (svc *service) addQuestion(ctx context.Context, t Task, nq NewQuestion, exec core.DBExecutor) (Question, error) {
	if err := nq.Validate(); err != nil {
		return Question{}, err
	}
	if t.IsLocked {
		return Question{}, ErrLocked
	}

	exists, err := svc.repo.QuestionIndexExists(ctx, t.ID, *nq.Index, exec)
	if err != nil {
		return Question{}, errors.Wrap(err, "checking question index")
	}
	if exists {
		return Question{}, ErrDuplicateIndex
	}

	now := time.Now().UTC()
	return svc.repo.CreateQuestion(ctx, Question{
		TaskID:            t.ID,
		Index:             *nq.Index,
		Marks:             *nq.Marks,
		Description:       nq.Description,
		ExcludedFromTotal: nq.ExcludedFromTotal,
		CreatedAt:         now,
		ModifiedAt:        now,
	}, exec)
}

func (svc *service) GetAssignment(ctx context.Context, q Question, marker user.User) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, q.ID, marker.ID)
}

func (svc *service) AddAssignment(ctx context.Context, t Task, q Question, marker, assigner user.User) (Assignment, error) {
	ass, err := svc.addAssignment(ctx, t, q, marker, svc.db)
	if err != nil {
		return Assignment{}, err
	}
	svc.mailSvc.SendMessages(svc.assignmentMessage(t, q, marker, assigner))
	return ass, nil
}

func (svc *service) addAssignment(ctx context.Context, t Task, q Question, marker user.User, exec core.DBExecutor) (Assignment, error) {
	if q.TaskID != t.ID {
		return Assignment{}, ErrQuestionNotFound
	}
	if t.IsLocked {
		return Assignment{}, ErrLocked
	}

	if _, err := svc.repo.GetAssignment(ctx, q.ID, marker.ID, exec); err == nil {
		return Assignment{}, ErrAlreadyAssigned
	} else if errors.Cause(err) != ErrAssignmentNotFound {
		return Assignment{}, errors.Wrap(err, "checking assignment")
	}

	now := time.Now().UTC()
	ass, err := svc.repo.CreateAssignment(ctx, Assignment{
		MarkerID:   marker.ID,
		QuestionID: q.ID,
		CreatedAt:  now,
		ModifiedAt: now,
	}, exec)
	if err != nil {
		return Assignment{}, err
	}
	mini := marker.Mini()
	ass.Marker = &mini
	return ass, nil
}

func (svc *service) assignmentMessage(t Task, q Question, marker, assigner user.User) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: marker.Name, Address: marker.Email}},
		Subject:      fmt.Sprintf("New assignment: %s Q%d", t.Name, q.Index),
		TemplateName: "assignment",
		TemplateData: map[string]interface{}{
			"AssignerName":  assigner.Name,
			"QuestionIndex": q.Index,
			"TaskName":      t.Name,
			"TaskID":        t.ID,
		},
	}
}

func (svc *service) DeleteAssignment(ctx context.Context, t Task, q Question, marker user.User) error {
	if q.TaskID != t.ID {
		return ErrQuestionNotFound
	}
	if t.IsLocked {
		return ErrLocked
	}
	n, err := svc.repo.DeleteAssignment(ctx, q.ID, marker.ID)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (svc *service) Import(ctx context.Context, m Manifest) (Task, error) {
	nt := NewTask{Name: m.Name}
	if err := nt.Validate(); err != nil {
		return Task{}, err
	}

	// resolve markers before opening the transaction
	markers := make(map[string]user.User)
	for _, mq := range m.Questions {
		for _, name := range mq.Markers {
			if _, ok := markers[name]; ok {
				continue
			}
			marker, err := svc.usrSvc.GetByName(ctx, name)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return Task{}, core.NewBasicError(ErrMarkerNotFound.Error(), name)
				}
				return Task{}, errors.Wrap(err, "getting marker")
			}
			markers[name] = marker
		}
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	t, err := svc.add(ctx, nt.Name, tx)
	if err != nil {
		return Task{}, err
	}
	for _, mq := range m.Questions {
		q, err := svc.addQuestion(ctx, t, mq.NewQuestion, tx)
		if err != nil {
			return Task{}, err
		}
		for _, name := range mq.Markers {
			if _, err = svc.addAssignment(ctx, t, q, markers[name], tx); err != nil {
				return Task{}, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return Task{}, errors.Wrap(err, "committing transaction")
	}
	return svc.GetDetail(ctx, t.ID)
}
