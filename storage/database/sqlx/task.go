package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/storage/database"
)

const (
	taskColumns       = "id, name, is_locked, created_at, modified_at"
	questionColumns   = `id, task_id, index, marks, COALESCE(description, '') AS description, excluded_from_total, created_at, modified_at`
	assignmentColumns = "marker_id, question_id, created_at, modified_at"
)

var taskOrderColumns = map[string]string{
	"id":         "id",
	"name":       "name",
	"created_at": "created_at",
	"is_locked":  "is_locked",
}

type taskRepository struct {
	baseRepository
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(exec core.DBExecutor) *taskRepository {
	return &taskRepository{baseRepository{exec: exec}}
}

func (repo taskRepository) CreateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	q := "INSERT INTO tasks (name, is_locked, created_at, modified_at) VALUES (?, ?, ?, ?) RETURNING id"
	id, err := insert(ctx, repo.getExec(exec), q, t.Name, t.IsLocked, t.CreatedAt.UTC(), t.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "tasks_name_key") {
			return task.Task{}, task.ErrDuplicateName
		}
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	t.ID = id
	return t, nil
}

func (repo taskRepository) TaskNameExists(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error) {
	found, err := exists(ctx, repo.getExec(exec), "SELECT 1 FROM tasks WHERE name = ?", name)
	if err != nil {
		return false, errors.Wrap(err, "checking task name")
	}
	return found, nil
}

func (repo taskRepository) GetTask(ctx context.Context, id int64, exec ...core.DBExecutor) (task.Task, error) {
	t, err := getOne[task.Task](ctx, repo.getExec(exec), "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if err != nil {
		return task.Task{}, trapNoRowsErr(err, task.ErrNotFound, "finding task")
	}
	return t, nil
}

func (repo taskRepository) QueryTasks(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]task.Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks ORDER BY " + core.OrderByClause(ordering, taskOrderColumns, "id ASC")
	tasks := make([]task.Task, 0)
	if err := selectAll(ctx, repo.getExec(exec), &tasks, q); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	return tasks, nil
}

func (repo taskRepository) UpdateTask(ctx context.Context, t task.Task, exec ...core.DBExecutor) (task.Task, error) {
	q := "UPDATE tasks SET name = ?, is_locked = ?, modified_at = ? WHERE id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, t.Name, t.IsLocked, t.ModifiedAt.UTC(), t.ID)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "updating task")
	}
	if n == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return t, nil
}

func (repo taskRepository) CreateQuestion(ctx context.Context, qst task.Question, exec ...core.DBExecutor) (task.Question, error) {
	q := `INSERT INTO questions (task_id, index, marks, description, excluded_from_total, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	id, err := insert(ctx, repo.getExec(exec), q,
		qst.TaskID, qst.Index, qst.Marks, nullString(qst.Description), qst.ExcludedFromTotal,
		qst.CreatedAt.UTC(), qst.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "questions_task_id_index_key") {
			return task.Question{}, task.ErrDuplicateIndex
		}
		return task.Question{}, errors.Wrap(err, "inserting question")
	}
	qst.ID = id
	return qst, nil
}

func (repo taskRepository) QuestionIndexExists(ctx context.Context, taskID int64, index int, exec ...core.DBExecutor) (bool, error) {
	found, err := exists(ctx, repo.getExec(exec), "SELECT 1 FROM questions WHERE task_id = ? AND index = ?", taskID, index)
	if err != nil {
		return false, errors.Wrap(err, "checking question index")
	}
	return found, nil
}

func (repo taskRepository) GetQuestion(ctx context.Context, id int64, exec ...core.DBExecutor) (task.Question, error) {
	qst, err := getOne[task.Question](ctx, repo.getExec(exec), "SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
	if err != nil {
		return task.Question{}, trapNoRowsErr(err, task.ErrQuestionNotFound, "finding question")
	}
	return qst, nil
}

func (repo taskRepository) QueryQuestions(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]task.Question, error) {
	q := "SELECT " + questionColumns + " FROM questions WHERE task_id = ? ORDER BY index, id"
	questions := make([]task.Question, 0)
	if err := selectAll(ctx, repo.getExec(exec), &questions, q, taskID); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	return questions, nil
}

func (repo taskRepository) CreateAssignment(ctx context.Context, ass task.Assignment, exec ...core.DBExecutor) (task.Assignment, error) {
	q := "INSERT INTO marker_assignments (" + assignmentColumns + ") VALUES (?, ?, ?, ?)"
	_, err := execAffected(ctx, repo.getExec(exec), q, ass.MarkerID, ass.QuestionID, ass.CreatedAt.UTC(), ass.ModifiedAt.UTC())
	if err != nil {
		if database.IsUniqueViolation(err, "marker_assignments_pkey") {
			return task.Assignment{}, task.ErrAlreadyAssigned
		}
		return task.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return ass, nil
}

func (repo taskRepository) GetAssignment(ctx context.Context, questionID, markerID int64, exec ...core.DBExecutor) (task.Assignment, error) {
	q := "SELECT " + assignmentColumns + " FROM marker_assignments WHERE question_id = ? AND marker_id = ?"
	ass, err := getOne[task.Assignment](ctx, repo.getExec(exec), q, questionID, markerID)
	if err != nil {
		return task.Assignment{}, trapNoRowsErr(err, task.ErrAssignmentNotFound, "finding assignment")
	}
	return ass, nil
}

func (repo taskRepository) QueryAssignments(ctx context.Context, questionIDs []int64, exec ...core.DBExecutor) ([]task.Assignment, error) {
	assignments := make([]task.Assignment, 0)
	if len(questionIDs) == 0 {
		return assignments, nil
	}
	q := "SELECT " + assignmentColumns + " FROM marker_assignments WHERE question_id IN (?) ORDER BY created_at, marker_id"
	if err := selectIn(ctx, repo.getExec(exec), &assignments, q, questionIDs); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	return assignments, nil
}

func (repo taskRepository) DeleteAssignment(ctx context.Context, questionID, markerID int64, exec ...core.DBExecutor) (int, error) {
	q := "DELETE FROM marker_assignments WHERE question_id = ? AND marker_id = ?"
	n, err := execAffected(ctx, repo.getExec(exec), q, questionID, markerID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting assignment")
	}
	return n, nil
}
