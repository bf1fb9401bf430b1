package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/task"
)

type taskRepository struct {
	tasks       *table[task.Task]
	questions   *table[task.Question]
	assignments *table[task.Assignment]
}

var _ task.Repository = (*taskRepository)(nil)

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{tasks: db.task, questions: db.question, assignments: db.assignment}
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task, _ ...core.DBExecutor) (task.Task, error) {
	repo.tasks.mutex.Lock()
	defer repo.tasks.mutex.Unlock()

	for _, row := range repo.tasks.rows {
		if row.Name == t.Name {
			return task.Task{}, task.ErrDuplicateName
		}
	}
	t.ID = repo.tasks.nextPK()
	t.Questions = nil
	repo.tasks.rows[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) TaskNameExists(_ context.Context, name string, _ ...core.DBExecutor) (bool, error) {
	repo.tasks.mutex.RLock()
	defer repo.tasks.mutex.RUnlock()

	for _, row := range repo.tasks.rows {
		if row.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (repo *taskRepository) GetTask(_ context.Context, id int64, _ ...core.DBExecutor) (task.Task, error) {
	repo.tasks.mutex.RLock()
	defer repo.tasks.mutex.RUnlock()

	if t, ok := repo.tasks.rows[id]; ok {
		return *t, nil
	}
	return task.Task{}, task.ErrNotFound
}

func (repo *taskRepository) QueryTasks(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]task.Task, error) {
	repo.tasks.mutex.RLock()
	defer repo.tasks.mutex.RUnlock()

	tasks := repo.tasks.sorted(nil)
	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		var less func(a, b task.Task) bool
		switch ord.Field {
		case "name":
			less = func(a, b task.Task) bool { return a.Name < b.Name }
		case "created_at":
			less = func(a, b task.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
		default:
			continue
		}
		sort.SliceStable(tasks, func(i, j int) bool {
			if ord.Ascending {
				return less(tasks[i], tasks[j])
			}
			return less(tasks[j], tasks[i])
		})
	}
	return tasks, nil
}

func (repo *taskRepository) UpdateTask(_ context.Context, t task.Task, _ ...core.DBExecutor) (task.Task, error) {
	repo.tasks.mutex.Lock()
	defer repo.tasks.mutex.Unlock()

	if _, ok := repo.tasks.rows[t.ID]; !ok {
		return task.Task{}, task.ErrNotFound
	}
	t.Questions = nil
	repo.tasks.rows[t.ID] = &t
	return t, nil
}

func (repo *taskRepository) CreateQuestion(_ context.Context, q task.Question, _ ...core.DBExecutor) (task.Question, error) {
	repo.questions.mutex.Lock()
	defer repo.questions.mutex.Unlock()

	for _, row := range repo.questions.rows {
		if row.TaskID == q.TaskID && row.Index == q.Index {
			return task.Question{}, task.ErrDuplicateIndex
		}
	}
	q.ID = repo.questions.nextPK()
	q.MarkerAssignments = nil
	repo.questions.rows[q.ID] = &q
	return q, nil
}

func (repo *taskRepository) QuestionIndexExists(_ context.Context, taskID int64, index int, _ ...core.DBExecutor) (bool, error) {
	repo.questions.mutex.RLock()
	defer repo.questions.mutex.RUnlock()

	for _, row := range repo.questions.rows {
		if row.TaskID == taskID && row.Index == index {
			return true, nil
		}
	}
	return false, nil
}

func (repo *taskRepository) GetQuestion(_ context.Context, id int64, _ ...core.DBExecutor) (task.Question, error) {
	repo.questions.mutex.RLock()
	defer repo.questions.mutex.RUnlock()

	if q, ok := repo.questions.rows[id]; ok {
		return *q, nil
	}
	return task.Question{}, task.ErrQuestionNotFound
}

func (repo *taskRepository) QueryQuestions(_ context.Context, taskID int64, _ ...core.DBExecutor) ([]task.Question, error) {
	repo.questions.mutex.RLock()
	defer repo.questions.mutex.RUnlock()

	questions := repo.questions.sorted(func(q task.Question) bool { return q.TaskID == taskID })
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Index < questions[j].Index })
	return questions, nil
}

func (repo *taskRepository) CreateAssignment(_ context.Context, ass task.Assignment, _ ...core.DBExecutor) (task.Assignment, error) {
	repo.assignments.mutex.Lock()
	defer repo.assignments.mutex.Unlock()

	for _, row := range repo.assignments.rows {
		if row.QuestionID == ass.QuestionID && row.MarkerID == ass.MarkerID {
			return task.Assignment{}, task.ErrAlreadyAssigned
		}
	}
	ass.Marker = nil
	repo.assignments.rows[repo.assignments.nextPK()] = &ass
	return ass, nil
}

func (repo *taskRepository) GetAssignment(_ context.Context, questionID, markerID int64, _ ...core.DBExecutor) (task.Assignment, error) {
	repo.assignments.mutex.RLock()
	defer repo.assignments.mutex.RUnlock()

	for _, row := range repo.assignments.rows {
		if row.QuestionID == questionID && row.MarkerID == markerID {
			return *row, nil
		}
	}
	return task.Assignment{}, task.ErrAssignmentNotFound
}

func (repo *taskRepository) QueryAssignments(_ context.Context, questionIDs []int64, _ ...core.DBExecutor) ([]task.Assignment, error) {
	repo.assignments.mutex.RLock()
	defer repo.assignments.mutex.RUnlock()

	set := int64Set(questionIDs)
	return repo.assignments.sorted(func(ass task.Assignment) bool { return set[ass.QuestionID] }), nil
}

func (repo *taskRepository) DeleteAssignment(_ context.Context, questionID, markerID int64, _ ...core.DBExecutor) (int, error) {
	repo.assignments.mutex.Lock()
	defer repo.assignments.mutex.Unlock()

	n := 0
	for pk, row := range repo.assignments.rows {
		if row.QuestionID == questionID && row.MarkerID == markerID {
			delete(repo.assignments.rows, pk)
			n++
		}
	}
	return n, nil
}
