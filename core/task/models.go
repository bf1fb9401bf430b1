package task

import (
	"time"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
)

type Task struct {
	ID         int64      `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	IsLocked   bool       `json:"is_locked" db:"is_locked"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`   // UTC
	ModifiedAt time.Time  `json:"modified_at" db:"modified_at"` // UTC
	Questions  []Question `json:"questions,omitempty" db:"-"`
}

// QuestionByID returns the question of t with the given id.
func (t Task) QuestionByID(id int64) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Question struct {
	ID                int64        `json:"id" db:"id"`
	TaskID            int64        `json:"task_id" db:"task_id"`
	Index             int          `json:"index" db:"index"`
	Marks             float64      `json:"marks" db:"marks"`
	Description       string       `json:"description" db:"description"`
	ExcludedFromTotal bool         `json:"excluded_from_total" db:"excluded_from_total"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	ModifiedAt        time.Time    `json:"modified_at" db:"modified_at"`
	MarkerAssignments []Assignment `json:"marker_assignments,omitempty" db:"-"`
}

// IsAssigned reports whether the marker is assigned to q. Only meaningful on detailed questions.
func (q Question) IsAssigned(markerID int64) bool {
	for _, ass := range q.MarkerAssignments {
		if ass.MarkerID == markerID {
			return true
		}
	}
	return false
}

// Assignment assigns a marker to a question.
type Assignment struct {
	MarkerID   int64      `json:"marker_id" db:"marker_id"`
	QuestionID int64      `json:"question_id" db:"question_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt time.Time  `json:"modified_at" db:"modified_at"`
	Marker     *user.Mini `json:"marker,omitempty" db:"-"`
}

type NewTask struct {
	Name string `json:"name"`
}

func (nt *NewTask) Validate() error {
	nt.Name = core.CleanString(nt.Name)
	if nt.Name == "" {
		return ErrNameRequired
	}
	if len(nt.Name) > 64 {
		return core.NewBasicError("name is too long", "at most 64 characters")
	}
	return nil
}

type NewQuestion struct {
	Index             *int     `json:"index" yaml:"index"`
	Marks             *float64 `json:"marks" yaml:"marks"`
	Description       string   `json:"description" yaml:"description"`
	ExcludedFromTotal bool     `json:"excluded_from_total" yaml:"excluded_from_total"`
}

func (nq *NewQuestion) Validate() error {
	if nq.Index == nil {
		return ErrIndexRequired
	}
	if nq.Marks == nil {
		return ErrMarksRequired
	}
	nq.Description = core.CleanString(nq.Description)
	return nil
}

// AssignmentRequest identifies a question of a task and a marker.
type AssignmentRequest struct {
	QuestionID int64 `json:"qid"`
	MarkerID   int64 `json:"mid"`
}

func (ar AssignmentRequest) Validate() error {
	if ar.QuestionID == 0 {
		return core.NewBasicError("question is required")
	}
	if ar.MarkerID == 0 {
		return core.NewBasicError("marker is required")
	}
	return nil
}

// Manifest describes a whole task to import: its questions and their markers (by user name).
type Manifest struct {
	Name      string             `yaml:"name"`
	Questions []ManifestQuestion `yaml:"questions"`
}

type ManifestQuestion struct {
	NewQuestion `yaml:",inline"`
	Markers     []string `yaml:"markers"`
}
