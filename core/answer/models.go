package answer

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/user"
)

// BooksFolder is the folder holding the files of every answer book, locally and on the mirror.
const BooksFolder = "answer_books"

type Book struct {
	ID          int64      `json:"id" db:"id"`
	TaskID      int64      `json:"task_id" db:"task_id"`
	StudentID   *int64     `json:"student_id" db:"student_id"`
	CreatorID   *int64     `json:"creator_id" db:"creator_id"`
	ModifierID  *int64     `json:"modifier_id" db:"modifier_id"`
	SubmittedAt *time.Time `json:"submitted_at" db:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt  time.Time  `json:"modified_at" db:"modified_at"`

	Student  *user.Mini `json:"student" db:"-"`
	Creator  *user.Mini `json:"creator,omitempty" db:"-"`
	Modifier *user.Mini `json:"modifier,omitempty" db:"-"`
	Pages    []Page     `json:"pages,omitempty" db:"-"`
}

// UserIDs returns the ids of the users referenced by b.
func (b Book) UserIDs() []int64 {
	ids := make([]int64, 0, 3)
	for _, id := range []*int64{b.StudentID, b.CreatorID, b.ModifierID} {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}

// MatchBook reports whether b matches the search key: its id or student id contains key,
// or its student name or nickname contains key (case-insensitive).
func MatchBook(b Book, key string) bool {
	keyLower := strings.ToLower(key)
	if strings.Contains(strconv.FormatInt(b.ID, 10), keyLower) {
		return true
	}
	if b.StudentID == nil {
		return false
	}
	if strings.Contains(strconv.FormatInt(*b.StudentID, 10), keyLower) {
		return true
	}
	if b.Student != nil {
		if strings.Contains(strings.ToLower(b.Student.Name), keyLower) {
			return true
		}
		if b.Student.Nickname != "" && strings.Contains(strings.ToLower(b.Student.Nickname), keyLower) {
			return true
		}
	}
	return false
}

type Page struct {
	ID         int64      `json:"id" db:"id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	Index      int        `json:"index" db:"index"`
	FilePath   string     `json:"file_path" db:"file_path"`
	FileIndex  *int       `json:"file_index" db:"file_index"` // page number inside a multi-page file
	Transform  string     `json:"transform" db:"transform"`
	CreatorID  *int64     `json:"creator_id" db:"creator_id"`
	ModifierID *int64     `json:"modifier_id" db:"modifier_id"`
	MirroredAt *time.Time `json:"mirrored_at" db:"mirrored_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ModifiedAt time.Time  `json:"modified_at" db:"modified_at"`
}

// RemotePath returns the path of a book file relative to the data folder (or the mirror bucket).
func RemotePath(bookID int64, name string) string {
	return path.Join(BooksFolder, strconv.FormatInt(bookID, 10), name)
}

type NewBook struct {
	StudentName string     `json:"student_name"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

func (nb *NewBook) Clean() {
	nb.StudentName = core.CleanString(nb.StudentName, true /* lower */)
}

type UpdateBook struct {
	StudentName string `json:"student_name"`
}

func (ub *UpdateBook) Clean() {
	ub.StudentName = core.CleanString(ub.StudentName, true /* lower */)
}

type UpdatePage struct {
	Index     *int    `json:"index"`
	Transform *string `json:"transform"`
}

func (up UpdatePage) Validate() error {
	if up.Index == nil {
		return ErrIndexRequired
	}
	if up.Transform != nil && len(*up.Transform) > 64 {
		return core.NewBasicError("transform is too long", "at most 64 characters")
	}
	return nil
}

// ImageOptions tells how uploaded images are processed before being stored as pages.
type ImageOptions struct {
	CutMiddle    bool `json:"cutMiddle"`    // split each image vertically in two halves
	DiscardFirst bool `json:"discardFirst"` // with CutMiddle: only keep the right half
	FitMaxHeight int  `json:"fitMaxHeight"` // scale down images taller than this
	FitMaxWidth  int  `json:"fitMaxWidth"`  // scale down images wider than this
}

// ParseImageOptions parses the `options` form value of an upload.
// It returns nil when no processing is requested (empty value or empty dict).
func ParseImageOptions(raw string) (*ImageOptions, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var dict interface{}
	if err := json.Unmarshal([]byte(raw), &dict); err != nil {
		return nil, core.NewBasicError("invalid options format", err.Error())
	}
	m, ok := dict.(map[string]interface{})
	if !ok {
		return nil, core.NewBasicError("invalid options format", "options must be a dict")
	}
	if len(m) == 0 {
		return nil, nil
	}

	opts := new(ImageOptions)
	if err := json.Unmarshal([]byte(raw), opts); err != nil {
		return nil, core.NewBasicError("invalid options format", err.Error())
	}
	if opts.FitMaxHeight < 0 || opts.FitMaxWidth < 0 {
		return nil, core.NewBasicError("invalid options format", "fit sizes must be positive")
	}
	return opts, nil
}

// Upload is an uploaded answer file.
type Upload struct {
	Filename string
	Content  []byte
}

// MirrorJob asks for a book file to be copied to (or removed from) the mirror.
type MirrorJob struct {
	BookID   int64
	FilePath string
	Delete   bool
}
