// Package inmemdb keeps the repositories in memory. Used by service tests and demos;
// the DB executors passed to its repositories are ignored.
package inmemdb

import (
	"database/sql"
	"database/sql/driver"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

type (
	DB struct {
		user       *table[user.User]
		task       *table[task.Task]
		question   *table[task.Question]
		assignment *table[task.Assignment]
		book       *table[answer.Book]
		page       *table[answer.Page]
		marking    *table[marking.Marking]
		annotation *table[marking.Annotation]
		comment    *table[marking.Comment]

		conn     *sql.DB
		connOnce sync.Once
	}

	table[T any] struct {
		rows  map[int64]*T
		pk    int64
		mutex sync.RWMutex
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[int64]*T)}
}

func Open() *DB {
	return &DB{
		user:       newTable[user.User](),
		task:       newTable[task.Task](),
		question:   newTable[task.Question](),
		assignment: newTable[task.Assignment](),
		book:       newTable[answer.Book](),
		page:       newTable[answer.Page](),
		marking:    newTable[marking.Marking](),
		annotation: newTable[marking.Annotation](),
		comment:    newTable[marking.Comment](),
	}
}

// nextPK must be called with the write lock held.
func (t *table[T]) nextPK() int64 {
	t.pk++
	return t.pk
}

// sorted returns a copy of the rows matching keep, ordered by primary key.
// It must be called with a lock held.
func (t *table[T]) sorted(keep func(T) bool) []T {
	ids := make([]int64, 0, len(t.rows))
	for id, row := range t.rows {
		if keep == nil || keep(*row) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.rows[id])
	}
	return out
}

func int64Set(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Conn returns a database handle whose transactions do nothing,
// for services that open transactions around inmem repositories.
func (db *DB) Conn() *sql.DB {
	db.connOnce.Do(func() {
		// sql.Open only fails on unknown drivers
		db.conn, _ = sql.Open(nopDriverName, "")
	})
	return db.conn
}

const nopDriverName = "markit-inmem"

func init() {
	sql.Register(nopDriverName, nopDriver{})
}

type (
	nopDriver struct{}
	nopConn   struct{}
	nopTx     struct{}
)

var errNotSupported = errors.New("inmemdb: statements are not supported")

func (nopDriver) Open(string) (driver.Conn, error) { return nopConn{}, nil }

func (nopConn) Prepare(string) (driver.Stmt, error) { return nil, errNotSupported }
func (nopConn) Close() error                        { return nil }
func (nopConn) Begin() (driver.Tx, error)           { return nopTx{}, nil }

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
