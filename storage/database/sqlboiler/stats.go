// Package boiledrepos implements the reporting queries with sqlboiler's query builder.
package boiledrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/marking"
)

var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
}

func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

type questionStatsRow struct {
	QuestionID int64        `boil:"question_id"`
	Count      int          `boil:"count"`
	Mean       null.Float64 `boil:"mean"`
	Min        null.Float64 `boil:"min"`
	Max        null.Float64 `boil:"max"`
}

type statsRepository struct {
	exec core.DBExecutor
}

var _ marking.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(exec core.DBExecutor) *statsRepository {
	return &statsRepository{exec: exec}
}

func (repo statsRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// QueryQuestionStats returns the marks statistics of every marked question of the task, by question index.
func (repo statsRepository) QueryQuestionStats(ctx context.Context, taskID int64, exec ...core.DBExecutor) ([]marking.QuestionStats, error) {
	var rows []questionStatsRow
	err := newQuery(
		qm.Select(
			"m.question_id AS question_id",
			"COUNT(*) AS count",
			"AVG(m.marks) AS mean",
			"MIN(m.marks) AS min",
			"MAX(m.marks) AS max",
		),
		qm.From("markings m"),
		qm.InnerJoin("answer_books b ON b.id = m.book_id"),
		qm.InnerJoin("questions q ON q.id = m.question_id"),
		qm.Where("b.task_id = ?", taskID),
		qm.GroupBy("m.question_id, q.index"),
		qm.OrderBy("q.index, m.question_id"),
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying question stats")
	}

	stats := make([]marking.QuestionStats, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, marking.QuestionStats{
			QuestionID: row.QuestionID,
			Count:      row.Count,
			Mean:       row.Mean.Float64,
			Min:        row.Min.Float64,
			Max:        row.Max.Float64,
		})
	}
	return stats, nil
}
