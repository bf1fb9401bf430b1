package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	"github.com/trezcool/markit/core/user"
)

const contextTaskKey = "task"

func (s *Server) registerTaskAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	tg := g.Group("/tasks", jwt)
	tg.GET("", s.listTasks)

	dg := tg.Group("/:id", s.taskMiddleware)
	dg.GET("", s.retrieveTask)
	dg.GET("/answer-books", s.listTaskBooks)
	dg.POST("/answer-books", s.createTaskBook)
	dg.GET("/export-markings", s.exportMarkings)
	dg.GET("/report", s.marksReport)
	dg.GET("/summary", s.taskSummary)

	ag := g.Group("/admin/tasks", jwt, adminMiddleware())
	ag.POST("", s.createTask)

	adg := ag.Group("/:id", s.taskMiddleware)
	adg.POST("/questions", s.createQuestion)
	adg.POST("/assignments", s.createAssignment)
	adg.DELETE("/assignments", s.deleteAssignment)
	adg.PUT("/lock", s.lockTask)
	adg.DELETE("/lock", s.unlockTask)
}

// taskMiddleware loads the detailed task of the `id` path param.
func (s *Server) taskMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}
		t, err := s.deps.TaskSvc.GetDetail(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "getting task")
		}
		ctx.Set(contextTaskKey, t)
		return next(ctx)
	}
}

func contextTask(ctx echo.Context) task.Task {
	t, _ := ctx.Get(contextTaskKey).(task.Task)
	return t
}

func (s *Server) listTasks(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tasks, err := s.deps.TaskSvc.GetAll(ctx.Request().Context(), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (s *Server) retrieveTask(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, contextTask(ctx))
}

func (s *Server) listTaskBooks(ctx echo.Context) error {
	var pq PageQuery
	if err := ctx.Bind(&pq); err != nil {
		return errors.Wrap(err, "binding to PageQuery")
	}

	t := contextTask(ctx)
	books, err := s.deps.MarkingSvc.ListBookSummaries(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "listing books")
	}

	page, err := paginateBooks(books, marking.ExcludedQuestions(t), pq)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, page)
}

func (s *Server) createTaskBook(ctx echo.Context) error {
	var data answer.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	b, err := s.deps.AnswerSvc.AddBook(ctx.Request().Context(), contextTask(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "adding book")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (s *Server) exportMarkings(ctx echo.Context) error {
	sheet, err := s.deps.MarkingSvc.Sheet(ctx.Request().Context(), contextTask(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building marking sheet")
	}

	var buf bytes.Buffer
	if err = sheet.WriteTSV(&buf); err != nil {
		return errors.Wrap(err, "writing marking sheet")
	}
	return ctx.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

func (s *Server) marksReport(ctx echo.Context) error {
	t := contextTask(ctx)
	reqCtx := ctx.Request().Context()

	sheet, err := s.deps.MarkingSvc.Sheet(reqCtx, t.ID)
	if err != nil {
		return errors.Wrap(err, "building marking sheet")
	}
	summary, err := s.deps.MarkingSvc.Summary(reqCtx, t.ID)
	if err != nil {
		return errors.Wrap(err, "building summary")
	}

	var buf bytes.Buffer
	if err = s.deps.Reporter.MarksReport(&buf, t, sheet, summary); err != nil {
		return errors.Wrap(err, "rendering marks report")
	}
	return pdfBlob(ctx, fmt.Sprintf("task-%d-report.pdf", t.ID), buf.Bytes())
}

func pdfBlob(ctx echo.Context, filename string, content []byte) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", filename))
	return ctx.Blob(http.StatusOK, "application/pdf", content)
}

func (s *Server) taskSummary(ctx echo.Context) error {
	summary, err := s.deps.MarkingSvc.Summary(ctx.Request().Context(), contextTask(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "building summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (s *Server) createTask(ctx echo.Context) error {
	var data task.NewTask
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	t, err := s.deps.TaskSvc.Add(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (s *Server) createQuestion(ctx echo.Context) error {
	var data task.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	q, err := s.deps.TaskSvc.AddQuestion(ctx.Request().Context(), contextTask(ctx), data)
	if err != nil {
		return errors.Wrap(err, "adding question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

// assignmentTarget resolves the question and the marker of an assignment request.
func (s *Server) assignmentTarget(ctx echo.Context) (task.Question, user.User, error) {
	var data task.AssignmentRequest
	if err := ctx.Bind(&data); err != nil {
		return task.Question{}, user.User{}, errors.Wrap(err, "binding to AssignmentRequest")
	}
	if err := data.Validate(); err != nil {
		return task.Question{}, user.User{}, err
	}

	reqCtx := ctx.Request().Context()
	q, err := s.deps.TaskSvc.GetQuestion(reqCtx, data.QuestionID)
	if err != nil {
		return task.Question{}, user.User{}, errors.Wrap(err, "getting question")
	}
	marker, err := s.deps.UserSvc.GetByID(reqCtx, data.MarkerID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return task.Question{}, user.User{}, task.ErrMarkerNotFound
		}
		return task.Question{}, user.User{}, errors.Wrap(err, "getting marker")
	}
	return q, marker, nil
}

func (s *Server) createAssignment(ctx echo.Context) error {
	q, marker, err := s.assignmentTarget(ctx)
	if err != nil {
		return err
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	ass, err := s.deps.TaskSvc.AddAssignment(ctx.Request().Context(), contextTask(ctx), q, marker, usr)
	if err != nil {
		return errors.Wrap(err, "adding assignment")
	}
	return ctx.JSON(http.StatusCreated, ass)
}

func (s *Server) deleteAssignment(ctx echo.Context) error {
	q, marker, err := s.assignmentTarget(ctx)
	if err != nil {
		return err
	}
	if err = s.deps.TaskSvc.DeleteAssignment(ctx.Request().Context(), contextTask(ctx), q, marker); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) lockTask(ctx echo.Context) error {
	t, err := s.deps.TaskSvc.Lock(ctx.Request().Context(), contextTask(ctx))
	if err != nil {
		return errors.Wrap(err, "locking task")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (s *Server) unlockTask(ctx echo.Context) error {
	t, err := s.deps.TaskSvc.Unlock(ctx.Request().Context(), contextTask(ctx))
	if err != nil {
		return errors.Wrap(err, "unlocking task")
	}
	return ctx.JSON(http.StatusOK, t)
}
