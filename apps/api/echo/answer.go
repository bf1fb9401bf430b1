package echoapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
)

const (
	contextBookKey = "book"
	contextPageKey = "page"
)

func (s *Server) registerAnswerAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	ag := g.Group("/answers", jwt)

	bg := ag.Group("/books/:id", s.bookMiddleware)
	bg.GET("", s.retrieveBook)
	bg.PUT("", s.updateBook)
	bg.DELETE("", s.deleteBook)
	bg.GET("/next", s.goToBook(true))
	bg.GET("/prev", s.goToBook(false))
	bg.POST("/pages", s.uploadPages)
	bg.GET("/files/*", s.bookFile)
	bg.GET("/cover", s.coverSheet)
	bg.POST("/markings", s.createMarking)
	bg.POST("/comments", s.createComment)

	pg := ag.Group("/pages/:id", s.pageMiddleware)
	pg.GET("", s.retrievePage)
	pg.PUT("", s.updatePage)
	pg.DELETE("", s.deletePage)
	pg.POST("/annotations", s.createAnnotation)
}

func (s *Server) bookMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}
		b, err := s.deps.AnswerSvc.GetBook(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "getting book")
		}
		ctx.Set(contextBookKey, b)
		return next(ctx)
	}
}

func contextBook(ctx echo.Context) answer.Book {
	b, _ := ctx.Get(contextBookKey).(answer.Book)
	return b
}

func (s *Server) pageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}
		p, err := s.deps.AnswerSvc.GetPage(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "getting page")
		}
		ctx.Set(contextPageKey, p)
		return next(ctx)
	}
}

func contextPage(ctx echo.Context) answer.Page {
	p, _ := ctx.Get(contextPageKey).(answer.Page)
	return p
}

func (s *Server) retrieveBook(ctx echo.Context) error {
	detail, err := s.deps.MarkingSvc.GetBookDetail(ctx.Request().Context(), contextBook(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting book detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) updateBook(ctx echo.Context) error {
	var data answer.UpdateBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBook")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	b, err := s.deps.AnswerSvc.UpdateBook(reqCtx, contextBook(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "updating book")
	}
	detail, err := s.deps.MarkingSvc.GetBookDetail(reqCtx, b.ID)
	if err != nil {
		return errors.Wrap(err, "getting book detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) deleteBook(ctx echo.Context) error {
	if _, err := s.deps.AnswerSvc.DeleteBook(ctx.Request().Context(), contextBook(ctx)); err != nil {
		return errors.Wrap(err, "deleting book")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) goToBook(next bool) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		b, ok, err := s.deps.AnswerSvc.GoToBook(ctx.Request().Context(), contextBook(ctx), next)
		if err != nil {
			return errors.Wrap(err, "going to book")
		}
		if !ok {
			return ctx.NoContent(http.StatusNoContent)
		}
		return ctx.JSON(http.StatusOK, b)
	}
}

// uploads reads the `file` parts of a multipart request.
func uploads(ctx echo.Context) ([]answer.Upload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		if err == http.ErrNotMultipart {
			return nil, answer.ErrFileRequired
		}
		return nil, errors.Wrap(err, "parsing multipart form")
	}

	files := form.File["file"]
	ups := make([]answer.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", fh.Filename)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", fh.Filename)
		}
		ups = append(ups, answer.Upload{Filename: fh.Filename, Content: content})
	}
	return ups, nil
}

func (s *Server) uploadPages(ctx echo.Context) error {
	ups, err := uploads(ctx)
	if err != nil {
		return err
	}
	opts, err := answer.ParseImageOptions(ctx.FormValue("options"))
	if err != nil {
		return err
	}
	var index *int
	if raw := strings.TrimSpace(ctx.FormValue("index")); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return core.NewBasicError("invalid index", err.Error())
		}
		index = &idx
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	pages, err := s.deps.AnswerSvc.AddPages(ctx.Request().Context(), contextBook(ctx), ups, opts, index, usr)
	if err != nil {
		return errors.Wrap(err, "adding pages")
	}
	details := make([]marking.PageDetail, 0, len(pages))
	for _, p := range pages {
		details = append(details, marking.PageDetail{Page: p, Annotations: []marking.Annotation{}})
	}
	return ctx.JSON(http.StatusCreated, details)
}

// bookFile redirects to the mirror when the file has been mirrored, and serves the local copy otherwise.
func (s *Server) bookFile(ctx echo.Context) error {
	b := contextBook(ctx)
	name := ctx.Param("*")

	if s.deps.Mirror != nil {
		pages, err := s.deps.AnswerSvc.GetPages(ctx.Request().Context(), b.ID)
		if err != nil {
			return errors.Wrap(err, "getting pages")
		}
		for _, p := range pages {
			if p.FilePath == name && p.MirroredAt != nil {
				return ctx.Redirect(http.StatusFound, s.deps.Mirror.URL(answer.RemotePath(b.ID, name)))
			}
		}
	}

	path, err := s.deps.AnswerSvc.LocalFile(b, name)
	if err != nil {
		return errors.Wrap(err, "getting local file")
	}
	return ctx.File(path)
}

func (s *Server) coverSheet(ctx echo.Context) error {
	b := contextBook(ctx)
	t, err := s.deps.TaskSvc.GetByID(ctx.Request().Context(), b.TaskID)
	if err != nil {
		return errors.Wrap(err, "getting task")
	}

	var buf bytes.Buffer
	if err = s.deps.Reporter.CoverSheet(&buf, t, b); err != nil {
		return errors.Wrap(err, "rendering cover sheet")
	}
	return pdfBlob(ctx, fmt.Sprintf("book-%d-cover.pdf", b.ID), buf.Bytes())
}

func (s *Server) createMarking(ctx echo.Context) error {
	var data marking.NewMarking
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMarking")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	m, err := s.deps.MarkingSvc.AddMarking(ctx.Request().Context(), contextBook(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "adding marking")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (s *Server) createComment(ctx echo.Context) error {
	var data marking.CommentContent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CommentContent")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	c, err := s.deps.MarkingSvc.AddComment(ctx.Request().Context(), contextBook(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (s *Server) retrievePage(ctx echo.Context) error {
	detail, err := s.deps.MarkingSvc.GetPageDetail(ctx.Request().Context(), contextPage(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting page detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) updatePage(ctx echo.Context) error {
	var data answer.UpdatePage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePage")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	p, err := s.deps.AnswerSvc.UpdatePage(reqCtx, contextPage(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "updating page")
	}
	detail, err := s.deps.MarkingSvc.GetPageDetail(reqCtx, p.ID)
	if err != nil {
		return errors.Wrap(err, "getting page detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (s *Server) deletePage(ctx echo.Context) error {
	if _, err := s.deps.AnswerSvc.DeletePage(ctx.Request().Context(), contextPage(ctx)); err != nil {
		return errors.Wrap(err, "deleting page")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) createAnnotation(ctx echo.Context) error {
	var data marking.AnnotationData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnnotationData")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	a, err := s.deps.MarkingSvc.AddAnnotation(ctx.Request().Context(), contextPage(ctx), data, usr)
	if err != nil {
		return errors.Wrap(err, "adding annotation")
	}
	return ctx.JSON(http.StatusCreated, a)
}
