package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/markit/core/marking"
)

func (s *Server) registerMarkingAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	mg := g.Group("/markings", jwt)
	mg.PUT("/:id", s.updateMarking)
	mg.PUT("/annotations/:id", s.updateAnnotation)
	mg.DELETE("/annotations/:id", s.deleteAnnotation)
	mg.PUT("/comments/:id", s.updateComment)
	mg.DELETE("/comments/:id", s.deleteComment)
}

func (s *Server) updateMarking(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data marking.UpdateMarking
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMarking")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	m, err := s.deps.MarkingSvc.GetMarking(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting marking")
	}
	if m, err = s.deps.MarkingSvc.UpdateMarking(reqCtx, m, data, usr); err != nil {
		return errors.Wrap(err, "updating marking")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (s *Server) updateAnnotation(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data marking.AnnotationData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnnotationData")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	a, err := s.deps.MarkingSvc.GetAnnotation(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting annotation")
	}
	if a, err = s.deps.MarkingSvc.UpdateAnnotation(reqCtx, a, data, usr); err != nil {
		return errors.Wrap(err, "updating annotation")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (s *Server) deleteAnnotation(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	a, err := s.deps.MarkingSvc.GetAnnotation(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting annotation")
	}
	if err = s.deps.MarkingSvc.DeleteAnnotation(reqCtx, a, usr); err != nil {
		return errors.Wrap(err, "deleting annotation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *Server) updateComment(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data marking.CommentContent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CommentContent")
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	c, err := s.deps.MarkingSvc.GetComment(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting comment")
	}
	if c, err = s.deps.MarkingSvc.UpdateComment(reqCtx, c, data, usr); err != nil {
		return errors.Wrap(err, "updating comment")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) deleteComment(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := s.contextUser(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	c, err := s.deps.MarkingSvc.GetComment(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting comment")
	}
	if err = s.deps.MarkingSvc.DeleteComment(reqCtx, c, usr); err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}
