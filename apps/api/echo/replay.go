package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/enroll"
	"github.com/darasahq/darasa/core/replay"
	"github.com/darasahq/darasa/core/script"
)

var errBadPosition = echo.NewHTTPError(http.StatusBadRequest, "position must be a non-negative integer")

type replayApi struct {
	replaySvc *replay.Service
	enrollSvc *enroll.Service
}

func registerReplayAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	replaySvc *replay.Service,
	enrollSvc *enroll.Service,
) {
	api := replayApi{
		replaySvc: replaySvc,
		enrollSvc: enrollSvc,
	}

	// un-authed endpoints
	g.POST("/enrollments", api.optIn)

	// authed endpoints: viewer session token required
	rg := g.Group("/replay", jwt)
	rg.GET("/chat", api.chat)
	rg.GET("/history", api.history)
}

// Handlers

// optIn creates an enrollment (the day-zero anchor for every day-keyed script)
// and issues the viewer session token used by the replay endpoints.
func (api *replayApi) optIn(ctx echo.Context) error {
	var data enroll.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	enr, err := api.enrollSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating enrollment")
	}

	token, err := makeToken(GetSessionClaims(enr))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, echo.Map{
		"enrollment": enr,
		"token":      token,
	})
}

// chat returns the chat events newly due at the playback position for this
// viewer. Calling again with the same position is a no-op: delivery is
// recorded per (viewer, entry).
func (api *replayApi) chat(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	position, err := strconv.Atoi(ctx.QueryParam("position"))
	if err != nil || position < 0 {
		return errBadPosition
	}

	events, err := api.replaySvc.ReplayChat(
		ctx.Request().Context(),
		claims.Subject,
		position,
		api.renderContext(ctx, claims),
		0,
	)
	if err != nil {
		return errors.Wrap(err, "replaying chat")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"events": events})
}

// history repaints everything this viewer has already seen, in firing order.
func (api *replayApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	events, err := api.replaySvc.History(
		ctx.Request().Context(),
		claims.Subject,
		api.renderContext(ctx, claims),
		0,
	)
	if err != nil {
		return errors.Wrap(err, "querying replay history")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"events": events})
}

// renderContext assembles the placeholder values known at request time.
// lessonsLeft/moduleNumber come from the host page, which knows the viewer's
// curriculum position.
func (api *replayApi) renderContext(ctx echo.Context, claims *Claims) replay.RenderContext {
	rctx := replay.RenderContext{script.TokenFirstName: claims.FirstName}
	if v := ctx.QueryParam("lessons_left"); v != "" {
		rctx[script.TokenLessonsLeft] = v
	}
	if v := ctx.QueryParam("module"); v != "" {
		rctx[script.TokenModuleNumber] = v
	}
	return rctx
}
