package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"gumboard-api/domain"
)

var errEmptyBody = errors.New("empty body")

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.GET("/api/boards/:boardId/notes/:noteId", getNote(d))
	e.PUT("/api/boards/:boardId/notes/:noteId", putNote(d))
	e.POST("/api/boards/:boardId/notes", postNote(d))
	e.POST("/api/boards/:boardId/notes/:noteId/checklist/:itemId/split", postSplit(d))
	e.POST("/api/boards/:boardId/notes/:noteId/tasks", postTask(d))
	e.GET("/healthz", healthz(d.Health))
}

func healthz(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := p.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func getNote(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := d.Auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		note, err := d.Notes.GetNote(c.Request().Context(), c.Param("boardId"), c.Param("noteId"))
		if err != nil {
			status := statusForError(err)
			if status >= http.StatusInternalServerError {
				d.Logger.WithError(err).Error("get note failed")
			}
			return c.JSON(status, errorResponse{Error: publicMessage(status, err)})
		}
		return c.JSON(http.StatusOK, noteResponse{Note: note})
	}
}

func putNote(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := beginRequest(c, d.Logger, opUpdateNote)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		actor, ok, err := authenticate(ctx, c, d, metrics)
		if !ok {
			return err
		}

		var in domain.UpdateNoteInput
		if ok, err := decodeInto(c, metrics, noteBodyMaxSize, &in); !ok {
			return err
		}
		if in.Checklist != nil {
			metrics.SetItems(len(*in.Checklist))
		}

		serviceStart := time.Now()
		note, cs, svcErr := d.Service.UpdateNote(ctx, actor.ID, c.Param("boardId"), c.Param("noteId"), in)
		metrics.ObserveService(time.Since(serviceStart))
		if svcErr != nil {
			return respondError(c, d.Logger, metrics, svcErr)
		}
		metrics.SetChanges(cs)

		return encode(c, metrics, http.StatusOK, noteResponse{Note: note})
	}
}

func postNote(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := beginRequest(c, d.Logger, opCreateNote)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		actor, ok, err := authenticate(ctx, c, d, metrics)
		if !ok {
			return err
		}

		var in domain.CreateNoteInput
		if ok, err := decodeInto(c, metrics, noteBodyMaxSize, &in); !ok {
			return err
		}
		metrics.SetItems(len(in.Checklist))

		serviceStart := time.Now()
		note, svcErr := d.Service.CreateNote(ctx, actor.ID, c.Param("boardId"), in)
		metrics.ObserveService(time.Since(serviceStart))
		if svcErr != nil {
			return respondError(c, d.Logger, metrics, svcErr)
		}

		return encode(c, metrics, http.StatusCreated, noteResponse{Note: note})
	}
}

func postSplit(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := beginRequest(c, d.Logger, opSplitItem)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		actor, ok, err := authenticate(ctx, c, d, metrics)
		if !ok {
			return err
		}

		var req splitRequest
		if ok, err := decodeInto(c, metrics, commandBodyMaxSize, &req); !ok {
			return err
		}
		if req.Cursor == nil {
			metrics.Fail("decode", nil)
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "cursor is required"})
		}

		serviceStart := time.Now()
		note, res, svcErr := d.Service.SplitItem(ctx, actor.ID, c.Param("boardId"), c.Param("noteId"), c.Param("itemId"), *req.Cursor)
		metrics.ObserveService(time.Since(serviceStart))
		if svcErr != nil {
			return respondError(c, d.Logger, metrics, svcErr)
		}
		metrics.SetItems(len(note.ChecklistItems))

		return encode(c, metrics, http.StatusOK, splitResponse{Note: note, Original: res.Original, Created: res.Created})
	}
}

func postTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := beginRequest(c, d.Logger, opTaskCommand)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		actor, ok, err := authenticate(ctx, c, d, metrics)
		if !ok {
			return err
		}

		var cmd domain.TaskCommand
		if ok, err := decodeInto(c, metrics, commandBodyMaxSize, &cmd); !ok {
			return err
		}

		serviceStart := time.Now()
		note, svcErr := d.Service.ApplyTaskCommand(ctx, actor.ID, c.Param("boardId"), c.Param("noteId"), cmd)
		metrics.ObserveService(time.Since(serviceStart))
		if svcErr != nil {
			return respondError(c, d.Logger, metrics, svcErr)
		}
		metrics.SetItems(len(note.ChecklistItems))

		return encode(c, metrics, http.StatusOK, noteResponse{Note: note})
	}
}

func beginRequest(c echo.Context, logger *log.Logger, op requestOp) (*requestMetrics, context.Context) {
	metrics, ctx := newRequestMetrics(c.Request().Context(), logger, op)
	c.SetRequest(c.Request().WithContext(ctx))
	return metrics, ctx
}

// authenticate resolves the actor. When ok is false the response has been
// written and err is what the handler should return.
func authenticate(ctx context.Context, c echo.Context, d Deps, metrics *requestMetrics) (domain.User, bool, error) {
	authStart := time.Now()
	actor, authErr := d.Auth.ActorFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.Fail("auth", authErr)
		return domain.User{}, false, c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
	}
	if d.Users != nil && (actor.Name != "" || actor.Email != "") {
		if err := d.Users.EnsureUser(ctx, actor); err != nil {
			d.Logger.WithError(err).WithField("user", actor.ID).Warn("record actor profile failed")
		}
	}
	return actor, true, nil
}

func decodeInto(c echo.Context, metrics *requestMetrics, limit int64, dst any) (bool, error) {
	decodeStart := time.Now()
	decErr := decodeBody(c.Request().Body, limit, dst)
	metrics.ObserveDecode(time.Since(decodeStart))
	if decErr == nil {
		return true, nil
	}
	metrics.Fail("decode", decErr)
	if errors.Is(decErr, errBodyTooLarge) {
		return false, c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
	}
	return false, c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
}

// decodeBody reads at most limit bytes of JSON into dst. Unknown fields are
// rejected.
func decodeBody(body io.Reader, limit int64, dst any) error {
	if body == nil {
		return errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > limit {
		return errBodyTooLarge
	}
	if len(data) == 0 {
		return errEmptyBody
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func encode(c echo.Context, metrics *requestMetrics, status int, body any) error {
	encodeStart := time.Now()
	err := c.JSON(status, body)
	metrics.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		metrics.Fail("encode_response", err)
	}
	return err
}

func respondError(c echo.Context, logger *log.Logger, metrics *requestMetrics, err error) error {
	status := statusForError(err)
	switch status {
	case http.StatusBadRequest:
		metrics.Fail("validation", err)
	case http.StatusNotFound:
		metrics.Fail("not_found", err)
	default:
		metrics.Fail("service", err)
		logger.WithError(err).Error("checklist request failed")
	}
	return c.JSON(status, errorResponse{Error: publicMessage(status, err)})
}

func statusForError(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(status int, err error) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
