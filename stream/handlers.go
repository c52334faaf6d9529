package stream

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gumboard-api/domain"
)

const keepAliveInterval = 25 * time.Second

// Authenticator resolves the actor of a stream request.
type Authenticator interface {
	ActorFromAuthHeader(string) (domain.User, error)
}

// Register wires the board update stream on the given Echo instance.
func Register(e *echo.Echo, broker *Broker, auth Authenticator) {
	e.GET("/api/boards/:boardId/stream", streamBoard(broker, auth, keepAliveInterval))
}

func streamBoard(broker *Broker, auth Authenticator, keepAlive time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.ActorFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)
		flusher.Flush()

		boardID := c.Param("boardId")
		ch := broker.Subscribe(boardID)
		defer broker.Unsubscribe(boardID, ch)

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				if _, err := res.Write([]byte("event: note\ndata: ")); err != nil {
					return nil
				}
				if _, err := res.Write(data); err != nil {
					return nil
				}
				if _, err := res.Write([]byte("\n\n")); err != nil {
					return nil
				}
			}
			flusher.Flush()
		}
	}
}
