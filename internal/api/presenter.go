package api

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

func ok(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func badRequest(c echo.Context, logger log.Logger, err error) error {
	level.Debug(logger).Log("msg", "bad request", "path", c.Path(), "err", err)
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func notFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func unavailable(c echo.Context, logger log.Logger, err error, payload any) error {
	level.Warn(logger).Log("msg", "request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusServiceUnavailable, payload)
}
