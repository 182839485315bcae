package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"license-service/internal/service"
	"license-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorHandler renders every error returned by handlers and middleware.
// Policy errors keep their code and details; anything unrecognized is
// logged and answered with a generic internal_error.
func ErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorBody(c, err)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.FromEcho(c).Error("Failed to write error response", zap.Error(err))
		}
	}
}

func errorBody(c echo.Context, err error) (int, echo.Map) {
	if pe, ok := service.AsPolicyError(err); ok {
		body := echo.Map{}
		for k, v := range pe.Details {
			body[k] = v
		}
		body["success"] = false
		body["code"] = pe.Code
		body["error"] = pe.Message
		return pe.HTTPStatus, body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		return he.Code, echo.Map{
			"success": false,
			"code":    httpErrorCode(he.Code),
			"error":   fmt.Sprint(he.Message),
		}
	}

	logger.FromEcho(c).Error("Unhandled error",
		zap.Error(err),
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path))
	return http.StatusInternalServerError, echo.Map{
		"success": false,
		"code":    service.CodeInternal,
		"error":   "Internal server error",
	}
}

// httpErrorCode turns an HTTP status into a snake_case code token
func httpErrorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return service.CodeUnauthorized
	case http.StatusForbidden:
		return service.CodeForbidden
	case http.StatusTooManyRequests:
		return service.CodeRateLimited
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
