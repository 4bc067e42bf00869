package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/CodePlayData/fhir/internal/platform/fhir"
)

var issueCodes = map[int]string{
	http.StatusBadRequest:            "invalid",
	http.StatusUnauthorized:          "login",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not-found",
	http.StatusMethodNotAllowed:      "not-supported",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "too-costly",
	http.StatusUnsupportedMediaType:  "not-supported",
	http.StatusUnprocessableEntity:   "business-rule",
	http.StatusTooManyRequests:       "throttled",
	http.StatusInternalServerError:   "exception",
}

// IssueCode maps an HTTP status to the OperationOutcome issue type.
func IssueCode(status int) string {
	if code, ok := issueCodes[status]; ok {
		return code
	}
	return "processing"
}

// HTTPErrorHandler renders every error as a FHIR OperationOutcome. Errors
// that are not *echo.HTTPError become a 500 without leaking their text.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = fmt.Sprint(he.Message)
			}
		}
		if code >= http.StatusInternalServerError {
			rid, _ := c.Get(RequestIDKey).(string)
			logger.Error().Err(err).Str("request_id", rid).Msg("request failed")
		}

		outcome := fhir.NewOperationOutcome("error", IssueCode(code), msg)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, outcome)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
