package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/apperr"
)

const maxDetailLen = 400

// errorHandler renders every error as {"error", "code", "detail"} JSON. Failed
// requests are logged by the request logger, not here.
func errorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ae := toAppError(err)
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.HTTPStatus)
		} else {
			werr = c.JSON(ae.HTTPStatus, ae)
		}
		if werr != nil {
			log.Warn().Err(werr).Msg("write error response")
		}
	}
}

func toAppError(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		if ae.Code == apperr.CodeUpstream && ae.Detail == "" && ae.Cause != nil {
			return &apperr.Error{
				Code:       ae.Code,
				Message:    ae.Message,
				Detail:     clip(ae.Cause.Error(), maxDetailLen),
				HTTPStatus: ae.HTTPStatus,
				Cause:      ae.Cause,
			}
		}
		return ae
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return apperr.New(codeForStatus(he.Code), he.Code, msg).WithCause(he.Internal)
	}

	return apperr.Internal(err)
}

func codeForStatus(status int) apperr.Code {
	switch {
	case status == http.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case status == http.StatusNotFound:
		return apperr.CodeNotFound
	case status == http.StatusServiceUnavailable:
		return apperr.CodeUnavailable
	case status == http.StatusBadGateway:
		return apperr.CodeUpstream
	case status >= 500:
		return apperr.CodeInternal
	default:
		return apperr.CodeBadRequest
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
