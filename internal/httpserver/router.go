package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/apperr"
	appmw "github.com/fairytail9511-bot/eiken-mvp/internal/middleware"
)

// maxUploadSize bounds request bodies; it matches the speech-to-text upload limit.
const maxUploadSize = "25M"

// newRouter creates a configured Echo instance with the common middleware chain.
func newRouter(log zerolog.Logger, allowOrigins []string, authToken string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(log)

	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(appmw.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
				if ae, ok := apperr.As(v.Error); ok {
					ev = ev.Str("code", string(ae.Code))
				}
			}
			ev.Str("request_id", appmw.GetRequestID(c)).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			"X-Auth-Token",
			appmw.HeaderRequestID,
		},
		ExposeHeaders: []string{appmw.HeaderRequestID},
	}))
	e.Use(appmw.TokenAuth("/api/", func() string { return authToken }))
	e.Use(middleware.BodyLimit(maxUploadSize))
	return e
}
