package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/config"
	"github.com/fairytail9511-bot/eiken-mvp/internal/records"
	"github.com/fairytail9511-bot/eiken-mvp/internal/transcript"
	"github.com/fairytail9511-bot/eiken-mvp/internal/tts"
)

// RecordStore is the attempt history used by the API.
type RecordStore interface {
	Save(ctx context.Context, rec records.Record) (records.Record, error)
	Get(ctx context.Context, id string) (*records.Record, error)
	List(ctx context.Context, limit int) ([]records.Record, error)
	Clear(ctx context.Context) error
}

// Archiver keeps a copy of uploaded recordings.
type Archiver interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
}

// Deps are the collaborators behind the API. Any of them may be nil, in which case
// the matching feature reports 503 (or is skipped for Archive).
type Deps struct {
	Transcriber transcript.Transcriber
	Synthesizer tts.Synthesizer
	Archive     Archiver
	Records     RecordStore
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, deps Deps, log zerolog.Logger) *Server {
	e := newRouter(log, cfg.CORSAllowOrigins, cfg.AuthToken)

	h := &handlers{
		transcriber: deps.Transcriber,
		synthesizer: deps.Synthesizer,
		archive:     deps.Archive,
		records:     deps.Records,
		log:         log,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	api := e.Group("/api")
	api.POST("/transcribe", h.transcribe)
	api.POST("/evaluate", h.evaluate)
	api.POST("/tts", h.tts)
	api.GET("/records", h.listRecords)
	api.GET("/records/:id", h.getRecord)
	api.DELETE("/records", h.clearRecords)

	return &Server{Router: e}
}
