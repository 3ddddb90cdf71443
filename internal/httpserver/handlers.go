package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/apperr"
	"github.com/fairytail9511-bot/eiken-mvp/internal/infra/storage"
	appmw "github.com/fairytail9511-bot/eiken-mvp/internal/middleware"
	"github.com/fairytail9511-bot/eiken-mvp/internal/pronunciation"
	"github.com/fairytail9511-bot/eiken-mvp/internal/records"
	"github.com/fairytail9511-bot/eiken-mvp/internal/transcript"
	"github.com/fairytail9511-bot/eiken-mvp/internal/tts"
)

const (
	ttsTimeout     = 30 * time.Second
	archiveTimeout = 15 * time.Second
)

type handlers struct {
	transcriber transcript.Transcriber
	synthesizer tts.Synthesizer
	archive     Archiver
	records     RecordStore
	log         zerolog.Logger
}

type transcribeResponse struct {
	Text          string                     `json:"text"`
	Segments      []pronunciation.RawSegment `json:"segments"`
	Pronunciation pronunciation.Result       `json:"pronunciation"`
	RecordID      string                     `json:"recordId,omitempty"`
}

func (h *handlers) transcribe(c echo.Context) error {
	if h.transcriber == nil {
		return apperr.Unavailable("transcription")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.BadRequest("file is required").WithCause(err)
	}
	language := strings.TrimSpace(c.FormValue("language"))
	if language == "" {
		language = transcript.DefaultLanguage
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.BadRequest("unreadable file").WithCause(err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return apperr.BadRequest("unreadable file").WithCause(err)
	}
	if len(data) == 0 {
		return apperr.BadRequest("file is empty")
	}

	audio := transcript.Audio{
		Data:        data,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
	}
	ctx := c.Request().Context()
	tr, err := h.transcriber.Transcribe(ctx, audio, language)
	if err != nil {
		return apperr.Upstream("transcription", err)
	}

	result := pronunciation.Evaluate(tr.Text, pronunciation.Normalize(tr.Segments))
	segments := tr.Segments
	if segments == nil {
		segments = []pronunciation.RawSegment{}
	}
	resp := transcribeResponse{
		Text:          tr.Text,
		Segments:      segments,
		Pronunciation: result,
	}

	if h.records == nil {
		return c.JSON(http.StatusOK, resp)
	}

	rec := records.Record{
		ID:         records.NewID(),
		CreatedAt:  time.Now(),
		Language:   language,
		Transcript: tr.Text,
		Evaluation: result,
	}
	rec.AudioKey = h.archiveAudio(c, rec, audio)

	saved, err := h.records.Save(ctx, rec)
	if err != nil {
		h.log.Warn().Err(err).Str("request_id", appmw.GetRequestID(c)).Msg("save record failed")
		return c.JSON(http.StatusOK, resp)
	}
	resp.RecordID = saved.ID
	return c.JSON(http.StatusOK, resp)
}

// archiveAudio uploads the recording and returns its object key, or "" when
// archiving is disabled or fails.
func (h *handlers) archiveAudio(c echo.Context, rec records.Record, audio transcript.Audio) string {
	if h.archive == nil {
		return ""
	}
	key := storage.ObjectKey(rec.ID, audio.ContentType, audio.Filename, rec.CreatedAt)
	contentType := audio.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(key)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), archiveTimeout)
	defer cancel()
	if err := h.archive.Upload(ctx, key, contentType, audio.Data); err != nil {
		h.log.Warn().
			Err(err).
			Str("request_id", appmw.GetRequestID(c)).
			Str("key", key).
			Msg("archive recording failed")
		return ""
	}
	return key
}

type evaluateRequest struct {
	Text     string                     `json:"text"`
	Segments []pronunciation.RawSegment `json:"segments"`
}

func (h *handlers) evaluate(c echo.Context) error {
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithCause(err)
	}
	return c.JSON(http.StatusOK, pronunciation.Evaluate(req.Text, pronunciation.Normalize(req.Segments)))
}

type ttsRequest struct {
	Text   string `json:"text" validate:"required,max=2000"`
	Gender string `json:"gender" validate:"omitempty,oneof=female male"`
}

func (h *handlers) tts(c echo.Context) error {
	var req ttsRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("invalid JSON body").WithCause(err)
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Gender = strings.ToLower(strings.TrimSpace(req.Gender))
	if err := c.Validate(&req); err != nil {
		return err
	}
	if h.synthesizer == nil {
		return apperr.Unavailable("text-to-speech")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), ttsTimeout)
	defer cancel()
	audio, err := h.synthesizer.Synthesize(ctx, req.Text, tts.ParseGender(req.Gender))
	if err != nil {
		return apperr.Upstream("text-to-speech", err)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, audio.ContentType, audio.Data)
}

func (h *handlers) listRecords(c echo.Context) error {
	if h.records == nil {
		return apperr.Unavailable("records")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperr.BadRequest("limit must be an integer")
		}
		limit = n
	}
	list, err := h.records.List(c.Request().Context(), limit)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *handlers) getRecord(c echo.Context) error {
	if h.records == nil {
		return apperr.Unavailable("records")
	}
	rec, err := h.records.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, records.ErrNotFound) {
		return apperr.NotFound("record")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *handlers) clearRecords(c echo.Context) error {
	if h.records == nil {
		return apperr.Unavailable("records")
	}
	if err := h.records.Clear(c.Request().Context()); err != nil {
		return apperr.Internal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
