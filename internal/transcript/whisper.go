package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/pronunciation"
)

const (
	defaultWhisperBaseURL = "https://api.openai.com"
	defaultWhisperModel   = "whisper-1"
	defaultFilename       = "speech.webm"
	defaultContentType    = "audio/webm"
)

// ErrMissingAPIKey is returned before any network call when no key is configured.
var ErrMissingAPIKey = errors.New("whisper: api key missing")

// WhisperClient calls the OpenAI audio transcription endpoint with verbose_json
// output so segment timing and confidence come back with the text.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
	Model      string
	// Retries is the number of extra attempts after a transient failure.
	Retries int

	backoffBase time.Duration
	log         zerolog.Logger
}

// NewWhisperClient builds a client. Zero values fall back to the public OpenAI
// endpoint, whisper-1 and a 120s timeout.
func NewWhisperClient(apiKey, baseURL, model string, timeout time.Duration, log zerolog.Logger) *WhisperClient {
	if baseURL == "" {
		baseURL = defaultWhisperBaseURL
	}
	if model == "" {
		model = defaultWhisperModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &WhisperClient{
		HTTPClient:  &http.Client{Timeout: timeout},
		APIKey:      apiKey,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		Retries:     2,
		backoffBase: 500 * time.Millisecond,
		log:         log.With().Str("component", "whisper").Logger(),
	}
}

// verboseResponse is the subset of the verbose_json payload we use.
type verboseResponse struct {
	Text     string                     `json:"text"`
	Language string                     `json:"language"`
	Duration float64                    `json:"duration"`
	Segments []pronunciation.RawSegment `json:"segments"`
}

// Transcribe uploads audio and returns its transcription. Network errors, 429 and
// 5xx responses are retried with exponential backoff.
func (c *WhisperClient) Transcribe(ctx context.Context, audio Audio, language string) (*Transcription, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(audio.Data) == 0 {
		return nil, errors.New("whisper: empty audio")
	}
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}

	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying transcription")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("whisper: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		result, err := c.doTranscribe(ctx, audio, language)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("whisper: all %d retries exhausted: %w", c.Retries, lastErr)
}

func (c *WhisperClient) doTranscribe(ctx context.Context, audio Audio, language string) (*Transcription, error) {
	body, contentType, err := c.buildForm(audio, language)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(raw, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed verboseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Segments == nil {
		parsed.Segments = []pronunciation.RawSegment{}
	}

	c.log.Debug().
		Dur("latency", time.Since(start)).
		Int("segments", len(parsed.Segments)).
		Float64("duration", parsed.Duration).
		Msg("transcription received")

	return &Transcription{
		Text:     strings.TrimSpace(parsed.Text),
		Language: parsed.Language,
		Duration: parsed.Duration,
		Segments: parsed.Segments,
	}, nil
}

// buildForm encodes the multipart body. It is rebuilt per attempt so retries never
// reuse a drained reader.
func (c *WhisperClient) buildForm(audio Audio, language string) (*bytes.Buffer, string, error) {
	filename := audio.Filename
	if filename == "" {
		filename = defaultFilename
	}
	ct := audio.ContentType
	if ct == "" {
		ct = defaultContentType
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	for k, v := range map[string]string{
		"model":           c.Model,
		"language":        language,
		"temperature":     "0",
		"response_format": "verbose_json",
	} {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *WhisperClient) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
